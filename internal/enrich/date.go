package enrich

import "time"

const dateLayout = "20060102"

// ValidDate reports whether s is a real calendar date in yyyyMMdd form.
// Resolution is strict: month 13, day 32 or Feb 29 outside a leap year all
// fail, not roll over.
func ValidDate(s string) bool {
	if len(s) != len(dateLayout) {
		return false
	}
	_, err := time.Parse(dateLayout, s)
	return err == nil
}
