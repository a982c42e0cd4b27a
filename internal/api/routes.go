package api

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).SendString("ok")
	})
	v1 := app.Group("/api/v1")
	v1.Post("/product/init", h.InitProducts)
	v1.Post("/product/update", h.UpdateProducts)
	v1.Post("/enrich", h.EnrichTrades)
	v1.Get("/runs/:run_id", h.GetRun)
}
