package routes

import (
	"github.com/anjiri1684/tutor_settlement/handlers"
	"github.com/anjiri1684/tutor_settlement/middleware"
	"github.com/gofiber/fiber/v2"
)

func OpsRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	api.Post("/ops/token", handlers.IssueOpsToken)

	ops := api.Group("/ops", middleware.Protected(), middleware.OpsRequired())
	ops.Get("/ledger", handlers.GetLedger)
	ops.Get("/payout-retries", handlers.GetPayoutRetries)
}
