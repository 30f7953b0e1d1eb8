package routes

import (
	"github.com/anjiri1684/tutor_settlement/handlers"
	"github.com/gofiber/fiber/v2"
)

func LessonRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	api.Post("/lessons/events", handlers.HandleLessonStatusChange)
}
