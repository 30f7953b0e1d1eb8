package handlers

import (
	"github.com/anjiri1684/tutor_settlement/services"
	"github.com/gofiber/fiber/v2"
)

// HandleLessonStatusChange ingests a delivery-unit status change and kicks
// the payout workflow. Fire-and-forget: the caller only learns whether the
// event was accepted, never how the payout went.
func HandleLessonStatusChange(c *fiber.Ctx) error {
	var event services.LessonStatusEvent
	if err := c.BodyParser(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse event payload"})
	}
	if err := validate.Struct(event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	go payouts.HandleLessonCompleted(event)

	return c.SendStatus(fiber.StatusAccepted)
}
