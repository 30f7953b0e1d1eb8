package handlers

import (
	"errors"
	"log"

	"github.com/anjiri1684/tutor_settlement/services"
	"github.com/gofiber/fiber/v2"
)

// HandlePaymentWebhook is the entry point for M-Pesa payment-result
// callbacks. The gateway delivers at least once; replays are acknowledged
// with the previously recorded outcome.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	var event services.PaymentResultEvent
	if err := c.BodyParser(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Cannot parse webhook payload",
		})
	}
	if err := validate.Struct(event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	log.Printf("Received payment webhook for TransactionID: %s, ResultCode: %d",
		event.TransactionID, event.ResultCode)

	outcome, err := settlements.Reconcile(event)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Transaction not found",
			})
		}
		log.Printf("🔥 CRITICAL: Error processing webhook for TransactionID %s: %v", event.TransactionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal server error",
		})
	}

	message := "Webhook processed successfully"
	if outcome.Replayed {
		message = "Webhook already processed"
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":       true,
		"message":       message,
		"transactionId": outcome.TransactionID,
		"status":        outcome.Status,
	})
}
