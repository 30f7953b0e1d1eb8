package handlers

import (
	"time"

	config "github.com/anjiri1684/tutor_settlement/configs"
	"github.com/anjiri1684/tutor_settlement/models"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

type OpsTokenRequest struct {
	APIKey string `json:"api_key" validate:"required"`
}

// IssueOpsToken exchanges the operations API key for a short-lived JWT
// used on the internal inspection routes.
func IssueOpsToken(c *fiber.Ctx) error {
	var req OpsTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	keyHash := config.Config("OPS_API_KEY_HASH")
	if keyHash == "" || bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(req.APIKey)) != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid API key"})
	}

	claims := jwt.MapClaims{
		"role": "ops",
		"exp":  time.Now().Add(12 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.Config("JWT_SECRET")))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to sign token"})
	}

	return c.JSON(fiber.Map{"token": signed})
}

// GetLedger returns the most recent ledger entries with the current
// running balance.
func GetLedger(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	entries, err := ledger.Entries(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load ledger"})
	}
	balance, err := ledger.CurrentBalance()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load ledger balance"})
	}

	return c.JSON(fiber.Map{
		"balance": balance,
		"entries": entries,
	})
}

// GetPayoutRetries lists payout retry records, exhausted ones included so
// operators can pick up payouts that need manual handling.
func GetPayoutRetries(c *fiber.Ctx) error {
	query := db.Order("next_retry_at asc")
	if c.Query("exhausted") == "true" {
		query = query.Where("exhausted = ?", true)
	}

	var retries []models.PayoutRetry
	if err := query.Find(&retries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load payout retries"})
	}

	return c.JSON(retries)
}
