package main

import (
	"log"
	"time"

	config "github.com/anjiri1684/tutor_settlement/configs"
	"github.com/anjiri1684/tutor_settlement/database"
	"github.com/anjiri1684/tutor_settlement/handlers"
	"github.com/anjiri1684/tutor_settlement/jobs"
	"github.com/anjiri1684/tutor_settlement/notifications"
	"github.com/anjiri1684/tutor_settlement/payments"
	"github.com/anjiri1684/tutor_settlement/queue"
	"github.com/anjiri1684/tutor_settlement/routes"
	"github.com/anjiri1684/tutor_settlement/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
)

func main() {
	database.ConnectDB()
	database.Migrate()
	notifications.InitPushService()

	go payments.GetKcbAccessToken()

	retryPolicy := services.RetryPolicy{
		MaxAttempts: config.PayoutRetryMaxAttempts(),
		Backoff:     func(int) time.Duration { return config.PayoutRetryBackoff() },
	}

	ledger := services.NewLedgerService(database.DB)
	activation := services.NewActivationService(database.DB)
	settlements := services.NewSettlementService(database.DB, ledger, activation, notifications.PushClient, config.CommissionRate())
	payouts := services.NewPayoutService(database.DB, payments.NewB2CService(), notifications.PushClient, payments.SanitizeMpesaNumber, retryPolicy)

	handlers.Init(database.DB, settlements, payouts, ledger)

	c := cron.New()
	c.AddFunc("*/5 * * * *", func() { jobs.ProcessDuePayoutRetries(payouts) })
	go c.Start()
	log.Println("✅ Cron job for payout retries scheduled successfully.")

	go queue.StartLessonEventConsumer(payouts)

	app := fiber.New(fiber.Config{
		Prefork:           false,
		AppName:           "Tutor Settlement",
		CaseSensitive:     true,
		StrictRouting:     true,
		EnablePrintRoutes: true,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		AllowMethods:  "GET, POST, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Africa/Nairobi",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.PaymentRoutes(app)
	routes.LessonRoutes(app)
	routes.OpsRoutes(app)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	log.Println("✅ Server is running on port 8080")
	err := app.Listen(":8080")
	if err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
