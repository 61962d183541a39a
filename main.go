package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"dojo/internal/handlers"
	"dojo/internal/middleware"
	"dojo/internal/models"
	"dojo/internal/repositories"
	"dojo/internal/services"
	"dojo/pkg/rabbitmq"
)

func main() {
	// --- Configuration ---
	viper.SetDefault("APP_PORT", ":8080")
	viper.SetDefault("DATABASE_DSN", "host=127.0.0.1 user=postgres password=postgres dbname=dojo port=5432 sslmode=disable")
	viper.SetDefault("JWT_SECRET", "change_me_in_production")
	viper.SetDefault("RABBITMQ_URL", "")
	viper.AutomaticEnv() // Load environment variables

	appPort := viper.GetString("APP_PORT")
	databaseDSN := viper.GetString("DATABASE_DSN")
	jwtSecret := viper.GetString("JWT_SECRET")
	rabbitMQURL := viper.GetString("RABBITMQ_URL")

	// --- Initialize Database (GORM) ---
	// TranslateError is required: the repositories rely on
	// gorm.ErrDuplicatedKey to build structured conflict errors.
	db, err := gorm.Open(postgres.Open(databaseDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// --- Initialize RabbitMQ Client (optional) ---
	// Events are best-effort; a missing or unreachable broker must not keep
	// the membership service from starting.
	var mqClient *rabbitmq.Client
	if rabbitMQURL != "" {
		mqClient, err = rabbitmq.NewClient(rabbitmq.Config{URL: rabbitMQURL})
		if err != nil {
			log.Printf("Warning: RabbitMQ unavailable, dojo events disabled: %v", err)
			mqClient = nil
		} else {
			defer mqClient.Close()
		}
	} else {
		log.Println("RABBITMQ_URL not set, dojo events disabled.")
	}

	// --- Initialize Repositories ---
	repos := repositories.NewGORMRepositories(db)
	txManager := repositories.NewGORMTxManager(db)

	// --- Initialize Services ---
	userService := services.NewUserService(repos.Users, jwtSecret)
	var publisher services.EventPublisher
	if mqClient != nil {
		publisher = mqClient
	}
	dojoService := services.NewDojoService(repos, txManager, publisher)

	// --- Initialize Handlers ---
	authHandler := handlers.NewAuthHandler(userService)
	dojoHandler := handlers.NewDojoHandler(dojoService)

	// --- Initialize Fiber App ---
	app := fiber.New()

	// --- Middleware ---
	app.Use(logger.New()) // Request logger

	// --- API Routes ---
	apiV1 := app.Group("/api/v1")

	// Public authentication routes
	authHandler.RegisterRoutes(apiV1)

	// Protected routes (require JWT authentication)
	protectedRoutes := apiV1.Group("", middleware.AuthRequired(userService))
	authHandler.RegisterProtectedRoutes(protectedRoutes)
	dojoHandler.RegisterRoutes(protectedRoutes)

	// --- Health Check Endpoint ---
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// --- Start RabbitMQ Consumer in a Goroutine ---
	if mqClient != nil {
		go func() {
			log.Println("Starting RabbitMQ consumer for dojo events...")
			messageHandler := func(msg amqp.Delivery) error {
				log.Printf("Received dojo event %s (Tag: %d): %s", msg.Type, msg.DeliveryTag, string(msg.Body))
				return nil // Return nil to acknowledge
			}
			if consumerErr := mqClient.ConsumeDojoEvents(messageHandler); consumerErr != nil {
				log.Printf("Failed to start RabbitMQ consumer: %v", consumerErr)
			}
		}()
	}

	// --- Start HTTP Server ---
	log.Printf("Starting server on port %s", appPort)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(appPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}

	log.Println("Server gracefully stopped")
}

// migrate creates the schema. The case-insensitive unique index on
// users.email is an expression index, which GORM tags cannot express, so it
// is created with raw SQL after AutoMigrate.
func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Dojo{}, &models.Membership{}); err != nil {
		return err
	}
	return db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS " + models.EmailUniqueIndex + " ON users (lower(email))",
	).Error
}
