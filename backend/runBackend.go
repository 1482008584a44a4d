package backend

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/srkaul/goalmaster/backend/goals"
	"github.com/srkaul/goalmaster/backend/premium"
	"github.com/srkaul/goalmaster/backend/reminders"
	"github.com/srkaul/goalmaster/backend/server"
	"github.com/srkaul/goalmaster/backend/server/auth"
	cache "github.com/srkaul/goalmaster/backend/storage/cache"
	storage "github.com/srkaul/goalmaster/backend/storage/persistent"
	"github.com/srkaul/goalmaster/backend/xp"
)

// RunBackend wires up storage, the reminder queue and the goal services,
// then serves the REST API until interrupted.
func RunBackend() {

	// Load the .env file.
	err := godotenv.Load("backend/.env")
	if err != nil {
		fmt.Println("Error loading .env file")
	}

	// Read the environment variables from the .env file using os.Getenv.
	signingKey := os.Getenv("JWT_SIGNING_KEY") // JWT signing key for token generation
	serverURL := os.Getenv("SERVER_URL")       // The URL where the server is running
	dbURI := os.Getenv("MONGODB_URI")          // MongoDB database URI
	dbName := os.Getenv("DB_NAME")             // The name of the MongoDB database
	redisUrl := os.Getenv("REDIS_URL")         // The Redis URL for caching
	rabbitMQURL := os.Getenv("RABBITMQ_URL")   // The URL for the RabbitMQ message broker
	smtpEmail := os.Getenv("GOOGLE_EMAIL")     // The email address used for sending reminders
	smtpPassword := os.Getenv("GOOGLE_PASS")   // The password for the email account
	numReminderProducers := 1                  // The number of reminder producers
	numReminderConsumers := 2                  // The number of reminder consumers
	ctx := context.Background()

	// Archived goals are flagged completed by default; set
	// ARCHIVE_RETAIN_GOALS=false to delete them instead.
	retainArchivedGoals := true
	if raw := os.Getenv("ARCHIVE_RETAIN_GOALS"); raw != "" {
		if parsed, parseErr := strconv.ParseBool(raw); parseErr == nil {
			retainArchivedGoals = parsed
		}
	}

	store, err := storage.NewStorage(dbName, dbURI)
	if err != nil {
		log.Fatal("error connecting to storage: ", err)
	}

	c, err := cache.NewCache(redisUrl)
	if err != nil {
		log.Fatal("error connecting to cache: ", err)
	}

	// Reminders are emailed when SMTP credentials are configured and
	// logged otherwise.
	var notifier reminders.Notifier
	if smtpEmail != "" && smtpPassword != "" {
		notifier, err = reminders.NewEmailNotifier(store, smtpEmail, smtpPassword)
		if err != nil {
			log.Fatal("error initializing email notifier: ", err)
		}
	}

	// Build the reminder queue using the RabbitMQ URL, producer and
	// consumer counts, and the reminder cache.
	reminderCache := reminders.InitReminderCache(redisUrl)
	reminderQueue := reminders.BuildReminderQueue(rabbitMQURL, numReminderProducers, numReminderConsumers, reminderCache, notifier)

	// Start the queue consumers
	_, _, err = reminderQueue.StartConsumers(ctx)
	if err != nil {
		log.Fatal("error starting queue consumers: ", err)
	}

	auth.InitAuth(store, signingKey)

	ledger := xp.NewLedger(store, c)
	premiumService := premium.NewService(store, c, premium.NewSandboxProvider())
	goalService := goals.NewService(store, c, ledger, premiumService, reminderQueue, retainArchivedGoals)

	// Start the core server
	go server.Start(serverURL, signingKey, goalService, ledger, premiumService)

	// Setting up the signal interrupt handler to gracefully shutdown our server
	sigs := make(chan os.Signal, 1)

	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigs
		fmt.Println()
		fmt.Println(sig)
		os.Exit(0)
	}()

	select {}
}
