package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/SkynetLabs/checkout-bridge/api"
	"github.com/SkynetLabs/checkout-bridge/database"
	"github.com/SkynetLabs/checkout-bridge/metrics"
	"github.com/SkynetLabs/checkout-bridge/payment"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gitlab.com/NebulousLabs/errors"
)

type (
	// config contains the configuration for the service which is parsed
	// from the environment vars.
	config struct {
		LogLevel    logrus.Level
		Host        string
		Port        int
		Environment string
		PublicDir   string
		BaseURL     string

		StripeSecretKey      string
		StripeWebhookSecret  string
		StripePublishableKey string

		RecordStore string

		AirtableAPIKey  string
		AirtableBaseID  string
		AirtableTableID string

		DBURI      string
		DBUser     string
		DBPassword string
		DBName     string
	}

	// orderStore is an api.OrderStore that needs to be closed on shutdown.
	orderStore interface {
		api.OrderStore
		Close() error
	}

	// nopCloser turns an api.OrderStore without resources into an
	// orderStore.
	nopCloser struct {
		api.OrderStore
	}
)

const (
	// envAPIShutdownTimeout is the timeout for gracefully shutting down the
	// API before killing it.
	envAPIShutdownTimeout = 20 * time.Second

	// dotEnvFile is the optional file environment variables are loaded
	// from. Variables that are already set take precedence.
	dotEnvFile = ".env"

	// envLogLevel is the environment variable for the log level used by
	// this service.
	envLogLevel = "CHECKOUT_LOG_LEVEL"

	// envHost is the environment variable for the interface to listen on.
	envHost = "HOST"

	// envPort is the environment variable for the port to listen on.
	envPort = "PORT"

	// envEnvironment is the environment variable for the name of the
	// deployment environment.
	envEnvironment = "ENVIRONMENT"

	// envPublicDir is the environment variable for the directory of static
	// files.
	envPublicDir = "PUBLIC_DIR"

	// envBaseURL is the environment variable for the public URL of the
	// frontend. Stripe redirects back to it after a checkout.
	envBaseURL = "CHECKOUT_BASE_URL"

	// envStripeSecretKey is the environment variable for the Stripe secret
	// API key.
	envStripeSecretKey = "STRIPE_SECRET_KEY"

	// envStripeWebhookSecret is the environment variable for the secret
	// used to verify webhook signatures.
	envStripeWebhookSecret = "STRIPE_WEBHOOK_SECRET"

	// envStripePublishableKey is the environment variable for the Stripe
	// publishable key served to the frontend.
	envStripePublishableKey = "STRIPE_PUBLISHABLE_KEY"

	// envRecordStore is the environment variable selecting where orders are
	// written to. Either "airtable" or "mongodb".
	envRecordStore = "RECORD_STORE"

	// envAirtableAPIKey is the environment variable for the Airtable API
	// key.
	envAirtableAPIKey = "AIRTABLE_API_KEY"

	// envAirtableBaseID is the environment variable for the id of the
	// Airtable base.
	envAirtableBaseID = "AIRTABLE_BASE_ID"

	// envAirtableTableID is the environment variable for the id of the
	// Airtable table orders are written to.
	envAirtableTableID = "AIRTABLE_TABLE_ID"

	// envMongoDBURI is the environment variable for the mongodb URI.
	envMongoDBURI = "MONGODB_URI"

	// envMongoDBUser is the environment variable for the mongodb user.
	envMongoDBUser = "MONGODB_USER"

	// envMongoDBPassword is the environment variable for the mongodb password.
	envMongoDBPassword = "MONGODB_PASSWORD"

	// envMongoDBDatabase is the environment variable for the name of the
	// mongodb database.
	envMongoDBDatabase = "MONGODB_DATABASE"
)

// Close implements orderStore.
func (nopCloser) Close() error {
	return nil
}

// parseConfig parses a Config struct from the environment.
func parseConfig() (*config, error) {
	// Create config with default vars.
	cfg := &config{
		LogLevel:    logrus.InfoLevel,
		Port:        3000,
		Environment: "development",
		PublicDir:   "public",
		BaseURL:     "http://localhost:3000",
		RecordStore: database.StoreAirtable,
		DBName:      database.DefaultDBName,
	}

	// Parse custom vars from environment.
	var ok bool
	var err error

	logLevelStr, ok := os.LookupEnv(envLogLevel)
	if ok {
		cfg.LogLevel, err = logrus.ParseLevel(logLevelStr)
		if err != nil {
			return nil, errors.AddContext(err, "failed to parse log level")
		}
	}
	portStr, ok := os.LookupEnv(envPort)
	if ok {
		cfg.Port, err = strconv.Atoi(portStr)
		if err != nil || cfg.Port < 0 || cfg.Port > 65535 {
			return nil, fmt.Errorf("invalid %s '%s'", envPort, portStr)
		}
	}
	if host, ok := os.LookupEnv(envHost); ok {
		cfg.Host = host
	}
	if env, ok := os.LookupEnv(envEnvironment); ok && env != "" {
		cfg.Environment = env
	}
	if dir, ok := os.LookupEnv(envPublicDir); ok {
		cfg.PublicDir = dir
	}
	if baseURL, ok := os.LookupEnv(envBaseURL); ok && baseURL != "" {
		cfg.BaseURL = baseURL
	}

	cfg.StripeSecretKey, ok = os.LookupEnv(envStripeSecretKey)
	if !ok {
		return nil, fmt.Errorf("%s wasn't specified", envStripeSecretKey)
	}
	cfg.StripeWebhookSecret, ok = os.LookupEnv(envStripeWebhookSecret)
	if !ok {
		return nil, fmt.Errorf("%s wasn't specified", envStripeWebhookSecret)
	}
	cfg.StripePublishableKey = os.Getenv(envStripePublishableKey)

	if store, ok := os.LookupEnv(envRecordStore); ok && store != "" {
		cfg.RecordStore = store
	}
	switch cfg.RecordStore {
	case database.StoreAirtable:
		cfg.AirtableAPIKey, ok = os.LookupEnv(envAirtableAPIKey)
		if !ok {
			return nil, fmt.Errorf("%s wasn't specified", envAirtableAPIKey)
		}
		cfg.AirtableBaseID, ok = os.LookupEnv(envAirtableBaseID)
		if !ok {
			return nil, fmt.Errorf("%s wasn't specified", envAirtableBaseID)
		}
		cfg.AirtableTableID, ok = os.LookupEnv(envAirtableTableID)
		if !ok {
			return nil, fmt.Errorf("%s wasn't specified", envAirtableTableID)
		}
	case database.StoreMongoDB:
		cfg.DBURI, ok = os.LookupEnv(envMongoDBURI)
		if !ok {
			return nil, fmt.Errorf("%s wasn't specified", envMongoDBURI)
		}
		cfg.DBUser, ok = os.LookupEnv(envMongoDBUser)
		if !ok {
			return nil, fmt.Errorf("%s wasn't specified", envMongoDBUser)
		}
		cfg.DBPassword, ok = os.LookupEnv(envMongoDBPassword)
		if !ok {
			return nil, fmt.Errorf("%s wasn't specified", envMongoDBPassword)
		}
		if name, ok := os.LookupEnv(envMongoDBDatabase); ok && name != "" {
			cfg.DBName = name
		}
	default:
		return nil, fmt.Errorf("unknown %s '%s'", envRecordStore, cfg.RecordStore)
	}
	return cfg, nil
}

// logSecretsPresence logs which secrets were configured without logging
// their values.
func logSecretsPresence(logger *logrus.Logger, cfg *config) {
	logger.WithFields(logrus.Fields{
		envStripeSecretKey:      cfg.StripeSecretKey != "",
		envStripeWebhookSecret:  cfg.StripeWebhookSecret != "",
		envStripePublishableKey: cfg.StripePublishableKey != "",
		envAirtableAPIKey:       cfg.AirtableAPIKey != "",
		envMongoDBPassword:      cfg.DBPassword != "",
	}).Debug("Secrets loaded")
	if cfg.StripePublishableKey == "" {
		logger.Warnf("%s wasn't specified, /config will return an empty key", envStripePublishableKey)
	}
}

// newOrderStore creates the record store selected by the config.
func newOrderStore(ctx context.Context, logger *logrus.Entry, cfg *config) (orderStore, error) {
	switch cfg.RecordStore {
	case database.StoreMongoDB:
		db, err := database.New(ctx, logger, cfg.DBURI, cfg.DBUser, cfg.DBPassword, cfg.DBName)
		if err != nil {
			return nil, errors.AddContext(err, "failed to connect to database")
		}
		if ph := db.Health(); ph.Database != nil {
			return nil, errors.Compose(errors.AddContext(ph.Database, "database is not healthy"), db.Close())
		}
		return db, nil
	default:
		s, err := database.NewAirtable(logger, cfg.AirtableAPIKey, cfg.AirtableBaseID, cfg.AirtableTableID, "")
		if err != nil {
			return nil, err
		}
		return nopCloser{s}, nil
	}
}

func main() {
	logger := logrus.New()

	// Create application context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load the .env file if there is one.
	err := godotenv.Load(dotEnvFile)
	if err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Fatal("Failed to load .env file")
	}

	// Parse env vars.
	cfg, err := parseConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to parse Config")
	}

	// Create the loggers for the submodules.
	logger.SetLevel(cfg.LogLevel)
	logSecretsPresence(logger, cfg)
	apiLogger := logger.WithField("modules", "api")
	dbLogger := logger.WithField("modules", "db")
	paymentLogger := logger.WithField("modules", "payment")

	// Create the collaborators.
	payments, err := payment.New(paymentLogger, payment.Options{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		BaseURL:       cfg.BaseURL,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to init payment provider")
	}
	store, err := newOrderStore(ctx, dbLogger, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to init record store")
	}

	// Create API.
	a, err := api.New(apiLogger, api.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Environment:    cfg.Environment,
		PublishableKey: cfg.StripePublishableKey,
		PublicDir:      cfg.PublicDir,
	}, payments, store, metrics.New())
	if err != nil {
		logger.WithError(err).Fatal("Failed to init API")
	}

	// Register handler for shutdown.
	var wg sync.WaitGroup
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-sigChan

		// Log that we are shutting down.
		logger.Info("Caught stop signal. Shutting down...")

		// Shut down API with sane timeout.
		shutdownCtx, cancel := context.WithTimeout(ctx, envAPIShutdownTimeout)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shut down api")
		}
	}()

	// Start serving API.
	logger.WithFields(logrus.Fields{
		"address":     a.Address(),
		"environment": cfg.Environment,
		"store":       store.Name(),
	}).Info("Server running")
	err = a.ListenAndServe()
	if err != nil && !errors.Contains(err, http.ErrServerClosed) {
		logger.WithError(err).Error("ListenAndServe returned an error")
	}

	// Wait for the goroutine to finish before continuing with the remaining
	// shutdown procedures.
	wg.Wait()

	// Close the record store.
	if err = store.Close(); err != nil {
		logger.WithError(err).Fatal("Failed to close record store gracefully")
	}
}
