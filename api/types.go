package api

import (
	"context"
	"time"

	"github.com/SkynetLabs/checkout-bridge/database"
	"github.com/stripe/stripe-go/v80"
)

type (
	// PaymentProvider creates checkout sessions and verifies the events it
	// pushes to the webhook.
	PaymentProvider interface {
		CreateCheckoutSession(ctx context.Context) (string, error)
		ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)
	}

	// OrderStore persists completed orders.
	OrderStore interface {
		CreateOrder(ctx context.Context, o database.OrderRecord) error
		Name() string
	}
)

// These are the request and response types used by the API.
type (
	// HealthGET is the type returned by the /health endpoint.
	HealthGET struct {
		Status      string    `json:"status"`
		Timestamp   time.Time `json:"timestamp"`
		Uptime      float64   `json:"uptime"`
		Environment string    `json:"environment"`
	}

	// InfoGET is the type returned by the /info endpoint.
	InfoGET struct {
		Application     string    `json:"application"`
		Version         string    `json:"version"`
		Environment     string    `json:"environment"`
		Uptime          float64   `json:"uptime"`
		Timestamp       time.Time `json:"timestamp"`
		MetricsEndpoint string    `json:"metrics_endpoint"`
		HealthEndpoint  string    `json:"health_endpoint"`
	}

	// ConfigGET is the type returned by the /config endpoint.
	ConfigGET struct {
		PublishableKey string `json:"publishableKey"`
	}

	// CheckoutSessionPOST is the type returned by the
	// /create-checkout-session endpoint.
	CheckoutSessionPOST struct {
		ID string `json:"id"`
	}

	// WebhookPOST acknowledges a webhook delivery.
	WebhookPOST struct {
		Received bool `json:"received"`
	}

	// checkoutError is returned when a checkout session couldn't be
	// created.
	checkoutError struct {
		Error string `json:"error"`
	}
)
