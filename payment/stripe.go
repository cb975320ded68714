package payment

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"
	"gitlab.com/NebulousLabs/errors"
)

const (
	// SignatureHeader is the header carrying the webhook signature.
	SignatureHeader = "Stripe-Signature"
)

type (
	// Product describes the single item sold through the checkout.
	Product struct {
		Name       string
		Currency   string
		UnitAmount int64 // minor units
		Quantity   int64
	}

	// Stripe creates checkout sessions and verifies webhook deliveries
	// using the Stripe API.
	Stripe struct {
		staticClient        *client.API
		staticLogger        *logrus.Entry
		staticProduct       Product
		staticSuccessURL    string
		staticCancelURL     string
		staticWebhookSecret string
	}

	// Options configures a Stripe instance.
	Options struct {
		SecretKey     string
		WebhookSecret string

		// BaseURL is the URL of the app's frontend. The checkout redirects
		// to its success.html and cancel.html pages.
		BaseURL string

		// APIURL overrides the Stripe API endpoint. Empty means the default
		// Stripe endpoint.
		APIURL string
	}
)

// DefaultProduct is the product sold by the checkout.
var DefaultProduct = Product{
	Name:       "Stripe Smart Checkout Product",
	Currency:   string(stripe.CurrencyUSD),
	UnitAmount: 2000,
	Quantity:   1,
}

// New creates a new Stripe payment provider.
func New(log *logrus.Entry, opts Options) (*Stripe, error) {
	if opts.SecretKey == "" {
		return nil, errors.New("missing stripe secret key")
	}
	if opts.WebhookSecret == "" {
		return nil, errors.New("missing stripe webhook secret")
	}
	cfg := &stripe.BackendConfig{
		LeveledLogger: log,
		// The service never retries calls to the payment provider.
		MaxNetworkRetries: stripe.Int64(0),
	}
	if opts.APIURL != "" {
		cfg.URL = stripe.String(opts.APIURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	sc := client.New(opts.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
	return &Stripe{
		staticClient:        sc,
		staticLogger:        log,
		staticProduct:       DefaultProduct,
		staticSuccessURL:    opts.BaseURL + "/success.html",
		staticCancelURL:     opts.BaseURL + "/cancel.html",
		staticWebhookSecret: opts.WebhookSecret,
	}, nil
}

// CreateCheckoutSession creates a new checkout session for the product and
// returns its ID. Every call creates a new session.
func (s *Stripe) CreateCheckoutSession(ctx context.Context) (string, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(s.staticProduct.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(s.staticProduct.Name),
					},
					UnitAmount: stripe.Int64(s.staticProduct.UnitAmount),
				},
				Quantity: stripe.Int64(s.staticProduct.Quantity),
			},
		},
		SuccessURL: stripe.String(s.staticSuccessURL),
		CancelURL:  stripe.String(s.staticCancelURL),
	}
	params.Context = ctx
	sess, err := s.staticClient.CheckoutSessions.New(params)
	if err != nil {
		return "", errors.AddContext(err, "failed to create checkout session")
	}
	return sess.ID, nil
}

// ConstructEvent verifies the signature of a webhook payload and decodes
// the event. Only the signature and its timestamp are checked, events sent
// with a different API version than the library's are accepted.
func (s *Stripe) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, s.staticWebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
