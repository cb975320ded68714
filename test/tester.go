package test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SkynetLabs/checkout-bridge/api"
	"github.com/SkynetLabs/checkout-bridge/database"
	"github.com/SkynetLabs/checkout-bridge/metrics"
	"github.com/SkynetLabs/checkout-bridge/payment"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v80/webhook"
	"gitlab.com/NebulousLabs/errors"
)

const (
	// WebhookSecret is the secret the tester's API verifies webhooks with.
	WebhookSecret = "whsec_tester"

	// PublishableKey is the publishable key the tester's API hands out.
	PublishableKey = "pk_test_tester"
)

type (
	// Tester runs an API backed by a fake Stripe API and a fake Airtable
	// API together with a client to talk to that API.
	Tester struct {
		*api.Client
		staticAPI      *api.API
		staticAirtable *httptest.Server
		staticStripe   *httptest.Server

		// stripeDown makes the fake Stripe API fail all requests.
		stripeDown int32
		// airtableDown makes the fake Airtable API fail all requests.
		airtableDown int32

		mu       sync.Mutex
		rows     []map[string]interface{}
		sessions int

		shutDown    chan struct{}
		shutDownErr error
	}
)

// newTester creates a new, ready-to-go tester.
func newTester() (*Tester, error) {
	// Create discard logger.
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tester := &Tester{
		shutDown: make(chan struct{}),
	}
	tester.staticStripe = httptest.NewServer(http.HandlerFunc(tester.serveStripe))
	tester.staticAirtable = httptest.NewServer(http.HandlerFunc(tester.serveAirtable))

	payments, err := payment.New(logrus.NewEntry(logger), payment.Options{
		SecretKey:     "sk_test_tester",
		WebhookSecret: WebhookSecret,
		BaseURL:       "http://localhost:3000",
		APIURL:        tester.staticStripe.URL,
	})
	if err != nil {
		return nil, errors.Compose(err, tester.closeFakes())
	}
	store, err := database.NewAirtable(logrus.NewEntry(logger), "patTester", "appTester", "tblOrders", tester.staticAirtable.URL+"/v0")
	if err != nil {
		return nil, errors.Compose(err, tester.closeFakes())
	}

	// Create API.
	cfg := api.Config{
		Host:           "localhost",
		Environment:    "test",
		PublishableKey: PublishableKey,
	}
	a, err := api.New(logrus.NewEntry(logger), cfg, payments, store, metrics.New())
	if err != nil {
		return nil, errors.Compose(err, tester.closeFakes())
	}
	_, port, err := net.SplitHostPort(a.Address())
	if err != nil {
		return nil, errors.Compose(err, tester.closeFakes())
	}
	tester.Client = api.NewClient(fmt.Sprintf("http://localhost:%s", port))
	tester.staticAPI = a

	// Start listening.
	go func() {
		tester.shutDownErr = tester.staticAPI.ListenAndServe()
		close(tester.shutDown)
	}()
	return tester, nil
}

// Close shuts the tester down gracefully.
func (t *Tester) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.staticAPI.Shutdown(ctx); err != nil {
		return errors.Compose(err, t.closeFakes())
	}
	<-t.shutDown
	if errors.Contains(t.shutDownErr, http.ErrServerClosed) {
		return t.closeFakes() // Ignore shutdown error
	}
	return errors.Compose(t.shutDownErr, t.closeFakes())
}

// Rows returns a copy of the rows written to the fake Airtable.
func (t *Tester) Rows() []map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]map[string]interface{}{}, t.rows...)
}

// SetStripeDown toggles failures of the fake Stripe API.
func (t *Tester) SetStripeDown(down bool) {
	atomic.StoreInt32(&t.stripeDown, boolToInt32(down))
}

// SetAirtableDown toggles failures of the fake Airtable API.
func (t *Tester) SetAirtableDown(down bool) {
	atomic.StoreInt32(&t.airtableDown, boolToInt32(down))
}

// SignedWebhook delivers the payload to the API's webhook signed with the
// right secret.
func (t *Tester) SignedWebhook(payload []byte) (api.WebhookPOST, error) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    WebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return t.Webhook(signed.Payload, signed.Header)
}

// closeFakes closes the fake collaborators.
func (t *Tester) closeFakes() error {
	if t.staticStripe != nil {
		t.staticStripe.Close()
	}
	if t.staticAirtable != nil {
		t.staticAirtable.Close()
	}
	return nil
}

// serveStripe imitates the checkout session endpoint of the Stripe API.
func (t *Tester) serveStripe(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if atomic.LoadInt32(&t.stripeDown) == 1 || req.URL.Path != "/v1/checkout/sessions" {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"unavailable"}}`))
		return
	}
	t.mu.Lock()
	t.sessions++
	id := fmt.Sprintf("cs_test_%d", t.sessions)
	t.mu.Unlock()
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":     id,
		"object": "checkout.session",
	})
}

// serveAirtable imitates the create records endpoint of the Airtable API.
func (t *Tester) serveAirtable(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if atomic.LoadInt32(&t.airtableDown) == 1 {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"type":"INVALID_REQUEST_UNKNOWN","message":"unavailable"}}`))
		return
	}
	var body struct {
		Records []struct {
			Fields map[string]interface{} `json:"fields"`
		} `json:"records"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	type record struct {
		ID     string                 `json:"id"`
		Fields map[string]interface{} `json:"fields"`
	}
	var resp struct {
		Records []record `json:"records"`
	}
	t.mu.Lock()
	for _, r := range body.Records {
		t.rows = append(t.rows, r.Fields)
		resp.Records = append(resp.Records, record{
			ID:     fmt.Sprintf("rec%d", len(t.rows)),
			Fields: r.Fields,
		})
	}
	t.mu.Unlock()
	_ = json.NewEncoder(w).Encode(resp)
}

// boolToInt32 converts a bool to 0 or 1.
func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
