package payment

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

const (
	testSecretKey     = "sk_test_123"
	testWebhookSecret = "whsec_test_123"
)

// newTestStripe creates a Stripe instance talking to the given API URL.
func newTestStripe(t *testing.T, apiURL string) *Stripe {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s, err := New(logrus.NewEntry(logger), Options{
		SecretKey:     testSecretKey,
		WebhookSecret: testWebhookSecret,
		BaseURL:       "http://localhost:3000",
		APIURL:        apiURL,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// TestNewMissingSecrets verifies that New refuses incomplete options.
func TestNewMissingSecrets(t *testing.T) {
	t.Parallel()

	log := logrus.NewEntry(logrus.New())
	if _, err := New(log, Options{WebhookSecret: "whsec"}); err == nil {
		t.Fatal("expected error for missing secret key")
	}
	if _, err := New(log, Options{SecretKey: "sk"}); err == nil {
		t.Fatal("expected error for missing webhook secret")
	}
}

// TestCreateCheckoutSession verifies the request sent to Stripe and that
// the session id is returned.
func TestCreateCheckoutSession(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected path %v", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer "+testSecretKey {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		expected := map[string]string{
			"mode":                                          "payment",
			"payment_method_types[0]":                       "card",
			"line_items[0][price_data][currency]":           "usd",
			"line_items[0][price_data][unit_amount]":        "2000",
			"line_items[0][price_data][product_data][name]": "Stripe Smart Checkout Product",
			"line_items[0][quantity]":                       "1",
			"success_url":                                   "http://localhost:3000/success.html",
			"cancel_url":                                    "http://localhost:3000/cancel.html",
		}
		for k, v := range expected {
			if got := r.PostForm.Get(k); got != v {
				t.Errorf("param %v: expected %q, got %q", k, v, got)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_abc","object":"checkout.session"}`))
	}))
	defer srv.Close()

	s := newTestStripe(t, srv.URL)
	id, err := s.CreateCheckoutSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id != "cs_test_abc" {
		t.Fatal("unexpected id", id)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatal("expected exactly one call", n)
	}
}

// TestCreateCheckoutSessionFailure verifies that API errors are returned
// without retrying.
func TestCreateCheckoutSessionFailure(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
	}))
	defer srv.Close()

	s := newTestStripe(t, srv.URL)
	if _, err := s.CreateCheckoutSession(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatal("expected no retries", n)
	}
}

// TestConstructEvent verifies signature checking of webhook payloads.
func TestConstructEvent(t *testing.T) {
	t.Parallel()

	s := newTestStripe(t, "")
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session"}}}`)

	// Valid signature.
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	event, err := s.ConstructEvent(signed.Payload, signed.Header)
	if err != nil {
		t.Fatal(err)
	}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		t.Fatal("unexpected type", event.Type)
	}
	if event.ID != "evt_1" {
		t.Fatal("unexpected id", event.ID)
	}

	// Signed with a different secret.
	forged := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_other",
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	if _, err := s.ConstructEvent(forged.Payload, forged.Header); err == nil {
		t.Fatal("expected signature error")
	}

	// Missing header.
	if _, err := s.ConstructEvent(payload, ""); err == nil {
		t.Fatal("expected error for missing header")
	}

	// Stale timestamp.
	stale := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now().Add(-time.Hour),
		Scheme:    "v1",
	})
	if _, err := s.ConstructEvent(stale.Payload, stale.Header); err == nil {
		t.Fatal("expected error for stale timestamp")
	}
}
