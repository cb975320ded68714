package test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/SkynetLabs/checkout-bridge/api"
)

// newTestTester creates a tester and closes it at the end of the test.
func newTestTester(t *testing.T) *Tester {
	t.Helper()
	tester, err := newTester()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := tester.Close(); err != nil {
			t.Fatal(err)
		}
	})
	return tester
}

// completedEvent returns a checkout.session.completed event payload.
func completedEvent(t *testing.T, session map[string]interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"id":     "evt_" + session["id"].(string),
		"object": "event",
		"type":   "checkout.session.completed",
		"data": map[string]interface{}{
			"object": session,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// TestStaticEndpoints runs the side-effect free endpoints against a live
// API.
func TestStaticEndpoints(t *testing.T) {
	t.Parallel()
	tester := newTestTester(t)

	root, err := tester.Root()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(root, "Server is up and running") {
		t.Fatal("unexpected root", root)
	}
	h, err := tester.Health()
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != "healthy" || h.Uptime < 0 || h.Environment != "test" {
		t.Fatal("unexpected health", h)
	}
	info, err := tester.Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.Application != "Stripe Smart Checkout" || info.Version != "1.0.0" {
		t.Fatal("unexpected info", info)
	}
	cfg, err := tester.Config()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PublishableKey != PublishableKey {
		t.Fatal("unexpected publishable key", cfg.PublishableKey)
	}
}

// TestCheckoutFlow creates a checkout session, completes it through the
// webhook and checks the resulting row and metrics.
func TestCheckoutFlow(t *testing.T) {
	t.Parallel()
	tester := newTestTester(t)

	cs, err := tester.CreateCheckoutSession()
	if err != nil {
		t.Fatal(err)
	}
	if cs.ID != "cs_test_1" {
		t.Fatal("unexpected session", cs.ID)
	}

	payload := completedEvent(t, map[string]interface{}{
		"id":             cs.ID,
		"object":         "checkout.session",
		"amount_total":   2000,
		"payment_status": "paid",
		"customer_details": map[string]interface{}{
			"email": "a@b.com",
		},
	})
	resp, err := tester.SignedWebhook(payload)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Received {
		t.Fatal("not acknowledged")
	}

	rows := tester.Rows()
	if len(rows) != 1 {
		t.Fatal("expected exactly one row", len(rows))
	}
	row := rows[0]
	if row["Name"] != "Anonymous" || row["Email"] != "a@b.com" || row["Amount"] != float64(20) || row["Status"] != "paid" || row["SessionID"] != cs.ID {
		t.Fatal("unexpected row", row)
	}

	m, err := tester.Metrics()
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{
		`stripe_payments_total{app="stripe-checkout",status="initiated"} 1`,
		`stripe_payments_total{app="stripe-checkout",status="completed"} 1`,
		`record_store_operations_total{app="stripe-checkout",operation="create",status="success",store="airtable"} 1`,
		`http_requests_total{app="stripe-checkout",method="POST",route="/webhook",status="200"} 1`,
	}
	for _, e := range expected {
		if !strings.Contains(m, e) {
			t.Fatalf("missing %q in\n%s", e, m)
		}
	}
}

// TestCheckoutStripeDown verifies that an unavailable payment provider
// yields a 500.
func TestCheckoutStripeDown(t *testing.T) {
	t.Parallel()
	tester := newTestTester(t)

	tester.SetStripeDown(true)
	_, err := tester.CreateCheckoutSession()
	apiErr, ok := err.(api.Error)
	if !ok {
		t.Fatalf("expected api.Error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatal("unexpected status", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Message, "Failed to create checkout session") {
		t.Fatal("unexpected message", apiErr.Message)
	}

	// Recovers once Stripe is back.
	tester.SetStripeDown(false)
	if _, err := tester.CreateCheckoutSession(); err != nil {
		t.Fatal(err)
	}
}

// TestWebhookAirtableDown verifies that store failures are not surfaced to
// the payment provider.
func TestWebhookAirtableDown(t *testing.T) {
	t.Parallel()
	tester := newTestTester(t)

	tester.SetAirtableDown(true)
	payload := completedEvent(t, map[string]interface{}{
		"id":           "cs_test_down",
		"amount_total": 4200,
	})
	if _, err := tester.SignedWebhook(payload); err != nil {
		t.Fatal(err)
	}
	if len(tester.Rows()) != 0 {
		t.Fatal("unexpected row")
	}
	m, err := tester.Metrics()
	if err != nil {
		t.Fatal(err)
	}
	expected := `record_store_operations_total{app="stripe-checkout",operation="create",status="failed",store="airtable"} 1`
	if !strings.Contains(m, expected) {
		t.Fatalf("missing %q in\n%s", expected, m)
	}
}

// TestWebhookUnsigned verifies that unsigned deliveries are rejected with a
// 400 and never written.
func TestWebhookUnsigned(t *testing.T) {
	t.Parallel()
	tester := newTestTester(t)

	payload := completedEvent(t, map[string]interface{}{
		"id":           "cs_test_unsigned",
		"amount_total": 2000,
	})
	_, err := tester.Webhook(payload, "")
	apiErr, ok := err.(api.Error)
	if !ok {
		t.Fatalf("expected api.Error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatal("unexpected status", apiErr.StatusCode)
	}
	if !strings.HasPrefix(apiErr.Message, "Webhook Error:") {
		t.Fatal("unexpected message", apiErr.Message)
	}
	if len(tester.Rows()) != 0 {
		t.Fatal("unsigned event was written")
	}
}
