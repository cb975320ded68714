package api

import (
	"net/http"
	"time"

	"github.com/SkynetLabs/checkout-bridge/metrics"
	"github.com/julienschmidt/httprouter"
)

const (
	// applicationName is reported by the /info endpoint.
	applicationName = "Stripe Smart Checkout"

	// applicationVersion is reported by the /info endpoint.
	applicationVersion = "1.0.0"

	// statusHealthy is the only status reported by /health. If the process
	// can answer, it's healthy.
	statusHealthy = "healthy"

	// livenessMessage is the body returned by the root endpoint.
	livenessMessage = "✅ Server is up and running"

	// checkoutFailedMessage is returned to the caller when a checkout
	// session couldn't be created. It purposefully hides the cause.
	checkoutFailedMessage = "Failed to create checkout session"
)

// rootGET is a plain liveness check.
func (api *API) rootGET(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	api.WriteText(w, livenessMessage, http.StatusOK)
}

// healthGET returns the status of the service
func (api *API) healthGET(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	api.WriteJSON(w, HealthGET{
		Status:      statusHealthy,
		Timestamp:   time.Now().UTC(),
		Uptime:      api.uptime(),
		Environment: api.staticConfig.Environment,
	})
}

// infoGET returns information about the application.
func (api *API) infoGET(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	api.WriteJSON(w, InfoGET{
		Application:     applicationName,
		Version:         applicationVersion,
		Environment:     api.staticConfig.Environment,
		Uptime:          api.uptime(),
		Timestamp:       time.Now().UTC(),
		MetricsEndpoint: "/metrics",
		HealthEndpoint:  "/health",
	})
}

// configGET returns the public configuration needed by the frontend.
func (api *API) configGET(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	api.WriteJSON(w, ConfigGET{
		PublishableKey: api.staticConfig.PublishableKey,
	})
}

// metricsGET serves a snapshot of all metrics.
func (api *API) metricsGET(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	api.staticMetrics.Handler().ServeHTTP(w, req)
}

// checkoutSessionPOST creates a new checkout session for the product and
// returns its id. Every call creates a new session.
func (api *API) checkoutSessionPOST(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	id, err := api.staticPayments.CreateCheckoutSession(req.Context())
	if err != nil {
		api.staticMetrics.Payment(metrics.StatusFailed)
		api.staticLogger.WithError(err).Error("Failed to create checkout session")
		api.writeJSON(w, checkoutError{Error: checkoutFailedMessage}, http.StatusInternalServerError)
		return
	}
	api.staticMetrics.Payment(metrics.StatusInitiated)
	api.staticLogger.WithField("session", id).Info("Checkout session created")
	api.WriteJSON(w, CheckoutSessionPOST{ID: id})
}
