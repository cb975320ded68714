package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/SkynetLabs/checkout-bridge/metrics"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

const (
	// headerRequestID is the header carrying the id of a request.
	headerRequestID = "X-Request-ID"

	// routeStatic is the route label of requests served from the public
	// directory.
	routeStatic = "static"

	// routeMethodNotAllowed is the route label of requests for a known path
	// with the wrong method.
	routeMethodNotAllowed = "method_not_allowed"
)

type (
	// API manages the http API and all of its routes.
	API struct {
		staticConfig    Config
		staticListener  net.Listener
		staticLogger    *logrus.Entry
		staticMetrics   *metrics.Metrics
		staticPayments  PaymentProvider
		staticRouter    *httprouter.Router
		staticServer    *http.Server
		staticStartTime time.Time
		staticStore     OrderStore
	}

	// Config contains the settings of the API that aren't collaborators.
	Config struct {
		// Host is the interface to listen on. Empty means all interfaces.
		Host string
		// Port to listen on. 0 picks a random free port.
		Port int
		// Environment is the label of the deployment, e.g. "production".
		Environment string
		// PublishableKey is the public payment provider key handed to the
		// frontend.
		PublishableKey string
		// PublicDir is the directory static files are served from. Empty
		// disables static files.
		PublicDir string
	}

	// Error is the error type returned by the API in case the status code
	// is not a 2xx code.
	Error struct {
		Message    string `json:"message"`
		StatusCode int    `json:"-"`
	}

	// errorWrap is a helper type for converting an `error` struct to JSON.
	errorWrap struct {
		Message string `json:"message"`
	}

	// statusWriter remembers the status code written to the wrapped
	// ResponseWriter.
	statusWriter struct {
		http.ResponseWriter
		status int
	}
)

// Error implements the error interface for the Error type. It returns only the
// Message field.
func (err Error) Error() string {
	return err.Message
}

// New creates a new API with the given logger and collaborators.
func New(log *logrus.Entry, cfg Config, payments PaymentProvider, store OrderStore, m *metrics.Metrics) (*API, error) {
	l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		return nil, err
	}
	router := httprouter.New()
	router.RedirectTrailingSlash = true
	api := &API{
		staticConfig:    cfg,
		staticListener:  l,
		staticLogger:    log,
		staticMetrics:   m,
		staticPayments:  payments,
		staticRouter:    router,
		staticStartTime: time.Now(),
		staticStore:     store,
		staticServer: &http.Server{
			Handler: router,

			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       10 * time.Second,
		},
	}
	api.buildHTTPRoutes()
	return api, nil
}

// Address returns the address the API is listening on.
func (api *API) Address() string {
	return api.staticListener.Addr().String()
}

// ListenAndServe starts the API. To unblock this call Shutdown.
func (api *API) ListenAndServe() error {
	return api.staticServer.Serve(api.staticListener)
}

// Shutdown gracefully shuts down the API.
func (api *API) Shutdown(ctx context.Context) error {
	return api.staticServer.Shutdown(ctx)
}

// uptime returns the number of seconds since the API was created.
func (api *API) uptime() float64 {
	return time.Since(api.staticStartTime).Seconds()
}

// WithMetrics records the duration and status of every call to the handler
// under the given route. It also tags the request with a request id.
func (api *API) WithMetrics(route string, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		start := time.Now()
		rid := req.Header.Get(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(headerRequestID, rid)

		sw := &statusWriter{ResponseWriter: w}
		h(sw, req, ps)

		status := sw.Status()
		elapsed := time.Since(start)
		api.staticMetrics.ObserveRequest(req.Method, route, status, elapsed)
		api.staticLogger.WithFields(logrus.Fields{
			"method":   req.Method,
			"path":     req.URL.Path,
			"route":    route,
			"status":   status,
			"duration": elapsed,
			"request":  rid,
		}).Debug("Request served")
	}
}

// withMetricsHandler is WithMetrics for plain http.Handlers.
func (api *API) withMetricsHandler(route string, h http.Handler) http.Handler {
	handle := api.WithMetrics(route, func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, req)
	})
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		handle(w, req, nil)
	})
}

// WriteError an error to the API caller.
func (api *API) WriteError(w http.ResponseWriter, err error, code int) {
	api.staticLogger.WithError(err).WithField("statuscode", code).Debug("WriteError")
	api.writeJSON(w, errorWrap{Message: err.Error()}, code)
}

// WriteJSON writes the object to the ResponseWriter. If the encoding fails, an
// error is written instead. The Content-Type of the response header is set
// accordingly.
func (api *API) WriteJSON(w http.ResponseWriter, obj interface{}) {
	api.staticLogger.Debug("WriteJSON", obj)
	api.writeJSON(w, obj, http.StatusOK)
}

// WriteText writes a plain text message with the given status code.
func (api *API) WriteText(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	if _, err := w.Write([]byte(msg)); err != nil {
		api.staticLogger.WithError(err).Warn("Failed to write to response writer")
	}
}

// writeJSON encodes obj as the body of a response with the given code.
func (api *API) writeJSON(w http.ResponseWriter, obj interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(obj)
	if err != nil {
		api.staticLogger.WithError(err).Error("Failed to encode response object")
	}
}

// WriteHeader implements http.ResponseWriter.
func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write implements http.ResponseWriter.
func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Status returns the status code of the response. A handler that never
// wrote anything responded with 200.
func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
