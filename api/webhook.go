package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/SkynetLabs/checkout-bridge/database"
	"github.com/SkynetLabs/checkout-bridge/metrics"
	"github.com/SkynetLabs/checkout-bridge/payment"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v80"
	"gitlab.com/NebulousLabs/errors"
)

const (
	// maxWebhookBodySize is the largest webhook payload we accept.
	maxWebhookBodySize = 1 << 16

	// defaultCustomerName is used for orders without a customer name.
	defaultCustomerName = "Anonymous"

	// defaultCustomerEmail is used for orders without any customer email.
	defaultCustomerEmail = "N/A"
)

var (
	// errMalformedSession is returned when a verified event doesn't carry a
	// usable checkout session.
	errMalformedSession = errors.New("event doesn't contain a checkout session")
)

// webhookPOST receives events from the payment provider. Once the signature
// is verified the delivery is always acknowledged with a 200, even if
// persisting the order fails, since the provider would otherwise redeliver
// the event.
//
// NOTE: deliveries are not deduplicated. A redelivered
// checkout.session.completed event creates another order.
func (api *API) webhookPOST(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxWebhookBodySize))
	if err != nil {
		err = errors.AddContext(err, "failed to read body")
	}
	var event stripe.Event
	if err == nil {
		event, err = api.staticPayments.ConstructEvent(payload, req.Header.Get(payment.SignatureHeader))
	}
	if err != nil {
		api.staticLogger.WithError(err).Warn("Webhook signature error")
		api.staticMetrics.WebhookEvent(metrics.EventTypeUnknown, metrics.StatusSignatureError)
		api.WriteText(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
		return
	}

	eventType := string(event.Type)
	api.staticMetrics.WebhookEvent(eventType, metrics.StatusReceived)
	logger := api.staticLogger.WithFields(logrus.Fields{
		"event": event.ID,
		"type":  eventType,
	})

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		api.staticMetrics.Payment(metrics.StatusCompleted)
		sess, err := checkoutSessionFromEvent(event)
		if err != nil {
			logger.WithError(err).Error("Failed to decode checkout session")
			api.staticMetrics.WebhookEvent(eventType, metrics.StatusMalformed)
			break
		}
		// The order is written even if the provider hangs up on us.
		api.saveOrder(context.WithoutCancel(req.Context()), logger, orderFromSession(sess))
	default:
		logger.Debug("Webhook event ignored")
		api.staticMetrics.WebhookEvent(eventType, metrics.StatusProcessed)
	}
	api.WriteJSON(w, WebhookPOST{Received: true})
}

// saveOrder writes the order to the record store. Failures are logged and
// counted but not returned.
func (api *API) saveOrder(ctx context.Context, logger *logrus.Entry, order database.OrderRecord) {
	store := api.staticStore.Name()
	logger = logger.WithField("session", order.SessionID)

	api.staticMetrics.RecordStoreOperation(store, metrics.OperationCreate, metrics.StatusInitiated)
	if err := api.staticStore.CreateOrder(ctx, order); err != nil {
		logger.WithError(err).Error("Failed to save order")
		api.staticMetrics.RecordStoreOperation(store, metrics.OperationCreate, metrics.StatusFailed)
		return
	}
	logger.Info("Order saved")
	api.staticMetrics.RecordStoreOperation(store, metrics.OperationCreate, metrics.StatusSuccess)
}

// checkoutSessionFromEvent decodes the checkout session carried by the
// event.
func checkoutSessionFromEvent(event stripe.Event) (*stripe.CheckoutSession, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, errMalformedSession
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, errors.Compose(err, errMalformedSession)
	}
	if sess.ID == "" {
		return nil, errMalformedSession
	}
	return &sess, nil
}

// orderFromSession creates the order record for a completed checkout
// session. The amount is converted from minor units.
func orderFromSession(sess *stripe.CheckoutSession) database.OrderRecord {
	name := defaultCustomerName
	if sess.CustomerDetails != nil && sess.CustomerDetails.Name != "" {
		name = sess.CustomerDetails.Name
	}
	email := defaultCustomerEmail
	if sess.CustomerEmail != "" {
		email = sess.CustomerEmail
	} else if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		email = sess.CustomerDetails.Email
	}
	return database.OrderRecord{
		Name:      name,
		Email:     email,
		Amount:    float64(sess.AmountTotal) / 100,
		Status:    string(sess.PaymentStatus),
		SessionID: sess.ID,
	}
}
