package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/SkynetLabs/checkout-bridge/payment"
	"gitlab.com/NebulousLabs/errors"
)

type (
	// Client is a client for the API.
	Client struct {
		staticAddr   string
		staticClient *http.Client
	}
)

// NewClient creates a new client for the API at the given address, e.g.
// http://localhost:3000.
func NewClient(addr string) *Client {
	return &Client{
		staticAddr:   strings.TrimSuffix(addr, "/"),
		staticClient: &http.Client{},
	}
}

// Root calls the / endpoint.
func (c *Client) Root() (string, error) {
	b, err := c.do(http.MethodGet, "/", nil, nil)
	return string(b), err
}

// Health calls the /health endpoint.
func (c *Client) Health() (HealthGET, error) {
	var h HealthGET
	err := c.getJSON("/health", &h)
	return h, err
}

// Info calls the /info endpoint.
func (c *Client) Info() (InfoGET, error) {
	var i InfoGET
	err := c.getJSON("/info", &i)
	return i, err
}

// Config calls the /config endpoint.
func (c *Client) Config() (ConfigGET, error) {
	var cfg ConfigGET
	err := c.getJSON("/config", &cfg)
	return cfg, err
}

// Metrics returns the text exposition of the /metrics endpoint.
func (c *Client) Metrics() (string, error) {
	b, err := c.do(http.MethodGet, "/metrics", nil, nil)
	return string(b), err
}

// CreateCheckoutSession calls the /create-checkout-session endpoint.
func (c *Client) CreateCheckoutSession() (CheckoutSessionPOST, error) {
	var cs CheckoutSessionPOST
	b, err := c.do(http.MethodPost, "/create-checkout-session", nil, nil)
	if err != nil {
		return cs, err
	}
	err = json.Unmarshal(b, &cs)
	return cs, err
}

// Webhook delivers a webhook payload with the given signature header.
func (c *Client) Webhook(payload []byte, signature string) (WebhookPOST, error) {
	var wh WebhookPOST
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if signature != "" {
		headers[payment.SignatureHeader] = signature
	}
	b, err := c.do(http.MethodPost, "/webhook", payload, headers)
	if err != nil {
		return wh, err
	}
	err = json.Unmarshal(b, &wh)
	return wh, err
}

// getJSON performs a GET request and decodes the JSON response into obj.
func (c *Client) getJSON(path string, obj interface{}) error {
	b, err := c.do(http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, obj)
}

// do performs a request and returns the response body. Non-2xx responses
// are returned as an Error.
func (c *Client) do(method, path string, body []byte, headers map[string]string) ([]byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.staticAddr+path, r)
	if err != nil {
		return nil, errors.AddContext(err, "failed to create request")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.staticClient.Do(req)
	if err != nil {
		return nil, errors.AddContext(err, "request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.AddContext(err, "failed to read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, Error{
			Message:    strings.TrimSpace(string(b)),
			StatusCode: resp.StatusCode,
		}
	}
	return b, nil
}
