// Package api wraps the transport with the provider's three
// authentication tiers (unauthenticated, legacy session token, OAuth
// bearer token), JSON decoding, and fixed-delay retries.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Katharine/hypnos/internal/metrics"
	"github.com/Katharine/hypnos/internal/transport"
)

// Client credentials for the OAuth token exchange. These identify the
// official mobile app and are baked into it.
const (
	ClientID     = "0894c7f33bb94800a03f1f4df13a4f38"
	ClientSecret = "f0954a3ed5763ba3d06834c73731a32f15f168f47d4f164751275def86db0c76"
)

// RetryDelay is the fixed wait between transport retries.
const RetryDelay = 5 * time.Second

// DefaultRetryLimit is the retry budget domain calls use.
const DefaultRetryLimit = 3

var (
	// ErrNotLoggedIn is a precondition failure: a legacy-tier call was
	// made without a session token. No transport attempt is made.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrNoOAuthToken is a precondition failure: an OAuth-tier call was
	// made without a bearer token. No transport attempt is made.
	ErrNoOAuthToken = errors.New("no oauth token available")

	// ErrTransport tags a request that failed at the transport level
	// after exhausting its retry budget.
	ErrTransport = errors.New("request failed")

	// ErrDecode tags a well-delivered response whose body was not
	// valid JSON. Never retried.
	ErrDecode = errors.New("JSON decode failed")
)

// Document is a decoded JSON response body.
type Document map[string]any

// Callback receives either a decoded document or an error.
type Callback func(Document, error)

// RequestParams describes a single API call. Constructed per call and
// consumed immediately; never stored.
type RequestParams struct {
	URL         string
	Method      string // defaults to GET
	Payload     string
	ContentType string // defaults to application/x-www-form-urlencoded
	RetryLimit  int    // number of retries after the first attempt
	Callback    Callback
}

// UserAuth holds the credentials for the three tiers. Fields are set
// only as side effects of a successful authentication call.
type UserAuth struct {
	UserID      *string
	LegacyToken *string
	OAuthToken  *string
}

// Client is the tiered API client. All mutation of Auth is serialized
// by the state manager's worker; the client itself takes no locks.
type Client struct {
	Auth UserAuth

	transport transport.Client

	// schedule delays a retry without blocking the caller. Replaced in
	// tests to fire immediately.
	schedule func(time.Duration, func())
}

// New creates a tiered client over the given transport.
func New(t transport.Client) *Client {
	return &Client{
		transport: t,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// Unauthed makes a request with no credential attached.
func (c *Client) Unauthed(params RequestParams) {
	c.do(params, nil)
}

// Legacy makes a request bearing the legacy session token. Fails fast
// with ErrNotLoggedIn if no token is held.
func (c *Client) Legacy(params RequestParams) {
	if c.Auth.LegacyToken == nil {
		params.Callback(nil, ErrNotLoggedIn)
		return
	}
	c.do(params, map[string]string{"Session-Token": *c.Auth.LegacyToken})
}

// OAuth makes a request bearing the OAuth token. Fails fast with
// ErrNoOAuthToken if no token is held.
func (c *Client) OAuth(params RequestParams) {
	if c.Auth.OAuthToken == nil {
		params.Callback(nil, ErrNoOAuthToken)
		return
	}
	c.do(params, map[string]string{"Authorization": "Bearer " + *c.Auth.OAuthToken})
}

func (c *Client) do(params RequestParams, headers map[string]string) {
	if params.Method == "" {
		params.Method = http.MethodGet
	}
	if params.ContentType == "" {
		params.ContentType = "application/x-www-form-urlencoded"
	}
	c.attempt(params, headers, params.RetryLimit)
}

// attempt issues one transport exchange, retrying on a timer until the
// budget is spent. Retries are scheduled, not busy-looped, so the
// calling goroutine is never blocked.
func (c *Client) attempt(params RequestParams, headers map[string]string, remaining int) {
	err := c.transport.Send(params.Method, params.URL, params.ContentType, params.Payload, headers, func(res transport.Result) {
		if !res.OK {
			c.retryOrFail(params, headers, remaining)
			return
		}
		doc, derr := Decode(res.Body)
		if derr != nil {
			params.Callback(nil, fmt.Errorf("%w: %v", ErrDecode, derr))
			return
		}
		params.Callback(doc, nil)
	})
	if err != nil {
		// Busy transport or unbuildable request: same treatment as a
		// transport-level failure.
		log.Printf("api: send %s %s: %v", params.Method, params.URL, err)
		c.retryOrFail(params, headers, remaining)
	}
}

func (c *Client) retryOrFail(params RequestParams, headers map[string]string, remaining int) {
	if remaining > 0 {
		log.Printf("api: %s %s failed, retrying in %v (%d attempts remain)", params.Method, params.URL, RetryDelay, remaining)
		metrics.TransportRetries.Inc()
		c.schedule(RetryDelay, func() {
			c.attempt(params, headers, remaining-1)
		})
		return
	}
	params.Callback(nil, fmt.Errorf("%w: %s %s", ErrTransport, params.Method, params.URL))
}

// Decode parses a response body into a Document. An empty body is a
// structurally-successful empty document, not a decode failure.
func Decode(body []byte) (Document, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return Document{}, nil
	}
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// MakePostData url-encodes a form body from the given fields.
func MakePostData(fields map[string]string) string {
	values := url.Values{}
	for key, value := range fields {
		values.Set(key, value)
	}
	return values.Encode()
}
