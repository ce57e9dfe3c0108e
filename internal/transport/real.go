package transport

import (
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// userAgent matches what the provider's own mobile app sends. Some
// endpoints reject unrecognized clients.
const userAgent = "okhttp/3.6.0"

// DefaultTimeout bounds how long a single request may take before it
// is failed locally.
const DefaultTimeout = 30 * time.Second

// HTTPClient is the real transport over net/http. At most one request
// may be in flight per instance; the request deadline replaces any
// notion of retrying here.
type HTTPClient struct {
	httpc *http.Client
	busy  atomic.Bool
}

// NewHTTPClient creates a transport with the given per-request timeout.
// A timeout of zero uses DefaultTimeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		httpc: &http.Client{Timeout: timeout},
	}
}

// Send issues the request on a new goroutine and invokes cb with the
// outcome. Returns ErrBusy without invoking cb if a request is already
// in flight.
func (c *HTTPClient) Send(method, url, contentType, body string, headers map[string]string, cb Callback) error {
	if !c.busy.CompareAndSwap(false, true) {
		log.Printf("transport: rejecting %s %s: already busy", method, url)
		return ErrBusy
	}

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		c.busy.Store(false)
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	if method != http.MethodGet && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	go func() {
		resp, err := c.httpc.Do(req)
		if err != nil {
			log.Printf("transport: %s %s failed: %v", method, url, err)
			c.busy.Store(false)
			cb(Result{})
			return
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			log.Printf("transport: %s %s: reading body failed: %v", method, url, err)
			c.busy.Store(false)
			cb(Result{})
			return
		}

		// Clear busy before the callback so the client is reusable
		// from inside it.
		c.busy.Store(false)
		cb(Result{
			OK:      true,
			Status:  resp.StatusCode,
			Headers: resp.Header,
			Body:    data,
		})
	}()
	return nil
}
