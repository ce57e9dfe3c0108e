package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Katharine/hypnos/internal/transport"
)

// newTestClient builds a client whose retry timer fires immediately.
func newTestClient(fake *transport.FakeClient) *Client {
	c := New(fake)
	c.schedule = func(d time.Duration, fn func()) { fn() }
	return c
}

func strPtr(s string) *string { return &s }

func TestUnauthedSuccess(t *testing.T) {
	fake := transport.NewFakeClient(transport.OKJSON(`{"session":{"token":"abc"}}`))
	client := newTestClient(fake)

	var doc Document
	var err error
	client.Unauthed(RequestParams{
		URL: "https://example.test/login",
		Callback: func(d Document, e error) {
			doc, err = d, e
		},
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	session, ok := doc["session"].(map[string]any)
	if !ok || session["token"] != "abc" {
		t.Errorf("document not decoded: %v", doc)
	}
	req := fake.Requests[0]
	if req.Method != http.MethodGet {
		t.Errorf("expected GET default, got %s", req.Method)
	}
	if req.ContentType != "application/x-www-form-urlencoded" {
		t.Errorf("expected form content type default, got %s", req.ContentType)
	}
	if req.Headers != nil {
		t.Errorf("unauthed request should carry no auth headers, got %v", req.Headers)
	}
}

func TestLegacyRequiresToken(t *testing.T) {
	fake := transport.NewFakeClient()
	client := newTestClient(fake)

	var err error
	client.Legacy(RequestParams{
		URL:      "https://example.test/users/me",
		Callback: func(d Document, e error) { err = e },
	})

	if !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if len(fake.Requests) != 0 {
		t.Errorf("no transport attempt should be made, saw %d", len(fake.Requests))
	}
}

func TestLegacyAttachesSessionToken(t *testing.T) {
	fake := transport.NewFakeClient(transport.OKJSON(`{}`))
	client := newTestClient(fake)
	client.Auth.LegacyToken = strPtr("session-123")

	client.Legacy(RequestParams{
		URL:      "https://example.test/users/me",
		Callback: func(Document, error) {},
	})

	if got := fake.Requests[0].Headers["Session-Token"]; got != "session-123" {
		t.Errorf("expected session token header, got %q", got)
	}
}

func TestOAuthRequiresToken(t *testing.T) {
	fake := transport.NewFakeClient()
	client := newTestClient(fake)

	var err error
	client.OAuth(RequestParams{
		URL:      "https://example.test/v1/users/u/alarms",
		Callback: func(d Document, e error) { err = e },
	})

	if !errors.Is(err, ErrNoOAuthToken) {
		t.Fatalf("expected ErrNoOAuthToken, got %v", err)
	}
	if len(fake.Requests) != 0 {
		t.Errorf("no transport attempt should be made, saw %d", len(fake.Requests))
	}
}

func TestOAuthAttachesBearerToken(t *testing.T) {
	fake := transport.NewFakeClient(transport.OKJSON(`{}`))
	client := newTestClient(fake)
	client.Auth.OAuthToken = strPtr("tok-xyz")

	client.OAuth(RequestParams{
		URL:      "https://example.test/v1/users/u/alarms",
		Callback: func(Document, error) {},
	})

	if got := fake.Requests[0].Headers["Authorization"]; got != "Bearer tok-xyz" {
		t.Errorf("expected bearer header, got %q", got)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	// Always fails; with RetryLimit 3 the transport sees 4 attempts.
	fake := transport.NewFakeClient(transport.Result{})
	client := newTestClient(fake)

	var err error
	client.Unauthed(RequestParams{
		URL:        "https://example.test/flaky",
		RetryLimit: 3,
		Callback:   func(d Document, e error) { err = e },
	})

	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if len(fake.Requests) != 4 {
		t.Errorf("expected 4 attempts (1 + 3 retries), got %d", len(fake.Requests))
	}
}

func TestRetrySucceedsMidway(t *testing.T) {
	fake := transport.NewFakeClient(
		transport.Result{},
		transport.Result{},
		transport.OKJSON(`{"ok":true}`),
	)
	client := newTestClient(fake)

	var doc Document
	var err error
	client.Unauthed(RequestParams{
		URL:        "https://example.test/flaky",
		RetryLimit: 3,
		Callback:   func(d Document, e error) { doc, err = d, e },
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc["ok"] != true {
		t.Errorf("expected decoded success document, got %v", doc)
	}
	if len(fake.Requests) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(fake.Requests))
	}
}

func TestZeroRetryLimitMeansOneAttempt(t *testing.T) {
	fake := transport.NewFakeClient(transport.Result{})
	client := newTestClient(fake)

	var err error
	client.Unauthed(RequestParams{
		URL:      "https://example.test/flaky",
		Callback: func(d Document, e error) { err = e },
	})

	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if len(fake.Requests) != 1 {
		t.Errorf("expected a single attempt, got %d", len(fake.Requests))
	}
}

func TestDecodeFailureNotRetried(t *testing.T) {
	fake := transport.NewFakeClient(transport.OKJSON(`not json at all`))
	client := newTestClient(fake)

	var err error
	client.Unauthed(RequestParams{
		URL:        "https://example.test/garbled",
		RetryLimit: 3,
		Callback:   func(d Document, e error) { err = e },
	})

	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if len(fake.Requests) != 1 {
		t.Errorf("decode failures must not retry, got %d attempts", len(fake.Requests))
	}
}

func TestSendErrorTreatedAsTransportFailure(t *testing.T) {
	fake := transport.NewFakeClient()
	fake.Busy = true
	client := newTestClient(fake)

	var err error
	client.Unauthed(RequestParams{
		URL:      "https://example.test/busy",
		Callback: func(d Document, e error) { err = e },
	})

	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestDecode(t *testing.T) {
	doc, err := Decode([]byte(""))
	if err != nil || len(doc) != 0 {
		t.Errorf("empty body should decode to empty document, got %v %v", doc, err)
	}

	doc, err = Decode([]byte("  \n\t "))
	if err != nil || len(doc) != 0 {
		t.Errorf("whitespace body should decode to empty document, got %v %v", doc, err)
	}

	doc, err = Decode([]byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc["a"] != float64(1) {
		t.Errorf("unexpected document: %v", doc)
	}

	if _, err := Decode([]byte(`[1,2,3`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestMakePostData(t *testing.T) {
	got := MakePostData(map[string]string{
		"email":    "a b@example.com",
		"password": "p&q",
	})
	want := "email=a+b%40example.com&password=p%26q"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
