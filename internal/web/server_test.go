package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Katharine/hypnos/internal/state"
	"github.com/Katharine/hypnos/internal/status"
)

func startTestServer(t *testing.T) (*status.Tracker, string) {
	t.Helper()
	tracker := status.NewTracker(time.Now(), status.Config{
		BedPollMs: 60000,
		Broker:    "tcp://broker.test:1883",
	})
	srv := New("", tracker)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	return tracker, "http://" + ln.Addr().String()
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func TestIndexPage(t *testing.T) {
	tracker, base := startTestServer(t)
	next := time.Date(2026, 9, 2, 7, 30, 0, 0, time.UTC)
	tracker.Update(state.State{
		Mode:          state.ModeSynced,
		BedState:      true,
		BedTargetTemp: 7,
		NextAlarm:     &next,
	})
	tracker.SetAuthenticated(true)

	resp, body := get(t, base+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("unexpected content type %q", ct)
	}
	for _, want := range []string{"SYNCED", "ON", "2026-09-02T07:30:00Z", "tcp://broker.test:1883"} {
		if !strings.Contains(body, want) {
			t.Errorf("index page missing %q", want)
		}
	}
}

func TestIndexJSON(t *testing.T) {
	tracker, base := startTestServer(t)
	tracker.Update(state.State{Mode: state.ModeDiverged, LocalTargetTemp: 9})

	resp, body := get(t, base+"/index.json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}

	var decoded status.StatusJSON
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		t.Fatalf("body not valid JSON: %v", err)
	}
	if decoded.Status.Mode != "DIVERGED" || decoded.Status.LocalTargetTemp != 9 {
		t.Errorf("unexpected status: %+v", decoded.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, base := startTestServer(t)

	resp, body := get(t, base+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("metrics output missing standard collectors")
	}
}

func TestUnknownPathIs404(t *testing.T) {
	_, base := startTestServer(t)

	resp, _ := get(t, fmt.Sprintf("%s/not-here", base))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
