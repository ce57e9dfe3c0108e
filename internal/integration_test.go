package internal

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Katharine/hypnos/internal/eightsleep"
	"github.com/Katharine/hypnos/internal/mqtt"
	"github.com/Katharine/hypnos/internal/state"
	"github.com/Katharine/hypnos/internal/transport"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestIntegrationFullFlow drives the complete flow with a scripted
// transport: login, device resolution, bed read, alarm fetch, then a
// local edit reconciled back to the server and published to MQTT.
func TestIntegrationFullFlow(t *testing.T) {
	fake := transport.NewFakeClient(
		transport.OKJSON(`{"session":{"userId":"user-1","token":"legacy-tok"}}`),
		transport.OKJSON(`{"access_token":"oauth-tok"}`),
		transport.OKJSON(`{"user":{"currentDevice":{"id":"dev-9","side":"right"}}}`),
		transport.OKJSON(`{"result":{"rightKelvin":{"level":4,"currentTargetLevel":5,"active":true},"rightHeatingLevel":4}}`),
		transport.OKJSON(`{"alarms":[{"id":"a1","enabled":true,"time":"07:00:00","nextTimestamp":"2030-01-01T07:00:00Z"}]}`),
		transport.OKJSON(`{"result":{"rightKelvin":{"level":4,"currentTargetLevel":9,"active":true},"rightHeatingLevel":4}}`),
	)

	client := eightsleep.New(fake)
	client.SetLogin("user@example.com", "hunter2")

	sched := &state.FakeScheduler{}
	mgr := state.NewWithHooks(client, time.Now, sched.NewTimer)
	defer mgr.Close()

	publisher := mqtt.NewFakePublisher()
	mgr.SetUpdateCallback(func(s state.State) {
		publisher.PublishState(time.Now(), s)
	})

	authed := false
	client.Authenticate(func(ok bool) { authed = ok })
	if !authed {
		t.Fatal("authentication failed")
	}

	mgr.Start()
	waitFor(t, "initial sync", func() bool {
		s := mgr.GetState()
		return s.Valid() && s.NextAlarm != nil
	})

	s := mgr.GetState()
	if s.Mode != state.ModeSynced || s.BedTargetTemp != 5 || !s.BedState {
		t.Fatalf("unexpected initial state: %+v", s)
	}
	if got := s.NextAlarm.Format(time.RFC3339); got != "2030-01-01T07:00:00Z" {
		t.Errorf("unexpected next alarm %s", got)
	}

	// The startup request sequence, in order.
	wantSuffixes := []string{
		"/login",
		"/users/oauth-token",
		"/users/me",
		"/devices/dev-9",
		"/users/user-1/alarms",
	}
	if len(fake.Requests) != len(wantSuffixes) {
		t.Fatalf("expected %d requests, got %d", len(wantSuffixes), len(fake.Requests))
	}
	for i, suffix := range wantSuffixes {
		if !strings.HasSuffix(fake.Requests[i].URL, suffix) {
			t.Errorf("request %d: got %s, want suffix %s", i, fake.Requests[i].URL, suffix)
		}
	}

	// A local edit diverges the state, and the debounce write-back
	// reconciles it.
	mgr.SetTargetTemp(9)
	waitFor(t, "diverged state", func() bool { return mgr.GetState().Mode == state.ModeDiverged })

	sched.Last().Fire()
	waitFor(t, "reconciled state", func() bool {
		s := mgr.GetState()
		return s.Mode == state.ModeSynced && s.BedTargetTemp == 9
	})

	write := fake.Requests[len(fake.Requests)-1]
	if write.Method != "PUT" || !strings.HasSuffix(write.URL, "/devices/dev-9/right/level/9") {
		t.Errorf("unexpected write-back request %s %s", write.Method, write.URL)
	}

	// Every published change reached MQTT; the last payload reflects
	// the reconciled state.
	if len(publisher.StatePayloads) == 0 {
		t.Fatal("no state payloads published")
	}
	var decoded mqtt.StatePayload
	if err := json.Unmarshal(publisher.StatePayloads[len(publisher.StatePayloads)-1], &decoded); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if decoded.Bed.Mode != "SYNCED" || decoded.Bed.TargetTemp != 9 {
		t.Errorf("unexpected final payload: %+v", decoded.Bed)
	}
}
