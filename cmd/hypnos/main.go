// Command hypnos mirrors and controls a remote smart-mattress device:
// it reconciles knob edits against the provider's API, tracks the
// alarm schedule, and publishes state to MQTT and HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Katharine/hypnos/internal/eightsleep"
	"github.com/Katharine/hypnos/internal/knob"
	"github.com/Katharine/hypnos/internal/mqtt"
	"github.com/Katharine/hypnos/internal/state"
	"github.com/Katharine/hypnos/internal/status"
	"github.com/Katharine/hypnos/internal/transport"
	"github.com/Katharine/hypnos/internal/web"
)

// Provider temperature levels run from -100 (full cool) to 100 (full heat).
const (
	minTemp = -100
	maxTemp = 100
)

// Credential env var names, loaded from the env file.
const (
	envEmail    = "EIGHTSLEEP_EMAIL"
	envPassword = "EIGHTSLEEP_PASSWORD"
)

func main() {
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	httpAddr := flag.String("http", ":80", "HTTP status address (empty to disable)")
	envFile := flag.String("env", "/etc/hypnos.env", "Path to credentials env file")
	timeout := flag.Duration("timeout", transport.DefaultTimeout, "HTTP request timeout")
	pinA := flag.Int("pin-a", knob.DefaultPinA, "BCM pin number for encoder A")
	pinB := flag.Int("pin-b", knob.DefaultPinB, "BCM pin number for encoder B")
	pinButton := flag.Int("pin-button", knob.DefaultPinButton, "BCM pin number for encoder button")
	knobPoll := flag.Duration("knob-poll", 50*time.Millisecond, "Encoder polling interval")
	tempStep := flag.Int("temp-step", 1, "Temperature change per encoder detent")

	flag.Parse()

	if err := run(*broker, *httpAddr, *envFile, *timeout, *pinA, *pinB, *pinButton, *knobPoll, *tempStep); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(broker, httpAddr, envFile string, timeout time.Duration, pinA, pinB, pinButton int, knobPoll time.Duration, tempStep int) error {
	// Credentials come from the env file, or from the environment
	// directly when the file is absent.
	if err := godotenv.Load(envFile); err != nil {
		log.Printf("env file %s not loaded: %v", envFile, err)
	}
	email := os.Getenv(envEmail)
	password := os.Getenv(envPassword)
	if email == "" || password == "" {
		return fmt.Errorf("missing credentials: set %s and %s", envEmail, envPassword)
	}

	// Engine: transport -> tiered API -> domain client -> state manager
	client := eightsleep.New(transport.NewHTTPClient(timeout))
	client.SetLogin(email, password)

	mgr := state.New(client)
	defer mgr.Close()

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(broker)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		BedPollMs:   state.BedPollInterval.Milliseconds(),
		AlarmPollMs: state.AlarmPollInterval.Milliseconds(),
		DebounceMs:  state.WriteDebounce.Milliseconds(),
		Broker:      broker,
		HTTPAddr:    httpAddr,
		EnvFile:     envFile,
	})

	// Fan state changes out to the tracker and the broker. Runs on
	// the manager's worker; alarm edges become MQTT events.
	var lastPublished state.State
	mgr.SetUpdateCallback(func(s state.State) {
		tracker.Update(s)
		tracker.SetMQTTConnected(publisher.IsConnected())
		if err := publisher.PublishState(time.Now(), s); err != nil {
			log.Printf("state publish error: %v", err)
		}
		if s.IsAlarming() != lastPublished.IsAlarming() {
			eventType := mqtt.EventAlarmStopped
			if s.IsAlarming() {
				eventType = mqtt.EventAlarmStarted
			}
			if err := publisher.PublishEvent(mqtt.Event{Timestamp: time.Now(), Type: eventType, State: s}); err != nil {
				log.Printf("event publish error: %v", err)
			}
		}
		lastPublished = s
	})

	startup := mqtt.SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	// Start HTTP status server
	if httpAddr != "" {
		srv := web.New(httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", httpAddr)
	}

	// Authenticate, then start the pollers. A failed login is
	// retryable: the reauth timer keeps trying.
	client.Authenticate(func(ok bool) {
		tracker.SetAuthenticated(ok)
		if !ok {
			log.Printf("initial authentication failed, will retry on reauth timer")
		}
		mgr.Start()
	})

	// Initialize the encoder; run headless when unavailable.
	var encoder knob.Encoder
	if realEncoder, err := knob.NewRealEncoder(pinA, pinB, pinButton); err != nil {
		log.Printf("init knob failed, running headless: %v", err)
	} else {
		encoder = realEncoder
		defer realEncoder.Close()
	}

	log.Printf("started: broker=%s http=%s knob-poll=%v", broker, httpAddr, knobPoll)

	ticker := time.NewTicker(knobPoll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	return runLoop(mgr, encoder, publisher, tempStep, time.Now, ticker.C, sigCh)
}

// runLoop translates encoder movement into engine commands and handles
// signals. Extracted so tests can drive it with fakes and channels.
func runLoop(mgr *state.Manager, encoder knob.Encoder, publisher mqtt.Publisher, tempStep int, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	buttonWasPressed := false

	for {
		select {
		case s := <-sig:
			if s == syscall.SIGHUP {
				// The host re-synced its clock; recompute the
				// expected-alarm timer.
				log.Printf("received SIGHUP, treating as wall-clock resync")
				mgr.ClockSynced()
				continue
			}
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			if encoder == nil {
				continue
			}
			delta, pressed, err := encoder.Read()
			if err != nil {
				log.Printf("knob read error: %v", err)
				continue
			}

			snap := mgr.GetState()

			if delta != 0 && snap.Valid() && !snap.IsAlarming() {
				mgr.SetTargetTemp(clampTemp(snap.LocalTargetTemp + delta*tempStep))
			}

			if pressed && !buttonWasPressed {
				if snap.IsAlarming() {
					mgr.StopAlarm(nil)
				} else if snap.Valid() {
					mgr.SetBedState(!snap.RequestedState)
				}
			}
			buttonWasPressed = pressed
		}
	}
}

func clampTemp(t int) int {
	if t < minTemp {
		return minTemp
	}
	if t > maxTemp {
		return maxTemp
	}
	return t
}
