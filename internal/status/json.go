package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Mode            string     `json:"mode"`
	Power           bool       `json:"power"`
	RequestedPower  bool       `json:"requested_power"`
	TargetTemp      int        `json:"target_temp"`
	LocalTargetTemp int        `json:"local_target_temp"`
	ActualTemp      int        `json:"actual_temp"`
	NextAlarm       string     `json:"next_alarm,omitempty"`
	Authenticated   bool       `json:"authenticated"`
	UptimeSeconds   int64      `json:"uptime_seconds"`
	StartTime       string     `json:"start_time"`
	Timestamp       string     `json:"timestamp"`
	MQTT            MQTTStatus `json:"mqtt"`
	Config          ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	BedPollMs   int64  `json:"bed_poll_ms"`
	AlarmPollMs int64  `json:"alarm_poll_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Mode:            snap.Bed.Mode.String(),
		Power:           snap.Bed.BedState,
		RequestedPower:  snap.Bed.RequestedState,
		TargetTemp:      snap.Bed.BedTargetTemp,
		LocalTargetTemp: snap.Bed.LocalTargetTemp,
		ActualTemp:      snap.Bed.BedActualTemp,
		Authenticated:   snap.Authenticated,
		UptimeSeconds:   int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:       snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:       snap.Now.UTC().Format(time.RFC3339),
		MQTT:            MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			BedPollMs:   snap.Config.BedPollMs,
			AlarmPollMs: snap.Config.AlarmPollMs,
			DebounceMs:  snap.Config.DebounceMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if snap.Bed.NextAlarm != nil {
		inner.NextAlarm = snap.Bed.NextAlarm.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
