package eightsleep

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/Katharine/hypnos/internal/api"
	"github.com/Katharine/hypnos/internal/transport"
)

const (
	clientAPI = "https://client-api.8slp.net/v1"
	appAPI    = "https://app-api.8slp.net/v1"
)

// Turning the bed on encodes as a long heating duration in provider
// seconds; off encodes as zero.
const (
	bedOnDuration  = 72000 // 20 hours
	bedOffDuration = 0
)

// ErrBadResponse tags a semantic failure: well-formed JSON missing the
// fields an operation requires. Distinct from transport and decode
// failures; never retried.
var ErrBadResponse = errors.New("malformed response")

// Client exposes the bed and alarm domain operations. All calls are
// asynchronous: they return immediately and deliver their result via
// callback once the underlying request completes.
//
// The device id and bed side are resolved lazily on the first call
// that needs them and cached for the process lifetime. Mutation of
// cached identity and auth tokens is serialized by the state manager's
// worker; the client itself takes no locks.
type Client struct {
	email    string
	password string

	api *api.Client

	deviceID string
	bedSide  string
}

// New creates a domain client over the given transport.
func New(t transport.Client) *Client {
	return &Client{api: api.New(t)}
}

// SetLogin sets the credentials used by Authenticate.
func (c *Client) SetLogin(email, password string) {
	c.email = email
	c.password = password
}

// Authenticate logs in against the legacy API and then trades the
// session token for an OAuth token. cb(true) only if both steps
// succeed and every expected field was present.
func (c *Client) Authenticate(cb func(bool)) {
	log.Printf("eightsleep: making initial auth request")
	c.api.Unauthed(api.RequestParams{
		URL:        clientAPI + "/login",
		Method:     http.MethodPost,
		Payload:    api.MakePostData(map[string]string{"email": c.email, "password": c.password}),
		RetryLimit: api.DefaultRetryLimit,
		Callback: func(doc api.Document, err error) {
			if err != nil {
				log.Printf("eightsleep: auth request failed: %v", err)
				cb(false)
				return
			}
			session, ok := getObject(doc, "session")
			if !ok {
				log.Printf("eightsleep: auth result doesn't contain session object")
				cb(false)
				return
			}
			userID, okID := getString(session, "userId")
			token, okToken := getString(session, "token")
			if !okID || !okToken {
				log.Printf("eightsleep: userId and/or token missing from session object")
				cb(false)
				return
			}
			c.api.Auth.UserID = &userID
			c.api.Auth.LegacyToken = &token

			log.Printf("eightsleep: trading for OAuth token")
			c.api.Legacy(api.RequestParams{
				URL:        clientAPI + "/users/oauth-token",
				Method:     http.MethodPost,
				Payload:    api.MakePostData(map[string]string{"client_id": api.ClientID, "client_secret": api.ClientSecret}),
				RetryLimit: api.DefaultRetryLimit,
				Callback: func(doc api.Document, err error) {
					if err != nil {
						log.Printf("eightsleep: OAuth exchange failed: %v", err)
						cb(false)
						return
					}
					oauthToken, ok := getString(doc, "access_token")
					if !ok {
						log.Printf("eightsleep: OAuth exchange response has no access token")
						cb(false)
						return
					}
					c.api.Auth.OAuthToken = &oauthToken
					log.Printf("eightsleep: authentication complete")
					cb(true)
				},
			})
		},
	})
}

// GetAlarms fetches the user's alarm schedule. Requires a prior
// successful Authenticate.
func (c *Client) GetAlarms(cb func([]Alarm, error)) {
	if c.api.Auth.UserID == nil {
		cb(nil, fmt.Errorf("user is not logged in"))
		return
	}
	c.api.OAuth(api.RequestParams{
		URL:        appAPI + "/users/" + *c.api.Auth.UserID + "/alarms",
		Method:     http.MethodGet,
		RetryLimit: api.DefaultRetryLimit,
		Callback: func(doc api.Document, err error) {
			if err != nil {
				cb(nil, fmt.Errorf("fetching alarms failed: %w", err))
				return
			}
			raw, _ := doc["alarms"].([]any)
			alarms := make([]Alarm, 0, len(raw))
			for _, entry := range raw {
				record, ok := entry.(map[string]any)
				if !ok {
					continue
				}
				alarms = append(alarms, parseAlarm(record))
			}
			cb(alarms, nil)
		},
	})
}

// HasActiveAlarm reports whether an alarm is currently firing. The
// signal is the presence of the singular "alarm" key; the plural
// "alarms" array is always present and always empty here.
func (c *Client) HasActiveAlarm(cb func(bool, error)) {
	if c.api.Auth.UserID == nil {
		cb(false, fmt.Errorf("user is not logged in"))
		return
	}
	c.api.OAuth(api.RequestParams{
		URL:        appAPI + "/users/" + *c.api.Auth.UserID + "/alarms/active",
		Method:     http.MethodGet,
		RetryLimit: api.DefaultRetryLimit,
		Callback: func(doc api.Document, err error) {
			if err != nil {
				cb(false, err)
				return
			}
			_, active := doc["alarm"]
			cb(active, nil)
		},
	})
}

// StopAlarms stops any active alarm. Fails closed if either credential
// it needs is missing.
func (c *Client) StopAlarms(cb func(bool)) {
	if c.api.Auth.UserID == nil || c.api.Auth.OAuthToken == nil {
		cb(false)
		return
	}
	c.api.OAuth(api.RequestParams{
		URL:        appAPI + "/users/" + *c.api.Auth.UserID + "/alarms/active/stop",
		Method:     http.MethodPut,
		RetryLimit: api.DefaultRetryLimit,
		Callback: func(doc api.Document, err error) {
			if err != nil {
				log.Printf("eightsleep: stop alarm request failed: %v", err)
				cb(false)
				return
			}
			cb(true)
		},
	})
}

// GetDeviceID resolves and caches the user's current device id and bed
// side. The fetch happens at most once per process.
func (c *Client) GetDeviceID(cb func(string, error)) {
	if c.deviceID != "" {
		cb(c.deviceID, nil)
		return
	}
	c.api.Legacy(api.RequestParams{
		URL:        clientAPI + "/users/me",
		Method:     http.MethodGet,
		RetryLimit: api.DefaultRetryLimit,
		Callback: func(doc api.Document, err error) {
			if err != nil {
				cb("", err)
				return
			}
			user, ok := getObject(doc, "user")
			if !ok {
				cb("", fmt.Errorf("%w: no user object", ErrBadResponse))
				return
			}
			device, ok := getObject(user, "currentDevice")
			if !ok {
				cb("", fmt.Errorf("%w: no current device", ErrBadResponse))
				return
			}
			id, okID := getString(device, "id")
			side, okSide := getString(device, "side")
			if !okID || !okSide {
				cb("", fmt.Errorf("%w: device id or side missing", ErrBadResponse))
				return
			}
			c.deviceID = id
			c.bedSide = side
			log.Printf("eightsleep: resolved device %s (side %s)", id, side)
			cb(id, nil)
		},
	})
}

// GetBedStatus fetches the bed's current power and temperature state,
// resolving the device id first if necessary.
func (c *Client) GetBedStatus(cb func(Bed, error)) {
	c.withDevice(cb, func() {
		c.api.Legacy(api.RequestParams{
			URL:        clientAPI + "/devices/" + c.deviceID,
			Method:     http.MethodGet,
			RetryLimit: api.DefaultRetryLimit,
			Callback: func(doc api.Document, err error) {
				if err != nil {
					cb(Bed{}, err)
					return
				}
				cb(c.parseBedResult(doc))
			},
		})
	})
}

// SetBedState turns the bed on or off.
func (c *Client) SetBedState(on bool, cb func(Bed, error)) {
	duration := bedOffDuration
	if on {
		duration = bedOnDuration
	}
	c.withDevice(cb, func() {
		c.api.Legacy(api.RequestParams{
			URL:        fmt.Sprintf("%s/devices/%s/%s/duration/%d", clientAPI, c.deviceID, c.bedSide, duration),
			Method:     http.MethodPut,
			RetryLimit: api.DefaultRetryLimit,
			Callback: func(doc api.Document, err error) {
				if err != nil {
					cb(Bed{}, err)
					return
				}
				cb(c.parseBedResult(doc))
			},
		})
	})
}

// SetTemp sets the bed's target temperature level.
func (c *Client) SetTemp(level int, cb func(Bed, error)) {
	c.withDevice(cb, func() {
		c.api.Legacy(api.RequestParams{
			URL:        fmt.Sprintf("%s/devices/%s/%s/level/%d", clientAPI, c.deviceID, c.bedSide, level),
			Method:     http.MethodPut,
			RetryLimit: api.DefaultRetryLimit,
			Callback: func(doc api.Document, err error) {
				if err != nil {
					cb(Bed{}, err)
					return
				}
				cb(c.parseBedResult(doc))
			},
		})
	})
}

// withDevice runs fn once the device id is known, resolving it first
// when it has not yet been fetched.
func (c *Client) withDevice(cb func(Bed, error), fn func()) {
	if c.deviceID != "" {
		fn()
		return
	}
	c.GetDeviceID(func(_ string, err error) {
		if err != nil {
			cb(Bed{}, err)
			return
		}
		fn()
	})
}

// parseBedResult normalizes a device read or write response. The
// side-named kelvin block carries the target level and active flag,
// but the authoritative current temperature is the side-named
// heating-level field on the root result object. The kelvin block's
// own level is not it.
func (c *Client) parseBedResult(doc api.Document) (Bed, error) {
	result, ok := getObject(doc, "result")
	if !ok {
		return Bed{}, fmt.Errorf("%w: no result object", ErrBadResponse)
	}
	kelvin, ok := getObject(result, c.bedSide+"Kelvin")
	if !ok {
		return Bed{}, fmt.Errorf("%w: no %sKelvin block", ErrBadResponse, c.bedSide)
	}
	if _, ok := getInt(kelvin, "level"); !ok {
		return Bed{}, fmt.Errorf("%w: kelvin block has no level", ErrBadResponse)
	}
	target, okTarget := getInt(kelvin, "currentTargetLevel")
	active, okActive := getBool(kelvin, "active")
	if !okTarget || !okActive {
		return Bed{}, fmt.Errorf("%w: kelvin block is missing fields", ErrBadResponse)
	}
	current, ok := getInt(result, c.bedSide+"HeatingLevel")
	if !ok {
		return Bed{}, fmt.Errorf("%w: no %sHeatingLevel", ErrBadResponse, c.bedSide)
	}
	return Bed{
		CurrentTemp: current,
		TargetTemp:  target,
		Active:      active,
	}, nil
}

func parseAlarm(record map[string]any) Alarm {
	alarm := Alarm{
		ID:       stringOr(record, "id"),
		Time:     stringOr(record, "time"),
		NextTime: stringOr(record, "nextTimestamp"),
	}
	alarm.Enabled, _ = getBool(record, "enabled")
	alarm.Snoozing, _ = getBool(record, "snoozing")
	if repeat, ok := getObject(record, "repeat"); ok {
		alarm.RepeatDays = parseRepeatDays(repeat)
	}
	// Disabled or absent sub-objects normalize to zero intensity.
	if vibration, ok := getObject(record, "vibration"); ok {
		if enabled, _ := getBool(vibration, "enabled"); enabled {
			alarm.Vibration, _ = getInt(vibration, "powerLevel")
		}
	}
	if thermal, ok := getObject(record, "thermal"); ok {
		if enabled, _ := getBool(thermal, "enabled"); enabled {
			alarm.Thermal, _ = getInt(thermal, "level")
		}
	}
	return alarm
}

func parseRepeatDays(repeat map[string]any) Weekdays {
	var days Weekdays
	if enabled, _ := getBool(repeat, "enabled"); !enabled {
		return days
	}
	weekDays, ok := getObject(repeat, "weekDays")
	if !ok {
		return days
	}
	for d := Monday; d <= Sunday; d++ {
		if on, _ := getBool(weekDays, d.String()); on {
			days.Set(d, true)
		}
	}
	return days
}

func getObject(doc map[string]any, key string) (map[string]any, bool) {
	obj, ok := doc[key].(map[string]any)
	return obj, ok
}

func getString(doc map[string]any, key string) (string, bool) {
	s, ok := doc[key].(string)
	return s, ok
}

func stringOr(doc map[string]any, key string) string {
	s, _ := getString(doc, key)
	return s
}

func getBool(doc map[string]any, key string) (bool, bool) {
	b, ok := doc[key].(bool)
	return b, ok
}

func getInt(doc map[string]any, key string) (int, bool) {
	// encoding/json decodes all numbers as float64.
	f, ok := doc[key].(float64)
	return int(f), ok
}
