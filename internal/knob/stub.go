//go:build !linux

package knob

import "errors"

// RealEncoder is not available on non-Linux platforms.
type RealEncoder struct{}

// NewRealEncoder returns an error on non-Linux platforms.
func NewRealEncoder(pinA, pinB, pinButton int) (*RealEncoder, error) {
	return nil, errors.New("knob: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (e *RealEncoder) Read() (int, bool, error) {
	return 0, false, errors.New("knob: not supported")
}

// Close is not implemented on non-Linux platforms.
func (e *RealEncoder) Close() error {
	return nil
}
