// Package knob reads the rotary encoder with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package knob

// Encoder reads rotary movement and the push button.
type Encoder interface {
	// Read returns the rotation delta accumulated since the last call
	// (positive = clockwise) and whether the button is pressed.
	Read() (delta int, pressed bool, err error)

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	DefaultPinA      = 17
	DefaultPinB      = 27
	DefaultPinButton = 22
)
