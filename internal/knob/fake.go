package knob

import "errors"

// Sample represents one scripted encoder reading.
type Sample struct {
	Delta   int
	Pressed bool
}

// FakeEncoder is a test double that returns scripted readings.
type FakeEncoder struct {
	// Samples contains scripted readings to return.
	// Each call to Read() consumes the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeEncoder creates a FakeEncoder with the given samples.
func NewFakeEncoder(samples []Sample) *FakeEncoder {
	return &FakeEncoder{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, it reports no movement.
func (f *FakeEncoder) Read() (int, bool, error) {
	if f.ReadError != nil {
		return 0, false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return 0, false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	} else {
		// Exhausted: report rest as no movement.
		f.Samples[f.index] = Sample{}
	}

	return sample.Delta, sample.Pressed, nil
}

// Close marks the encoder as closed.
func (f *FakeEncoder) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the encoder to the beginning of samples.
func (f *FakeEncoder) Reset() {
	f.index = 0
	f.Closed = false
}
