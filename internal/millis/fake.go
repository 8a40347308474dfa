package millis

// FakeCounter is a test double whose count only moves when told to.
type FakeCounter struct {
	Now uint32
}

// NewFakeCounter creates a FakeCounter starting at start.
func NewFakeCounter(start uint32) *FakeCounter {
	return &FakeCounter{Now: start}
}

// Millis returns the scripted count.
func (f *FakeCounter) Millis() uint32 {
	return f.Now
}

// Advance moves the count forward by ms, wrapping like the real counter.
func (f *FakeCounter) Advance(ms uint32) {
	f.Now += ms
}
