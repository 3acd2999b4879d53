package mqtt

// FakePublisher records what the daemon would have sent to the broker.
// Payloads are formatted exactly as the real publisher formats them.
type FakePublisher struct {
	Readings       []Reading
	Payloads       [][]byte
	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	// Injected failures; a failed call records nothing.
	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records r and its payload.
func (f *FakePublisher) Publish(r Reading) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(r)
	if err != nil {
		return err
	}
	f.Readings = append(f.Readings, r)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records event and its payload.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Lux returns the published lux values in order.
func (f *FakePublisher) Lux() []float64 {
	out := make([]float64, 0, len(f.Readings))
	for _, r := range f.Readings {
		out = append(out, r.Lux)
	}
	return out
}

// LastReading returns the most recent reading, if any.
func (f *FakePublisher) LastReading() (Reading, bool) {
	if len(f.Readings) == 0 {
		return Reading{}, false
	}
	return f.Readings[len(f.Readings)-1], true
}

// Events returns the recorded system events named name (e.g. "HEARTBEAT")
// with their payloads.
func (f *FakePublisher) Events(name string) ([]SystemEvent, [][]byte) {
	var events []SystemEvent
	var payloads [][]byte
	for i, e := range f.SystemEvents {
		if e.Event == name {
			events = append(events, e)
			payloads = append(payloads, f.SystemPayloads[i])
		}
	}
	return events, payloads
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected returns Connected.
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded messages and injected errors.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{}
}
