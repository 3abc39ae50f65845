package main

import "fmt"

// unconfiguredTransport is the default cloud.Transport used when no
// concrete message-broker implementation has been wired in. It reports
// itself as permanently disconnected, which keeps shadowd serving local
// Get/Update/Delete requests (and queuing sync work) without ever
// attempting a cloud round trip. Operators embedding shadowd with a
// real MQTT client supply their own cloud.Transport to engine.New
// instead of this one.
type unconfiguredTransport struct {
	changeHandlers []func(bool)
}

func newUnconfiguredTransport() *unconfiguredTransport {
	return &unconfiguredTransport{}
}

func (t *unconfiguredTransport) Connected() bool { return false }

func (t *unconfiguredTransport) Publish(string, []byte) error {
	return fmt.Errorf("shadowd: no cloud transport configured")
}

func (t *unconfiguredTransport) Subscribe(string, func([]byte)) error {
	return fmt.Errorf("shadowd: no cloud transport configured")
}

func (t *unconfiguredTransport) Unsubscribe(string) error { return nil }

func (t *unconfiguredTransport) OnConnectionChange(handler func(bool)) {
	t.changeHandlers = append(t.changeHandlers, handler)
}
