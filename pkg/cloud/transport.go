package cloud

// Transport is the consumed message-broker interface the cloud client
// publishes requests over and receives accepted/rejected/delta responses
// on. A concrete implementation (MQTT, or a test fake) satisfies this;
// this package never dials a broker itself.
type Transport interface {
	// Connected reports whether the transport currently has a live
	// connection to the broker.
	Connected() bool

	// Publish sends payload on topic.
	Publish(topic string, payload []byte) error

	// Subscribe registers handler to be called with the payload of every
	// message published on topic.
	Subscribe(topic string, handler func(payload []byte)) error

	// Unsubscribe removes any handler registered for topic.
	Unsubscribe(topic string) error

	// OnConnectionChange registers a callback invoked whenever the
	// transport's connection state changes.
	OnConnectionChange(handler func(connected bool))
}
