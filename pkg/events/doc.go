/*
Package events provides an in-memory event broker for shadowd's internal
lifecycle signals: cloud connect/disconnect, sync strategy start/stop,
conflict detection, and store open/close. These are operational events
for whoever subscribes (no package in this module subscribes), not the
client-facing shadow notifications pkg/notify publishes
(accepted/delta/documents/delete).

# Design

Publish hands the event to a buffered channel (100 events); it returns
as soon as the event is buffered, and while that buffer is full it
waits until the broadcast loop makes room or the broker is stopped. The
broadcast loop fans each event out to every subscriber's own buffered
channel, skipping subscribers whose buffer is full.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go func() {
		for ev := range sub {
			log.Info(ev.Message)
		}
	}()

	broker.Publish(&events.Event{Type: events.TypeCloudConnected})

This is fire-and-forget: no acknowledgment, no retry, no persistence.
That is the right trade-off for operational visibility but the wrong
one for anything a caller
needs delivered reliably: that belongs in pkg/queue or pkg/notify
instead.
*/
package events
