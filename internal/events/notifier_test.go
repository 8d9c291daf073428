package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribersInOrder(t *testing.T) {
	n := NewNotifier()
	var got []string

	n.Subscribe("board", func(e Event) { got = append(got, "board:"+string(e.Kind)) })
	n.Subscribe("stream", func(e Event) { got = append(got, "stream:"+string(e.Kind)) })

	n.Publish(Event{Kind: BookingCommitted, AppointmentID: uuid.New()})

	assert.Equal(t, []string{"board:booking.committed", "stream:booking.committed"}, got)
	assert.Equal(t, []string{"board", "stream"}, n.Subscribers())
}

func TestUnsubscribe(t *testing.T) {
	var n Notifier
	calls := 0
	unsubscribe := n.Subscribe("board", func(Event) { calls++ })

	n.Publish(Event{Kind: AppointmentUpdated})
	unsubscribe()
	unsubscribe()
	n.Publish(Event{Kind: AppointmentUpdated})

	assert.Equal(t, 1, calls)
	assert.Empty(t, n.Subscribers())
}

func TestPublishStampsTime(t *testing.T) {
	n := NewNotifier()
	var got Event
	n.Subscribe("probe", func(e Event) { got = e })

	n.Publish(Event{Kind: AppointmentCancelled})
	assert.False(t, got.At.IsZero())
}

func TestSubscribeChan(t *testing.T) {
	n := NewNotifier()
	ch, unsubscribe := n.SubscribeChan("ws", 1)

	n.Publish(Event{Kind: AppointmentRescheduled})
	n.Publish(Event{Kind: AppointmentCancelled}) // dropped, buffer full

	e := <-ch
	assert.Equal(t, AppointmentRescheduled, e.Kind)

	unsubscribe()
	_, open := <-ch
	require.False(t, open)

	// publishing after unsubscribe is a no-op
	n.Publish(Event{Kind: AppointmentUpdated})
}

func TestNilNotifierPublish(t *testing.T) {
	var n *Notifier
	n.Publish(Event{Kind: BookingCommitted})
}
