package events

import (
	"testing"
	"time"
)

func TestPublishFanOut(t *testing.T) {
	h := NewEventHub()
	a, b := h.Subscribe(), h.Subscribe()
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	h.Publish(CalibrationDue, CalibrationDueEvent{Calibrated: true, Message: "time to recalibrate", Ts: 42})

	for _, ch := range []chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.Name != CalibrationDue {
				t.Fatalf("unexpected event name %q", ev.Name)
			}
			payload, err := DecodeAs[CalibrationDueEvent](ev)
			if err != nil {
				t.Fatalf("DecodeAs failed: %v", err)
			}
			if !payload.Calibrated || payload.Ts != 42 {
				t.Fatalf("unexpected payload %+v", payload)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive event")
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		h.Publish(CalibrationTransition, CalibrationTransitionEvent{Ts: int64(i)})
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("expected buffer to be full with %d events, got %d", subscriberBuffer, len(ch))
	}

	h.Unsubscribe(ch)
	if h.Subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}
	// Unsubscribing twice must not panic on a closed channel.
	h.Unsubscribe(ch)
}

func TestNilHub(t *testing.T) {
	var h *EventHub
	h.Publish(CalibrationError, CalibrationErrorEvent{Message: "ignored"})
	if h.Subscribers() != 0 {
		t.Fatalf("nil hub has no subscribers")
	}
}

func TestDecodeAsEmpty(t *testing.T) {
	v, err := DecodeAs[CalibrationErrorEvent](Event{Name: CalibrationError})
	if err != nil || v.Message != "" {
		t.Fatalf("expected zero value, got %+v, %v", v, err)
	}
}
