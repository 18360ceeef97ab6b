package bus

import (
	"testing"
)

func TestMemoryBus_FanOut(t *testing.T) {
	b := NewMemoryBus()
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	b.Publish(TopicTradeEntered, map[string]interface{}{"tradeId": "t1"})

	for i, sub := range []<-chan Event{sub1, sub2} {
		events := Drain(sub)
		if len(events) != 1 {
			t.Fatalf("subscriber %d: expected 1 event, got %d", i, len(events))
		}
		if events[0].Topic != TopicTradeEntered {
			t.Errorf("subscriber %d: wrong topic %s", i, events[0].Topic)
		}
		if events[0].Payload["tradeId"] != "t1" {
			t.Errorf("subscriber %d: wrong payload %v", i, events[0].Payload)
		}
	}
}

func TestMemoryBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewMemoryBus()
	b.Subscribe() // never drained

	// The publisher must never block, even past the buffer size.
	for i := 0; i < 2000; i++ {
		b.Publish(TopicMonitorTick, map[string]interface{}{"n": i})
	}
}

func TestMultiPublisher(t *testing.T) {
	b1 := NewMemoryBus()
	b2 := NewMemoryBus()
	sub1 := b1.Subscribe()
	sub2 := b2.Subscribe()

	m := Multi{b1, b2}
	m.Publish(TopicSignalAccepted, map[string]interface{}{"signalId": "s1"})

	if len(Drain(sub1)) != 1 || len(Drain(sub2)) != 1 {
		t.Error("Multi should deliver to every publisher")
	}
}
