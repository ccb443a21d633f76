package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Type: TypeJobFired, Data: "x"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != TypeJobFired {
				t.Fatalf("subscriber %d got %q", i, e.Type)
			}
			if e.Time.IsZero() {
				t.Fatalf("subscriber %d: event time not stamped", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	// Nobody drains; extra events are dropped instead of blocking.
	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: TypeReconciled})
	}
	if len(ch) != 1 {
		t.Fatalf("buffered %d events, want 1", len(ch))
	}
}

func TestUnsubscribeStopsDeliveryAndCloses(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)

	unsub()
	b.Publish(Event{Type: TypeOrphanScan}) // must not panic on a closed channel

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	unsub() // idempotent
}
