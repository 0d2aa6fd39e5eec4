package subscribe_test

import (
	"sync"
	"testing"
	"time"

	"gptchat/pkg/subscribe"
)

func recv(t *testing.T, ch <-chan subscribe.Event) subscribe.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no event delivered")
		return subscribe.Event{}
	}
}

func TestThreadFanOut(t *testing.T) {
	b := subscribe.NewBroker()
	ch1, cancel1 := b.SubscribeThreads("alice")
	defer cancel1()
	ch2, cancel2 := b.SubscribeThreads("alice")
	defer cancel2()
	chBob, cancelBob := b.SubscribeThreads("bob")
	defer cancelBob()

	b.ThreadsChanged("alice")

	for _, ch := range []<-chan subscribe.Event{ch1, ch2} {
		ev := recv(t, ch)
		if ev.Kind != "threads" || ev.Owner != "alice" {
			t.Fatalf("event %+v", ev)
		}
	}
	select {
	case ev := <-chBob:
		t.Fatalf("bob received alice's event: %+v", ev)
	default:
	}
}

func TestMessageTopicScoping(t *testing.T) {
	b := subscribe.NewBroker()
	ch, cancel := b.SubscribeMessages("alice", "thread-1")
	defer cancel()

	b.MessagesChanged("alice", "thread-2")
	select {
	case ev := <-ch:
		t.Fatalf("event for wrong thread: %+v", ev)
	default:
	}

	b.MessagesChanged("alice", "thread-1")
	ev := recv(t, ch)
	if ev.Kind != "messages" || ev.Thread != "thread-1" {
		t.Fatalf("event %+v", ev)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := subscribe.NewBroker()
	ch, cancel := b.SubscribeThreads("alice")
	cancel()
	// safe to call twice
	cancel()

	b.ThreadsChanged("alice")
	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("event after cancel: %+v", ev)
		}
	default:
	}
}

func TestConcurrentPublishAndCancel(t *testing.T) {
	b := subscribe.NewBroker()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		_, cancel := b.SubscribeThreads("alice")
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.ThreadsChanged("alice")
			}
		}()
		go func() {
			defer wg.Done()
			cancel()
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("publishers blocked during concurrent teardown")
	}
}

func TestSlowConsumerDoesNotBlock(t *testing.T) {
	b := subscribe.NewBroker()
	_, cancel := b.SubscribeThreads("alice")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// more events than the subscriber buffer holds; extras are dropped
		for i := 0; i < 100; i++ {
			b.ThreadsChanged("alice")
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow consumer")
	}
}
