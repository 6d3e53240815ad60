package sse

import (
	"sync"
	"testing"
)

func TestBroker_PublishSubscribe(t *testing.T) {
	b := NewBroker[int]()
	a := b.Subscribe(4)
	c := b.Subscribe(4)
	if n := b.SubscriberCount(); n != 2 {
		t.Fatalf("SubscriberCount = %d, want 2", n)
	}

	b.Publish(7)
	for _, ch := range []chan int{a, c} {
		if got := <-ch; got != 7 {
			t.Errorf("got %d, want 7", got)
		}
	}

	b.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Error("unsubscribed channel still open")
	}
	b.Unsubscribe(a)
	if n := b.SubscriberCount(); n != 1 {
		t.Errorf("SubscriberCount = %d, want 1", n)
	}
}

func TestBroker_FullSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker[string]()
	ch := b.Subscribe(1)
	b.Publish("first")
	b.Publish("second")

	if got := <-ch; got != "first" {
		t.Errorf("got %q, want first", got)
	}
	if d := b.Dropped(); d != 1 {
		t.Errorf("Dropped = %d, want 1", d)
	}
}

func TestBroker_Concurrent(t *testing.T) {
	b := NewBroker[int]()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := b.Subscribe(16)
			for j := 0; j < 100; j++ {
				b.Publish(j)
			}
			b.Unsubscribe(ch)
		}()
	}
	wg.Wait()
	if n := b.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount = %d, want 0", n)
	}
}
