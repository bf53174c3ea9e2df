package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewEvent_StampsIDAndTimestamp(t *testing.T) {
	before := time.Now().UTC()
	e := NewEvent(Thinking{})
	if e.ID == "" || e.Timestamp.Before(before) || e.Timestamp.Location() != time.UTC {
		t.Fatalf("NewEvent did not initialize fields correctly: %+v", e)
	}
	if e.Type.Kind() != "thinking" {
		t.Fatalf("unexpected kind %q", e.Type.Kind())
	}
	if e.UnixSeconds() <= 0 {
		t.Fatalf("expected positive unix seconds")
	}
	if NewEvent(Thinking{}).ID == e.ID {
		t.Fatalf("expected unique ids")
	}
}

func TestEventChannel_OrderedDeliveryToAllSubscribers(t *testing.T) {
	ch := NewEventChannel()
	a := ch.Subscribe()
	b := ch.Subscribe()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := ch.Publish(ctx, InvalidResponse{Response: string(rune('a' + i))}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	ch.Close()

	for _, sub := range []<-chan Event{a, b} {
		i := 0
		for ev := range sub {
			got := ev.Type.(InvalidResponse).Response
			if want := string(rune('a' + i)); got != want {
				t.Fatalf("event %d: want %q got %q", i, want, got)
			}
			i++
		}
		if i != 10 {
			t.Fatalf("expected 10 events, got %d", i)
		}
	}
}

func TestEventChannel_BlocksWhenSubscriberFull(t *testing.T) {
	ch := NewEventChannel(func(o *EventChannelOptions) { o.Buffer = 1 })
	sub := ch.Subscribe()
	ctx := context.Background()

	if err := ch.Publish(ctx, Thinking{}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var wg sync.WaitGroup
	published := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = ch.Publish(ctx, EmptyResponse{})
		close(published)
	}()

	select {
	case <-published:
		t.Fatalf("publish should block while the buffer is full")
	case <-time.After(50 * time.Millisecond):
	}

	if ev := <-sub; ev.Type.Kind() != "thinking" {
		t.Fatalf("unexpected first event %s", ev.Type.Kind())
	}
	wg.Wait()
	if ev := <-sub; ev.Type.Kind() != "empty_response" {
		t.Fatalf("unexpected second event %s", ev.Type.Kind())
	}
}

func TestEventChannel_PublishHonoursContext(t *testing.T) {
	ch := NewEventChannel(func(o *EventChannelOptions) { o.Buffer = 1 })
	_ = ch.Subscribe()
	if err := ch.Publish(context.Background(), Thinking{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := ch.Publish(ctx, Thinking{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestEventChannel_Closed(t *testing.T) {
	ch := NewEventChannel()
	ch.Close()
	ch.Close()
	if err := ch.Publish(context.Background(), Thinking{}); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
	if _, ok := <-ch.Subscribe(); ok {
		t.Fatalf("subscription on closed channel should be closed")
	}
}

func TestEventChannel_CloseUnblocksPublisher(t *testing.T) {
	ch := NewEventChannel(func(o *EventChannelOptions) { o.Buffer = 1 })
	_ = ch.Subscribe()
	_ = ch.Publish(context.Background(), Thinking{})

	errCh := make(chan error, 1)
	go func() { errCh <- ch.Publish(context.Background(), Thinking{}) }()
	time.Sleep(20 * time.Millisecond)
	ch.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrChannelClosed) {
			t.Fatalf("expected ErrChannelClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("publisher was not released by Close")
	}
}
