package mutter

import (
	"context"
	"testing"
	"time"
)

func TestChannelSource_ForwardsUpdates(t *testing.T) {
	source := make(chan []Change, 3)
	for _, raw := range []string{"one", "two", "three"} {
		source <- Document([]byte(raw))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := NewChannelSource(source).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	for i, exp := range []string{"one", "two", "three"} {
		select {
		case v := <-out:
			if len(v) != 1 || string(v[0].Raw) != exp || len(v[0].Path) != 0 {
				t.Errorf("expected root document %s, got %v", exp, v)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timeout waiting for update %d", i)
		}
	}
}

func TestChannelSource_ClosesOnSourceClose(t *testing.T) {
	source := make(chan []Change, 1)
	source <- Document([]byte("value"))
	close(source)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := NewChannelSource(source).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	<-out

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for channel close")
	}
}

func TestChannelSource_ClosesOnContextCancel(t *testing.T) {
	source := make(chan []Change)
	ctx, cancel := context.WithCancel(context.Background())

	out, err := NewChannelSource(source).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for channel close")
	}
}

func TestChannelSource_CancelWhileBlockedOnSend(t *testing.T) {
	source := make(chan []Change, 1)
	source <- Document([]byte("value"))
	ctx, cancel := context.WithCancel(context.Background())

	out, err := NewChannelSource(source).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// Give the forwarder time to block on the unread send.
	time.Sleep(10 * time.Millisecond)
	cancel()

	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for channel close")
		}
	}
}

func TestSyncChannelSource_ReturnsChannel(t *testing.T) {
	source := make(chan []Change, 1)
	out, err := NewSyncChannelSource(source).Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	source <- Document([]byte("x"))
	select {
	case v := <-out:
		if string(v[0].Raw) != "x" {
			t.Errorf("expected x, got %s", v[0].Raw)
		}
	default:
		t.Error("expected sync source to hand out the channel directly")
	}
}
