package network

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
)

func TestEncodeDecodeEvent(t *testing.T) {
	ev := Event{
		Type:      EventProgress,
		Source:    "run1.mzML",
		Dest:      "run1.mzparquet",
		Converted: 1000,
		Skipped:   2,
		State:     "streaming",
	}

	msg, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	if len(msg.Frames) != 2 || string(msg.Frames[0]) != Topic {
		t.Fatalf("Unexpected frames: %q", msg.Frames)
	}

	got, err := DecodeEvent(msg)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if got.Timestamp.IsZero() {
		t.Error("Expected timestamp to be filled in")
	}
	got.Timestamp = time.Time{}
	if got != ev {
		t.Errorf("Expected %+v, got %+v", ev, got)
	}
}

func TestDecodeEventRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		msg  zmq4.Msg
	}{
		{"single frame", zmq4.NewMsg([]byte(`{}`))},
		{"wrong topic", zmq4.NewMsgFrom([]byte("other"), []byte(`{}`))},
		{"bad json", zmq4.NewMsgFrom([]byte(Topic), []byte(`{`))},
	}
	for _, tt := range tests {
		if _, err := DecodeEvent(tt.msg); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestPublisherNotRunning(t *testing.T) {
	p := NewZmqPublisher("inproc://not-started")
	if err := p.Notify(Event{Type: EventStarted}); !errors.Is(err, ErrPublisherNotRunning) {
		t.Errorf("Expected ErrPublisherNotRunning, got %v", err)
	}
	stats := p.GetStats()
	if stats.IsRunning || stats.Sent != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	// Stop on a publisher that never started is a no-op.
	p.Stop()
}

func TestPublisherDeliversToSubscriber(t *testing.T) {
	endpoint := "inproc://mzparquet-progress-test"
	p := NewZmqPublisher(endpoint)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	if err := p.Start(); err == nil {
		t.Error("Second Start should fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := zmq4.NewSub(ctx)
	defer sub.Close()
	if err := sub.Dial(endpoint); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, Topic); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Subscriptions propagate asynchronously; publish until one arrives.
	received := make(chan Event, 1)
	go func() {
		msg, err := sub.Recv()
		if err != nil {
			return
		}
		if ev, err := DecodeEvent(msg); err == nil {
			received <- ev
		}
	}()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case ev := <-received:
			if ev.Type != EventFinished || ev.Converted != 42 {
				t.Errorf("Unexpected event %+v", ev)
			}
			if p.GetStats().Sent == 0 {
				t.Error("Expected sent counter to advance")
			}
			return
		case <-ticker.C:
			if err := p.Notify(Event{Type: EventFinished, Source: "a.mzML", Converted: 42}); err != nil {
				t.Fatalf("Notify failed: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("Timeout waiting for event")
		}
	}
}
