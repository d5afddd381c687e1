package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
)

// Topic prefixes every published frame so subscribers can filter on it.
const Topic = "mzparquet"

// Event types
const (
	EventStarted  = "started"
	EventProgress = "progress"
	EventFinished = "finished"
	EventFailed   = "failed"
)

// Common errors for network operations
var (
	ErrPublisherNotRunning = errors.New("publisher is not running")
	ErrSendFailed          = errors.New("failed to send message")
)

// Event is one progress notification for a conversion job.
type Event struct {
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Dest      string    `json:"dest,omitempty"`
	Converted int64     `json:"converted"`
	Skipped   int64     `json:"skipped"`
	RowGroups int       `json:"row_groups,omitempty"`
	State     string    `json:"state,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives progress events. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ev Event) error
}

// NopNotifier discards every event.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(Event) error { return nil }

// EncodeEvent builds the two-frame message (topic, JSON body) for ev.
func EncodeEvent(ev Event) (zmq4.Msg, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return zmq4.Msg{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return zmq4.NewMsgFrom([]byte(Topic), data), nil
}

// DecodeEvent parses a message produced by EncodeEvent.
func DecodeEvent(msg zmq4.Msg) (Event, error) {
	var ev Event
	if len(msg.Frames) != 2 {
		return ev, fmt.Errorf("expected 2 frames, got %d", len(msg.Frames))
	}
	if string(msg.Frames[0]) != Topic {
		return ev, fmt.Errorf("unexpected topic %q", msg.Frames[0])
	}
	if err := json.Unmarshal(msg.Frames[1], &ev); err != nil {
		return ev, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return ev, nil
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	Endpoint  string `json:"endpoint"`
	IsRunning bool   `json:"is_running"`
	Sent      uint64 `json:"sent"`
	Failed    uint64 `json:"failed"`
}

// ZmqPublisher publishes events on a ZeroMQ PUB socket.
type ZmqPublisher struct {
	endpoint string

	ctx    context.Context
	cancel context.CancelFunc

	pub     zmq4.Socket
	mu      sync.Mutex
	running bool

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewZmqPublisher creates a publisher that will bind to endpoint,
// e.g. tcp://127.0.0.1:5557.
func NewZmqPublisher(endpoint string) *ZmqPublisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &ZmqPublisher{
		endpoint: endpoint,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start binds the PUB socket.
func (p *ZmqPublisher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("publisher already running")
	}

	p.pub = zmq4.NewPub(p.ctx)
	if err := p.pub.Listen(p.endpoint); err != nil {
		_ = p.pub.Close()
		return fmt.Errorf("failed to bind publisher: %w", err)
	}
	p.running = true
	return nil
}

// Stop closes the socket. Events sent afterwards return ErrPublisherNotRunning.
func (p *ZmqPublisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	p.cancel()
	_ = p.pub.Close()
}

// Notify publishes ev. Events are dropped by ZeroMQ when no subscriber is
// connected.
func (p *ZmqPublisher) Notify(ev Event) error {
	msg, err := EncodeEvent(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return ErrPublisherNotRunning
	}
	if err := p.pub.Send(msg); err != nil {
		p.failed.Add(1)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	p.sent.Add(1)
	return nil
}

// GetStats returns publisher statistics.
func (p *ZmqPublisher) GetStats() PublisherStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	return PublisherStats{
		Endpoint:  p.endpoint,
		IsRunning: running,
		Sent:      p.sent.Load(),
		Failed:    p.failed.Load(),
	}
}
