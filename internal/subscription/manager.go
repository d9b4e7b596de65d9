// Package subscription manages long-lived event streams from the daemon.
//
// Each subscription owns a dedicated socket connection, independent of the
// request/response connection, and runs one event loop that demultiplexes
// confirmation, heartbeats, and event notifications.
package subscription

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/wagiedev/daemonkit/internal/api"
	"github.com/wagiedev/daemonkit/internal/errors"
	"github.com/wagiedev/daemonkit/internal/rpc"
)

const (
	// DefaultBufferSize is the capacity of a subscription's event channel.
	DefaultBufferSize = 100

	// DefaultTickInterval is how often an idle loop logs that it is alive.
	DefaultTickInterval = 30 * time.Second

	writeTimeout = 5 * time.Second
)

// Options configures a Manager.
type Options struct {
	Logger       *slog.Logger
	BufferSize   int
	TickInterval time.Duration
}

// Handle is the caller's side of a subscription.
type Handle struct {
	// ID is the request id the subscription was opened with.
	ID uint64

	// Events delivers notifications in arrival order. It is closed when the
	// subscription ends for any reason.
	Events <-chan api.EventNotification

	// Done is closed after Events is closed and the subscription has been
	// removed from the registry.
	Done <-chan struct{}

	sub *subscription
}

// Err returns the reason the subscription ended. It is nil while the
// subscription is running and after a caller-initiated cancellation.
func (h *Handle) Err() error {
	h.sub.mu.Lock()
	defer h.sub.mu.Unlock()

	return h.sub.err
}

// Close cancels the subscription and waits for its loop to finish.
func (h *Handle) Close() {
	h.sub.cancel()
	<-h.sub.done
}

type subscription struct {
	id     uint64
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (s *subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err == nil {
		s.err = err
	}
}

// Manager is a registry of active subscriptions.
type Manager struct {
	log          *slog.Logger
	bufferSize   int
	tickInterval time.Duration

	mu   sync.Mutex
	subs map[uint64]*subscription
}

// NewManager creates an empty registry.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}

	return &Manager{
		log:          opts.Logger.With("component", "subscription"),
		bufferSize:   opts.BufferSize,
		tickInterval: opts.TickInterval,
		subs:         make(map[uint64]*subscription),
	}
}

// Create registers a subscription on conn, sends the Subscribe request, and
// starts the event loop. The manager takes ownership of conn.
//
// The subscription ends when ctx is canceled, Cancel is called, the daemon
// rejects it, or the connection closes.
func (m *Manager) Create(
	ctx context.Context,
	id uint64,
	conn net.Conn,
	req api.SubscribeRequest,
) (*Handle, error) {
	subCtx, cancel := context.WithCancel(ctx)

	sub := &subscription{
		id:     id,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	if _, exists := m.subs[id]; exists {
		m.mu.Unlock()
		cancel()
		_ = conn.Close()

		return nil, &errors.SubscriptionError{ID: id, Reason: "id already registered"}
	}

	m.subs[id] = sub
	m.mu.Unlock()

	if err := writeSubscribe(conn, id, req); err != nil {
		m.remove(sub)
		cancel()
		_ = conn.Close()

		return nil, &errors.SubscriptionError{ID: id, Reason: "send subscribe request", Err: err}
	}

	events := make(chan api.EventNotification, m.bufferSize)

	go m.run(subCtx, sub, conn, events)

	m.log.Info("Subscription started", "subscription_id", id, "event_types", req.EventTypes)

	return &Handle{
		ID:     id,
		Events: events,
		Done:   sub.done,
		sub:    sub,
	}, nil
}

func writeSubscribe(conn net.Conn, id uint64, req api.SubscribeRequest) error {
	data, err := json.Marshal(rpc.NewRequest(api.SubscribeMethod, req, id))
	if err != nil {
		return fmt.Errorf("marshal subscribe request: %w", err)
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}

	if _, err := conn.Write(append(data, '\n')); err != nil {
		return err
	}

	return conn.SetWriteDeadline(time.Time{})
}

// Cancel removes the subscription with the given id from the registry and
// signals its loop to stop. It reports whether the id was registered;
// canceling an unknown or finished id is a no-op.
func (m *Manager) Cancel(id uint64) bool {
	m.mu.Lock()
	sub, ok := m.subs[id]
	if ok {
		delete(m.subs, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	sub.cancel()

	return true
}

// CancelAll stops every registered subscription and waits for their loops.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	subs := make([]*subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}

	for _, sub := range subs {
		<-sub.done
	}
}

// Active returns the number of registered subscriptions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.subs)
}

func (m *Manager) remove(sub *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subs[sub.id] == sub {
		delete(m.subs, sub.id)
	}
}

type lineResult struct {
	line []byte
	err  error
}

func (m *Manager) run(ctx context.Context, sub *subscription, conn net.Conn, events chan<- api.EventNotification) {
	log := m.log.With("subscription_id", sub.id)

	// Closing the connection is the only way to unblock the reader.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	defer func() {
		stop()
		sub.cancel()
		_ = conn.Close()
		m.remove(sub)
		close(events)
		close(sub.done)

		log.Debug("Subscription loop exited")
	}()

	lines := make(chan lineResult)

	go readLines(ctx, conn, lines)

	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	confirmed := false

	for {
		select {
		case <-ctx.Done():
			log.Debug("Subscription canceled")

			return

		case <-ticker.C:
			log.Debug("Subscription alive", "confirmed", confirmed)

		case r := <-lines:
			if r.err != nil {
				if ctx.Err() != nil {
					return
				}

				if stderrors.Is(r.err, io.EOF) {
					log.Info("Subscription closed by daemon")
					sub.fail(&errors.SubscriptionError{ID: sub.id, Reason: "connection closed by daemon"})
				} else {
					log.Warn("Subscription read failed", "error", r.err)
					sub.fail(&errors.SubscriptionError{ID: sub.id, Reason: "read failed", Err: r.err})
				}

				return
			}

			if !confirmed {
				ok, err := m.handleConfirmation(log, sub.id, r.line)
				if err != nil {
					sub.fail(err)

					return
				}

				confirmed = ok

				continue
			}

			ev, ok := m.parseMessage(log, r.line)
			if !ok {
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleConfirmation processes a line received before the subscription is
// confirmed. It reports whether the line confirmed the subscription.
func (m *Manager) handleConfirmation(log *slog.Logger, id uint64, line []byte) (bool, error) {
	var resp rpc.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		log.Warn("Unparseable message before confirmation", "error", err)

		return false, nil
	}

	if resp.Error != nil {
		log.Warn("Subscription rejected", "code", resp.Error.Code, "message", resp.Error.Message)

		return false, &errors.SubscriptionError{
			ID:     id,
			Reason: "rejected by daemon",
			Err: &errors.RPCError{
				Code:    resp.Error.Code,
				Message: resp.Error.Message,
				Data:    resp.Error.Data,
			},
		}
	}

	if !resp.HasResult() {
		log.Warn("Unexpected message before confirmation", "raw", string(line))

		return false, nil
	}

	var confirm api.SubscribeResponse
	if err := json.Unmarshal(resp.Result, &confirm); err != nil || confirm.SubscriptionID == "" {
		log.Warn("Unexpected result before confirmation", "raw", string(line))

		return false, nil
	}

	log.Info("Subscription confirmed", "daemon_subscription_id", confirm.SubscriptionID)

	return true, nil
}

// parseMessage decodes a post-confirmation line. Events and heartbeats may
// arrive bare or wrapped in a result envelope.
func (m *Manager) parseMessage(log *slog.Logger, line []byte) (api.EventNotification, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		log.Warn("Failed to parse subscription message", "error", err)

		return api.EventNotification{}, false
	}

	payload := line

	if result, ok := fields["result"]; ok && bytes.HasPrefix(bytes.TrimSpace(result), []byte("{")) {
		payload = result
		fields = nil

		if err := json.Unmarshal(result, &fields); err != nil {
			log.Warn("Failed to parse subscription result", "error", err)

			return api.EventNotification{}, false
		}
	}

	if typ, ok := fields["type"]; ok {
		var s string
		if json.Unmarshal(typ, &s) == nil && s == api.HeartbeatType {
			log.Debug("Received heartbeat")

			return api.EventNotification{}, false
		}
	}

	if _, ok := fields["event"]; !ok {
		log.Debug("Ignoring subscription message without event", "raw", string(line))

		return api.EventNotification{}, false
	}

	var ev api.EventNotification
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Warn("Failed to decode event notification", "error", err)

		return api.EventNotification{}, false
	}

	return ev, true
}

func readLines(ctx context.Context, conn net.Conn, out chan<- lineResult) {
	reader := bufio.NewReaderSize(conn, 64*1024)

	for {
		line, err := reader.ReadBytes('\n')

		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			select {
			case out <- lineResult{line: line}:
			case <-ctx.Done():
				return
			}
		}

		if err != nil {
			select {
			case out <- lineResult{err: err}:
			case <-ctx.Done():
			}

			return
		}
	}
}
