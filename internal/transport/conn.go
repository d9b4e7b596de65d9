// Package transport provides the newline-delimited Unix socket connection to the daemon.
package transport

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/wagiedev/daemonkit/internal/errors"
)

const (
	// DefaultTimeout bounds a connect attempt and a single request round trip.
	DefaultTimeout = 5 * time.Second

	// DefaultRetryDelay is the pause between connect attempts.
	DefaultRetryDelay = 500 * time.Millisecond

	// maxLineSize caps a single reply line.
	maxLineSize = 16 * 1024 * 1024
)

// Options configures a Conn.
type Options struct {
	Logger     *slog.Logger
	Timeout    time.Duration
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}

	return o
}

// Conn is one request/response connection to the daemon socket.
//
// The protocol is strictly request/response: at most one request is in
// flight per Conn. The same lock guards sends and Reconnect so a request
// never observes a half-replaced connection.
type Conn struct {
	log     *slog.Logger
	path    string
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// Connect dials the daemon socket once.
//
// Returns a ConnectionError naming the path if the socket file does not
// exist, and ErrTimeout if the dial exceeds the configured timeout.
func Connect(ctx context.Context, path string, opts Options) (*Conn, error) {
	opts = opts.withDefaults()

	nc, err := dial(ctx, path, opts.Timeout)
	if err != nil {
		return nil, err
	}

	return &Conn{
		log:     opts.Logger.With("component", "transport"),
		path:    path,
		timeout: opts.Timeout,
		conn:    nc,
		reader:  bufio.NewReaderSize(nc, 64*1024),
	}, nil
}

// ConnectWithRetry calls Connect up to maxRetries+1 times, sleeping
// RetryDelay between attempts. The error of the final attempt is returned.
func ConnectWithRetry(ctx context.Context, path string, maxRetries int, opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	log := opts.Logger.With("component", "transport")

	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		c, err := Connect(ctx, path, opts)
		if err == nil {
			log.Info("Connected to daemon", "socket_path", path, "attempt", attempt+1)

			return c, nil
		}

		lastErr = err

		if attempt == maxRetries {
			break
		}

		log.Debug("Connection attempt failed, retrying",
			"attempt", attempt+1,
			"error", err,
			"retry_delay", opts.RetryDelay,
		)

		select {
		case <-time.After(opts.RetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func dial(ctx context.Context, path string, timeout time.Duration) (net.Conn, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &errors.ConnectionError{
			Path:   path,
			Reason: "socket not found. Is the daemon running?",
			Err:    err,
		}
	}

	dialer := net.Dialer{Timeout: timeout}

	nc, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("connect to %s: %w after %s", path, errors.ErrTimeout, timeout)
		}

		return nil, &errors.ConnectionError{Path: path, Err: err}
	}

	return nc, nil
}

// Path returns the socket path this connection dials.
func (c *Conn) Path() string {
	return c.path
}

// SendRequest writes payload as one line and reads one reply line.
func (c *Conn) SendRequest(ctx context.Context, payload []byte) ([]byte, error) {
	return c.SendRequestMatching(ctx, payload, nil)
}

// SendRequestMatching is SendRequest with a filter for reply lines.
//
// Lines for which accept returns false are discarded and reading continues
// under the same deadline. This lets callers skip stale replies left over
// from a request that previously timed out.
func (c *Conn) SendRequestMatching(
	ctx context.Context,
	payload []byte,
	accept func(line []byte) bool,
) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, errors.ErrNotConnected
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, &errors.ConnectionError{Path: c.path, Err: err}
	}

	defer func() {
		if c.conn != nil {
			_ = c.conn.SetDeadline(time.Time{})
		}
	}()

	// Unblock reads and writes if the caller gives up early.
	nc := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = nc.SetDeadline(time.Now())
	})
	defer stop()

	line := make([]byte, 0, len(payload)+1)
	line = append(line, payload...)

	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(line, '\n')
	}

	if _, err := nc.Write(line); err != nil {
		return nil, c.wrapIOError(ctx, "write request", err)
	}

	for {
		reply, err := c.readLine()
		if err != nil {
			return nil, c.wrapIOError(ctx, "read response", err)
		}

		if accept != nil && !accept(reply) {
			c.log.Debug("Discarding unmatched reply", "reply", string(reply))

			continue
		}

		return reply, nil
	}
}

// readLine reads one newline-terminated line without the terminator.
func (c *Conn) readLine() ([]byte, error) {
	var buf []byte

	for {
		chunk, isPrefix, err := c.reader.ReadLine()
		if err != nil {
			if stderrors.Is(err, io.EOF) && len(buf) == 0 {
				return nil, io.EOF
			}

			return nil, err
		}

		buf = append(buf, chunk...)
		if len(buf) > maxLineSize {
			return nil, fmt.Errorf("reply exceeds %d bytes", maxLineSize)
		}

		if !isPrefix {
			return bytes.Clone(buf), nil
		}
	}
}

func (c *Conn) wrapIOError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	// The socket deadline may fire just before the context timer does.
	if d, ok := ctx.Deadline(); ok && isTimeout(err) && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}

	if stderrors.Is(err, io.EOF) {
		return &errors.ConnectionError{Path: c.path, Reason: "connection closed by daemon"}
	}

	if isTimeout(err) {
		return fmt.Errorf("%s: %w after %s", op, errors.ErrTimeout, c.timeout)
	}

	return &errors.ConnectionError{Path: c.path, Reason: op, Err: err}
}

// OpenParallel dials an independent connection to the same socket.
// The primary connection is untouched; the caller owns the returned conn.
func (c *Conn) OpenParallel(ctx context.Context) (net.Conn, error) {
	return dial(ctx, c.path, c.timeout)
}

// Reconnect replaces the underlying connection in place.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	nc, err := dial(ctx, c.path, c.timeout)
	if err != nil {
		return err
	}

	if c.conn != nil {
		_ = c.conn.Close()
	}

	c.conn = nc
	c.reader = bufio.NewReaderSize(nc, 64*1024)

	c.log.Info("Reconnected to daemon", "socket_path", c.path)

	return nil
}

// IsAlive reports whether the connection is open.
func (c *Conn) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

// Close closes the connection. It's safe to call Close multiple times.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.reader = nil

	return err
}

func isTimeout(err error) bool {
	if ne, ok := stderrors.AsType[net.Error](err); ok && ne.Timeout() {
		return true
	}

	return stderrors.Is(err, os.ErrDeadlineExceeded)
}
