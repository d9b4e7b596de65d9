// Package supervisor owns the lifecycle of one daemon process: discovery,
// spawn, port announcement, readiness, liveness, and shutdown.
package supervisor

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/daemonkit/internal/config"
	"github.com/wagiedev/daemonkit/internal/errors"
	"github.com/wagiedev/daemonkit/internal/identity"
)

const (
	// ExternalTag marks info for a daemon this supervisor did not launch.
	ExternalTag = "external"

	// taskJoinTimeout bounds how long Stop waits for background readers
	// before abandoning them.
	taskJoinTimeout = 2 * time.Second

	maxLogLineSize = 1024 * 1024
)

// BackendInfo describes a running daemon. It is produced once per
// successful start; only IsRunning changes afterwards.
type BackendInfo struct {
	Port         uint16    `json:"port"`
	PID          int       `json:"pid"`
	DatabasePath string    `json:"database_path"`
	SocketPath   string    `json:"socket_path"`
	BranchID     string    `json:"branch_id"`
	IsRunning    bool      `json:"is_running"`
	LaunchID     string    `json:"launch_id,omitempty"`
	StartedAt    time.Time `json:"started_at,omitzero"`
}

// InfoStore persists the last-known info. Save errors are logged, never
// returned from Start or Stop.
type InfoStore interface {
	Save(info BackendInfo) error
}

// Supervisor manages at most one daemon process.
//
// The process lock and the info lock are never held together, so a reader
// may briefly see a cleared process alongside info still marked running.
type Supervisor struct {
	log     *slog.Logger
	opts    config.SupervisorOptions
	store   InfoStore
	environ func() []string

	// opMu serializes Start and Stop.
	opMu sync.Mutex

	procMu      sync.Mutex
	proc        *process
	tasks       *errgroup.Group
	cancelTasks context.CancelFunc

	infoMu sync.Mutex
	info   *BackendInfo
}

// New creates a supervisor. store may be nil.
func New(opts config.SupervisorOptions, store InfoStore) *Supervisor {
	opts = opts.WithDefaults()

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Supervisor{
		log:     log.With("component", "supervisor"),
		opts:    opts,
		store:   store,
		environ: os.Environ,
	}
}

// Start launches the daemon, or returns the cached info if the tracked
// process is still alive.
//
// When externally managed, nothing is spawned and the configured external
// coordinates are reported instead. If an external port is configured and
// already healthy, that daemon is adopted.
//
// A ReadinessTimeoutError leaves the spawned process running and tracked.
func (s *Supervisor) Start(ctx context.Context) (BackendInfo, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.aliveTracked() {
		if info, ok := s.Info(); ok {
			s.log.Debug("Daemon already running", "pid", info.PID, "port", info.Port)

			return info, nil
		}
	}

	if s.opts.ExternallyManaged {
		return s.startExternal(ctx)
	}

	if s.opts.ExternalPort != 0 {
		url := healthURL(s.opts.ExternalPort, s.opts.HealthPath)
		if err := checkHealth(ctx, s.opts.HTTPClient, url); err == nil {
			return s.adopt(), nil
		}

		s.log.Debug("Configured daemon port is not healthy, launching", "port", s.opts.ExternalPort)
	}

	return s.launch(ctx)
}

func (s *Supervisor) aliveTracked() bool {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	return s.proc != nil && !s.proc.exited()
}

func (s *Supervisor) startExternal(ctx context.Context) (BackendInfo, error) {
	if s.opts.ExternalPort == 0 {
		return BackendInfo{}, &errors.ExternalConfigError{Missing: config.EnvHTTPPort}
	}

	baseDir := s.baseDir()

	socket := s.opts.SocketPath
	if socket == "" {
		socket = filepath.Join(baseDir, fmt.Sprintf("daemon-%d.sock", s.opts.ExternalPort))
	}

	database := s.opts.DatabasePath
	if database == "" {
		database = filepath.Join(baseDir, "daemon.db")
	}

	branch := s.opts.VersionOverride
	if branch == "" {
		branch = s.resolveTag(ctx)
	}

	info := BackendInfo{
		Port:         s.opts.ExternalPort,
		DatabasePath: database,
		SocketPath:   socket,
		BranchID:     branch,
		IsRunning:    true,
		StartedAt:    s.startedAtFor(s.opts.ExternalPort),
	}

	s.log.Info("Auto-launch disabled, using externally managed daemon",
		"port", info.Port,
		"socket_path", info.SocketPath,
		"branch_id", info.BranchID,
	)

	s.setInfo(info)
	s.persist(info)

	return info, nil
}

func (s *Supervisor) adopt() BackendInfo {
	socket := s.opts.SocketPath
	if socket == "" {
		socket = ExternalTag
	}

	info := BackendInfo{
		Port:         s.opts.ExternalPort,
		DatabasePath: ExternalTag,
		SocketPath:   socket,
		BranchID:     ExternalTag,
		IsRunning:    true,
		StartedAt:    s.startedAtFor(s.opts.ExternalPort),
	}

	s.log.Info("Adopting already running daemon", "port", info.Port)

	s.setInfo(info)

	return info
}

// startedAtFor keeps the first start time reported for an untracked daemon
// on port, so repeated starts return identical info.
func (s *Supervisor) startedAtFor(port uint16) time.Time {
	if info, ok := s.Info(); ok && info.PID == 0 && info.Port == port && !info.StartedAt.IsZero() {
		return info.StartedAt
	}

	return time.Now()
}

func (s *Supervisor) baseDir() string {
	if s.opts.BaseDir != "" {
		return s.opts.BaseDir
	}

	return config.DefaultBaseDir()
}

// Tag returns the identity tag that namespaces this supervisor's state.
func (s *Supervisor) Tag(ctx context.Context) string {
	return s.resolveTag(ctx)
}

func (s *Supervisor) resolveTag(ctx context.Context) string {
	return identity.Resolve(ctx, identity.Options{
		Override: s.opts.BranchOverride,
		DevMode:  s.opts.DevMode,
		Flavor:   s.opts.Flavor,
		WorkDir:  s.opts.WorkDir,
	})
}

func (s *Supervisor) launch(ctx context.Context) (BackendInfo, error) {
	baseDir := s.baseDir()
	if baseDir == "" {
		return BackendInfo{}, fmt.Errorf("resolve state directory: home directory unavailable")
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return BackendInfo{}, fmt.Errorf("create state directory: %w", err)
	}

	tag := s.resolveTag(ctx)

	paths, err := resolvePaths(s.opts, baseDir, tag)
	if err != nil {
		return BackendInfo{}, err
	}

	exe, err := resolveExecutable(s.opts)
	if err != nil {
		s.log.Error("Daemon executable not found", "error", err)

		return BackendInfo{}, err
	}

	s.log.Info("Starting daemon",
		"path", exe,
		"branch_id", tag,
		"database_path", paths.database,
		"socket_path", paths.socket,
	)

	p, err := spawn(exe, buildEnv(s.environ(), s.opts, paths, tag), "")
	if err != nil {
		s.log.Error("Failed to start daemon process", "error", err)

		return BackendInfo{}, &errors.SpawnError{Path: exe, Err: err}
	}

	s.log.Info("Daemon spawned", "pid", p.pid, "launch_id", p.launchID.String())

	log := s.log.With("branch_id", tag, "pid", p.pid)

	// Background tasks outlive the caller's context; Stop cancels them.
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	tasks := &errgroup.Group{}

	emitter := stderrEmitter{log: s.log.With("source", "daemon"), devMode: s.opts.DevMode, branchID: tag}

	tasks.Go(func() error {
		drainStderr(taskCtx, log, p.stderr, emitter)

		return nil
	})

	abort := func() {
		p.kill()
		cancel()
		p.closePipes()
		joinTasks(log, tasks)
	}

	log.Info("Waiting for daemon to report port on stdout")

	stdout := bufio.NewReaderSize(p.stdout, 64*1024)

	port, err := readPort(stdout)
	if err != nil {
		log.Error("Daemon failed to report port", "error", err)
		abort()

		return BackendInfo{}, err
	}

	log.Info("Daemon reported port", "port", port)

	tasks.Go(func() error {
		drainStdout(taskCtx, log, stdout)

		return nil
	})

	if p.exited() {
		state := p.exitState()
		log.Error("Daemon exited immediately after starting", "status", state)
		abort()

		return BackendInfo{}, &errors.PrematureExitError{PID: p.pid, State: state}
	}

	info := BackendInfo{
		Port:         port,
		PID:          p.pid,
		DatabasePath: paths.database,
		SocketPath:   paths.socket,
		BranchID:     tag,
		IsRunning:    true,
		LaunchID:     p.launchID.String(),
		StartedAt:    p.startedAt,
	}

	s.procMu.Lock()
	s.proc = p
	s.tasks = tasks
	s.cancelTasks = cancel
	s.procMu.Unlock()

	s.setInfo(info)

	log.Info("Waiting for daemon to become ready", "port", port)

	if err := waitReady(
		ctx,
		s.opts.HTTPClient,
		port,
		s.opts.HealthPath,
		s.opts.ReadinessInterval,
		s.opts.ReadinessTimeout,
	); err != nil {
		log.Error("Daemon did not become ready", "error", err)

		return BackendInfo{}, err
	}

	log.Info("Daemon is ready and responding to health checks")

	tasks.Go(func() error {
		s.monitor(taskCtx, log, p, port)

		return nil
	})

	s.persist(info)

	return info, nil
}

// readPort reads the first stdout line and parses the port announcement.
func readPort(r *bufio.Reader) (uint16, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		if stderrors.Is(err, io.EOF) {
			return 0, &errors.PortAnnouncementError{Err: fmt.Errorf("stdout closed before reporting port")}
		}

		return 0, &errors.PortAnnouncementError{Err: fmt.Errorf("read stdout: %w", err)}
	}

	port, perr := ParsePortAnnouncement(line)
	if perr != nil {
		return 0, &errors.PortAnnouncementError{FirstLine: line}
	}

	return port, nil
}

func drainStderr(ctx context.Context, log *slog.Logger, r io.Reader, emitter stderrEmitter) {
	br := bufio.NewReaderSize(r, 64*1024)

	for {
		line, truncated, err := readLogLine(br, maxLogLineSize)
		if line != "" && ctx.Err() == nil {
			if truncated {
				log.Debug("Daemon stderr line truncated", "limit", maxLogLineSize)
			}

			emitter.emit(ctx, line)
		}

		if err != nil {
			if !stderrors.Is(err, io.EOF) && !stderrors.Is(err, os.ErrClosed) {
				log.Debug("Daemon stderr read error", "error", err)
			}

			break
		}
	}

	log.Info("Daemon stderr reader finished")
}

// drainStdout keeps consuming stdout after the port line so the daemon
// never blocks on a full pipe.
func drainStdout(ctx context.Context, log *slog.Logger, r *bufio.Reader) {
	for {
		line, _, err := readLogLine(r, maxLogLineSize)
		if line != "" && ctx.Err() == nil {
			log.Log(ctx, LevelTrace, "Daemon stdout", "line", line)
		}

		if err != nil {
			log.Debug("Daemon stdout closed", "error", err)

			return
		}
	}
}

// readLogLine reads one line and keeps at most limit bytes of it. The rest
// of an over-long line is read and dropped, so the pipe is always drained.
func readLogLine(r *bufio.Reader, limit int) (string, bool, error) {
	var (
		buf       []byte
		truncated bool
	)

	for {
		frag, err := r.ReadSlice('\n')

		if room := limit - len(buf); len(frag) > room {
			buf = append(buf, frag[:max(room, 0)]...)
			truncated = true
		} else {
			buf = append(buf, frag...)
		}

		if stderrors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		return strings.TrimRight(string(buf), "\r\n"), truncated, err
	}
}

func (s *Supervisor) monitor(ctx context.Context, log *slog.Logger, p *process, port uint16) {
	ticker := time.NewTicker(s.opts.MonitorInterval)
	defer ticker.Stop()

	lastCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !p.exited() {
			lastCheck = time.Now()

			continue
		}

		s.procMu.Lock()
		cleared := s.proc == p
		cancel := s.cancelTasks
		if cleared {
			s.proc = nil
			s.tasks = nil
			s.cancelTasks = nil
		}
		s.procMu.Unlock()

		if !cleared {
			return
		}

		if cancel != nil {
			cancel()
		}

		p.closePipes()

		log.Error("Daemon process exited unexpectedly",
			"port", port,
			"status", p.exitState(),
			"since_last_check", time.Since(lastCheck),
		)

		if info, ok := s.markNotRunning(p.launchID.String()); ok {
			s.persist(info)
		}

		return
	}
}

// Stop terminates the tracked process: SIGTERM, a bounded wait for exit,
// then SIGKILL. Info is marked not running on every path. Stop is a no-op
// when nothing is tracked.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.procMu.Lock()
	p, tasks, cancel := s.proc, s.tasks, s.cancelTasks
	s.proc, s.tasks, s.cancelTasks = nil, nil, nil
	s.procMu.Unlock()

	if p == nil {
		return nil
	}

	log := s.log.With("pid", p.pid)

	if !p.exited() {
		if err := p.terminate(); err != nil {
			log.Warn("Failed to send SIGTERM to daemon", "error", err)
		} else {
			log.Info("Sent SIGTERM to daemon process")
		}

		if s.waitExit(ctx, p) {
			log.Info("Daemon process exited gracefully after SIGTERM")
		} else {
			log.Warn("Daemon didn't exit gracefully, sending SIGKILL")
			p.kill()
		}
	}

	<-p.done

	if cancel != nil {
		cancel()
	}

	p.closePipes()

	if tasks != nil {
		joinTasks(log, tasks)
	}

	if info, ok := s.markNotRunning(p.launchID.String()); ok {
		s.persist(info)
	}

	return nil
}

// waitExit polls for exit until StopTimeout elapses or ctx is done.
func (s *Supervisor) waitExit(ctx context.Context, p *process) bool {
	ticker := time.NewTicker(s.opts.StopPollInterval)
	defer ticker.Stop()

	deadline := time.Now().Add(s.opts.StopTimeout)

	for {
		if p.exited() {
			return true
		}

		if !time.Now().Before(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return p.exited()
		case <-ticker.C:
		}
	}
}

func joinTasks(log *slog.Logger, tasks *errgroup.Group) {
	done := make(chan struct{})

	go func() {
		_ = tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(taskJoinTimeout):
		log.Debug("Abandoning daemon background tasks")
	}
}

// Info returns the last-known info.
func (s *Supervisor) Info() (BackendInfo, bool) {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()

	if s.info == nil {
		return BackendInfo{}, false
	}

	return *s.info, true
}

// IsAlive probes the tracked process. It is false when nothing is tracked.
func (s *Supervisor) IsAlive() bool {
	return s.aliveTracked()
}

func (s *Supervisor) setInfo(info BackendInfo) {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()

	s.info = &info
}

// markNotRunning clears the running flag if the info belongs to launchID.
func (s *Supervisor) markNotRunning(launchID string) (BackendInfo, bool) {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()

	if s.info == nil || s.info.LaunchID != launchID {
		return BackendInfo{}, false
	}

	s.info.IsRunning = false

	return *s.info, true
}

func (s *Supervisor) persist(info BackendInfo) {
	if s.store == nil {
		return
	}

	if err := s.store.Save(info); err != nil {
		s.log.Warn("Failed to persist daemon info", "error", err)
	}
}
