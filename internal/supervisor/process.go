package supervisor

import (
	"crypto/rand"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
)

// process is the tracked daemon child. Its exit is observed by a dedicated
// waiter goroutine so that exit probes never block.
type process struct {
	launchID  ulid.ULID
	path      string
	pid       int
	startedAt time.Time

	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File

	done  chan struct{}
	state *os.ProcessState
	err   error
}

// spawn starts path with env in dir. stdout and stderr are separate pipes
// whose read ends belong to the returned process.
func spawn(path string, env []string, dir string) (*process, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()

		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	//nolint:gosec // G204: the daemon path is resolved by discovery, not user input
	cmd := exec.Command(path)
	cmd.Env = env
	cmd.Dir = dir
	cmd.Stdout = outW
	cmd.Stderr = errW

	startErr := cmd.Start()

	// The child holds its own copies of the write ends.
	_ = outW.Close()
	_ = errW.Close()

	if startErr != nil {
		_ = outR.Close()
		_ = errR.Close()

		return nil, startErr
	}

	p := &process{
		launchID:  ulid.MustNew(ulid.Now(), rand.Reader),
		path:      path,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		cmd:       cmd,
		stdout:    outR,
		stderr:    errR,
		done:      make(chan struct{}),
	}

	go func() {
		p.err = p.cmd.Wait()
		p.state = p.cmd.ProcessState
		close(p.done)
	}()

	return p, nil
}

// exited is the non-blocking exit probe.
func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// exitState returns the observed exit status, or nil while running.
func (p *process) exitState() *os.ProcessState {
	if !p.exited() {
		return nil
	}

	return p.state
}

func (p *process) terminate() error {
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// kill sends SIGKILL and waits for the waiter to reap the child.
func (p *process) kill() {
	_ = p.cmd.Process.Kill()
	<-p.done
}

// closePipes releases the parent's read ends, unblocking any reader.
func (p *process) closePipes() {
	_ = p.stdout.Close()
	_ = p.stderr.Close()
}
