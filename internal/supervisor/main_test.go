package supervisor

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"testing"
	"time"
)

// fakeDaemonEnv selects a fake daemon behavior when the test binary is
// re-executed as the daemon.
const fakeDaemonEnv = "DAEMONKIT_FAKE_DAEMON"

func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeDaemonEnv); mode != "" {
		os.Exit(runFakeDaemon(mode))
	}

	os.Exit(m.Run())
}

// runFakeDaemon implements the daemon side of the startup contract.
func runFakeDaemon(mode string) int {
	switch mode {
	case "eof":
		return 0
	case "bad-line":
		fmt.Println("starting up")
		time.Sleep(30 * time.Second)

		return 0
	case "exit-after-port":
		fmt.Println("HTTP_PORT=1")

		return 3
	case "never-ready":
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return 1
		}

		port := ln.Addr().(*net.TCPAddr).Port
		_ = ln.Close()

		fmt.Printf("HTTP_PORT=%d\n", port)
		time.Sleep(30 * time.Second)

		return 0
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintln(os.Stderr, "listen:", err)

		return 1
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	go func() { _ = http.Serve(ln, mux) }()

	sigs := make(chan os.Signal, 1)
	if mode == "ignore-term" {
		signal.Ignore(syscall.SIGTERM)
	} else {
		signal.Notify(sigs, syscall.SIGTERM)
	}

	if mode == "noisy-stderr" {
		// One line past the log line limit, then enough to fill a pipe buffer.
		fmt.Fprintln(os.Stderr, "ERROR "+strings.Repeat("x", 2<<20))

		for range 300 {
			fmt.Fprintln(os.Stderr, "WARN "+strings.Repeat("y", 1024))
		}
	}

	fmt.Printf("HTTP_PORT=%d\n", ln.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "2024-01-30T10:15:30Z INFO daemon ready socket=%s\n", os.Getenv("HUMANLAYER_DAEMON_SOCKET"))
	fmt.Println("stdout chatter after the port line")

	switch mode {
	case "die-later":
		time.Sleep(500 * time.Millisecond)

		return 4
	case "ignore-term":
		time.Sleep(time.Minute)

		return 0
	default:
		select {
		case <-sigs:
			return 0
		case <-time.After(time.Minute):
			return 0
		}
	}
}
