// Command daemonkit supervises the session daemon and drives it from the
// command line or over MCP.
package main

import (
	"context"
	"fmt"
	"os"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	versionString := fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := run(context.Background(), os.Args[1:], versionString); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, versionString string) error {
	a := newApp(os.Stdout, os.Stderr)
	defer a.close()

	root := a.rootCmd(versionString)
	root.SetArgs(args)

	return root.ExecuteContext(ctx)
}
