package supervisor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wagiedev/daemonkit/internal/config"
	"github.com/wagiedev/daemonkit/internal/errors"
)

const (
	devBinaryName    = "hld-dev"
	bundledBinary    = "hld"
	devBuildHint     = "Run 'make daemon-dev-build' first."
	nestedAppDirName = "src-tauri"
)

// resolveExecutable finds the daemon binary.
//
// The search order is:
//  1. The explicit path in opts.ExecutablePath
//  2. In dev mode, <repo>/hld/hld-dev, where <repo> is the parent of the
//     working directory, or its grandparent when running from the nested
//     application directory
//  3. Otherwise <resources>/bin/hld
func resolveExecutable(opts config.SupervisorOptions) (string, error) {
	if opts.ExecutablePath != "" {
		if err := checkExecutable(opts.ExecutablePath); err != nil {
			return "", &errors.ExecutableNotFoundError{SearchedPaths: []string{opts.ExecutablePath}}
		}

		return opts.ExecutablePath, nil
	}

	if opts.DevMode {
		wd, err := workDir(opts)
		if err != nil {
			return "", err
		}

		root := filepath.Dir(wd)
		if filepath.Base(wd) == nestedAppDirName {
			root = filepath.Dir(root)
		}

		path := filepath.Join(root, "hld", devBinaryName)
		if err := checkExecutable(path); err != nil {
			return "", &errors.ExecutableNotFoundError{SearchedPaths: []string{path}, Hint: devBuildHint}
		}

		return path, nil
	}

	if opts.ResourceDir == "" {
		return "", &errors.ExecutableNotFoundError{Hint: "no resource directory configured"}
	}

	path := filepath.Join(opts.ResourceDir, "bin", bundledBinary)
	if err := checkExecutable(path); err != nil {
		return "", &errors.ExecutableNotFoundError{SearchedPaths: []string{path}}
	}

	return path, nil
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	return nil
}

func workDir(opts config.SupervisorOptions) (string, error) {
	if opts.WorkDir != "" {
		return opts.WorkDir, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	return wd, nil
}

// statePaths are the on-disk locations handed to the daemon.
type statePaths struct {
	database string
	socket   string
}

// resolvePaths derives database and socket paths from the identity tag.
// Explicit overrides win. A dev database that does not exist yet is seeded
// from daemon-dev.db when that file is present.
func resolvePaths(opts config.SupervisorOptions, baseDir, tag string) (statePaths, error) {
	var p statePaths

	switch {
	case opts.DatabasePath != "":
		p.database = opts.DatabasePath
	case opts.DevMode:
		p.database = filepath.Join(baseDir, fmt.Sprintf("daemon-%s.db", tag))

		if err := seedDevDatabase(filepath.Join(baseDir, "daemon-dev.db"), p.database); err != nil {
			return statePaths{}, err
		}
	case opts.Flavor == config.FlavorNightly:
		p.database = filepath.Join(baseDir, "daemon-nightly.db")
	default:
		p.database = filepath.Join(baseDir, "daemon.db")
	}

	switch {
	case opts.SocketPath != "":
		p.socket = opts.SocketPath
	case opts.DevMode:
		p.socket = filepath.Join(baseDir, fmt.Sprintf("daemon-%s.sock", tag))
	case opts.Flavor == config.FlavorNightly:
		p.socket = filepath.Join(baseDir, "daemon-nightly.sock")
	default:
		p.socket = filepath.Join(baseDir, "daemon.sock")
	}

	return p, nil
}

func seedDevDatabase(source, target string) error {
	if source == target {
		return nil
	}

	if _, err := os.Stat(target); err == nil {
		return nil
	}

	src, err := os.Open(source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("open dev database: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create branch database: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(target)

		return fmt.Errorf("copy dev database: %w", err)
	}

	return dst.Close()
}

// buildEnv returns the daemon environment: the inherited environment, the
// resolved paths, auto-assigned port, and in dev mode debug settings.
// Caller-supplied extras are applied last.
func buildEnv(base []string, opts config.SupervisorOptions, paths statePaths, tag string) []string {
	env := make([]string, 0, len(base)+8+len(opts.Env))
	env = append(env, base...)
	env = append(env,
		config.EnvDatabasePath+"="+paths.database,
		config.EnvSocketPath+"="+paths.socket,
		config.EnvHTTPPort+"=0",
		config.EnvHTTPHost+"=localhost",
	)

	if opts.DevMode {
		env = append(env,
			config.EnvVersionOverride+"="+tag,
			config.EnvDebug+"=true",
			config.EnvGinMode+"=debug",
		)
	}

	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	return env
}
