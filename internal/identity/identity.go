// Package identity resolves the tag that namespaces per-environment daemon
// state: database, socket, and last-known info records.
package identity

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/wagiedev/daemonkit/internal/config"
)

const (
	// TagDev is used in development when no branch can be determined.
	TagDev = "dev"
	// TagNightly is the tag of nightly packaged builds.
	TagNightly = "nightly"
	// TagProduction is the tag of regular packaged builds.
	TagProduction = "production"

	gitTimeout = 2 * time.Second
)

var (
	ticketPattern  = regexp.MustCompile(`(?i)([a-z]+-[0-9]+)`)
	unsafeTagChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// BranchFunc returns the current version-control branch of dir.
type BranchFunc func(ctx context.Context, dir string) (string, error)

// Options controls tag resolution.
type Options struct {
	// Override wins over everything else when non-empty.
	Override string

	DevMode bool
	Flavor  config.BuildFlavor

	// WorkDir is where the branch is looked up in dev mode.
	WorkDir string

	// Branch reads the current branch. Defaults to GitBranch.
	Branch BranchFunc
}

// Resolve returns the identity tag.
//
// In dev mode the current branch is reduced to a ticket token such as
// ENG-1234 when it contains one, otherwise to a sanitized branch name, and
// falls back to "dev". Packaged builds use "nightly" or "production".
func Resolve(ctx context.Context, opts Options) string {
	if tag := strings.TrimSpace(opts.Override); tag != "" {
		return Sanitize(tag)
	}

	if !opts.DevMode {
		if opts.Flavor == config.FlavorNightly {
			return TagNightly
		}

		return TagProduction
	}

	branchFn := opts.Branch
	if branchFn == nil {
		branchFn = GitBranch
	}

	branch, err := branchFn(ctx, opts.WorkDir)
	if err != nil {
		return TagDev
	}

	if tag := FromBranch(branch); tag != "" {
		return tag
	}

	return TagDev
}

// FromBranch reduces a branch name to a tag. It returns "" for empty or
// detached-head names.
func FromBranch(branch string) string {
	branch = strings.TrimSpace(branch)
	if branch == "" || branch == "HEAD" {
		return ""
	}

	if m := ticketPattern.FindString(branch); m != "" {
		return strings.ToUpper(m)
	}

	return Sanitize(branch)
}

// Sanitize replaces characters that are unsafe in file names with '-'.
func Sanitize(tag string) string {
	return strings.Trim(unsafeTagChars.ReplaceAllString(tag, "-"), "-")
}

// GitBranch reads the current branch with git.
func GitBranch(ctx context.Context, dir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir

	out, err := cmd.Output()
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(out)), nil
}
