package supervisor

import (
	"context"
	"log/slog"
	"strings"
)

// LevelTrace is below slog.LevelDebug; daemon stdout and trace-tagged stderr
// lines are emitted at this level.
const LevelTrace = slog.LevelDebug - 4

// levelMarkers is checked in order; the first marker found wins.
var levelMarkers = []struct {
	name  string
	level slog.Level
}{
	{"ERROR", slog.LevelError},
	{"WARN", slog.LevelWarn},
	{"INFO", slog.LevelInfo},
	{"DEBUG", slog.LevelDebug},
	{"TRACE", LevelTrace},
}

// timestampMarkers lists the tokens StripTimestamp cuts at, in search order.
var timestampMarkers = []string{" INFO ", " ERROR ", " WARN ", " DEBUG ", " TRACE "}

// Classify maps a structured daemon log line to a level by looking for
// " LEVEL " or "LEVEL[" markers. Unrecognized lines are info.
func Classify(line string) slog.Level {
	for _, m := range levelMarkers {
		if strings.Contains(line, " "+m.name+" ") || strings.Contains(line, m.name+"[") {
			return m.level
		}
	}

	return slog.LevelInfo
}

// ClassifyCoarse is the production rule: any spelling of error wins, then
// any spelling of warning, otherwise info.
func ClassifyCoarse(line string) slog.Level {
	switch {
	case strings.Contains(line, "ERROR"), strings.Contains(line, "error"), strings.Contains(line, "Error"):
		return slog.LevelError
	case strings.Contains(line, "WARN"), strings.Contains(line, "warn"), strings.Contains(line, "Warning"):
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// StripTimestamp drops everything up to and including the first level
// token, so "2024-01-30T10:15:30Z INFO started" becomes "started".
// Lines without a level token are returned unchanged.
func StripTimestamp(line string) string {
	for _, marker := range timestampMarkers {
		if idx := strings.Index(line, marker); idx >= 0 {
			return line[idx+len(marker):]
		}
	}

	return line
}

// stderrEmitter re-emits daemon stderr lines through the supervisor logger.
type stderrEmitter struct {
	log      *slog.Logger
	devMode  bool
	branchID string
}

func (e stderrEmitter) emit(ctx context.Context, line string) {
	if e.devMode {
		e.log.Log(ctx, Classify(line), StripTimestamp(line), "branch_id", e.branchID)

		return
	}

	e.log.Log(ctx, ClassifyCoarse(line), line, "branch_id", e.branchID)
}
