package supervisor

import (
	"fmt"
	"strconv"
	"strings"
)

// PortPrefix starts the port announcement the daemon prints as its first
// stdout line.
const PortPrefix = "HTTP_PORT="

// ParsePortAnnouncement extracts the port from a first stdout line of the
// form "HTTP_PORT=<n>". Surrounding whitespace after the prefix, including
// the trailing newline, is ignored.
func ParsePortAnnouncement(line string) (uint16, error) {
	rest, ok := strings.CutPrefix(line, PortPrefix)
	if !ok {
		return 0, fmt.Errorf("line does not start with %s", PortPrefix)
	}

	port, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("parse port %q: %w", strings.TrimSpace(rest), err)
	}

	return uint16(port), nil
}
