package sandbox

import (
	"regexp"
	"strings"
)

var (
	exceptionRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*(?:Error|Exception))\s*:\s*(.*)$`)
	pipErrorRe  = regexp.MustCompile(`(?i)^ERROR:\s+(.+)$`)
)

// SummarizeFailure extracts the most informative line from a Python stderr
// dump: the final exception line of a traceback, or the first pip ERROR
// line, or the last non-empty line as a fallback. Long lines are truncated.
func SummarizeFailure(stderr string) string {
	lines := strings.Split(stderr, "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if exceptionRe.MatchString(line) {
			return truncateLine(line)
		}
	}
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if m := pipErrorRe.FindStringSubmatch(line); len(m) >= 2 {
			return truncateLine(line)
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			return truncateLine(line)
		}
	}
	return ""
}

func truncateLine(line string) string {
	const maxLen = 200
	if len(line) > maxLen {
		return line[:maxLen] + "..."
	}
	return line
}
