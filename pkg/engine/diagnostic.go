package engine

import "strings"

// maxDiagnosticLines caps the captured output carried in an outcome.
const maxDiagnosticLines = 20

// diagnostic picks the text explaining a failed child process: stderr when
// it has content, stdout otherwise. Only the last lines are kept.
func diagnostic(stderr, stdout string) string {
	text := strings.TrimSpace(stderr)
	if text == "" {
		text = strings.TrimSpace(stdout)
	}
	return tail(text, maxDiagnosticLines)
}

func tail(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
