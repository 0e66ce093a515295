package logging

import "regexp"

// Patterns that would leak a session credential: the token query parameter
// on websocket URLs and bearer values in header dumps.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(token=)[^&\s]+`),
	regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9._-]+`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact strips credentials from a string before it reaches a log line.
// Dial targets carry the bearer token as a query parameter, so URLs must
// never be logged raw.
func Redact(s string) string {
	for _, pattern := range secretPatterns {
		s = pattern.ReplaceAllString(s, "${1}"+RedactedValue)
	}
	return s
}
