package log

import "strings"

// ParseLevel parses the CLI's --log-level flag value (spec §6, "Common
// flags on run: --log-level LEVEL").
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warn", "warning":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	case "fatal":
		return FatalLevel, true
	default:
		return 0, false
	}
}
