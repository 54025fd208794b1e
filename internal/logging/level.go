package logging

import "strings"

func (l Level) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelWarning:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

func (l Level) known() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
		return true
	}
	return false
}

// ParseLevel accepts the level names case-insensitively, plus "warn".
func ParseLevel(value string) (Level, bool) {
	level := Level(strings.ToLower(strings.TrimSpace(value)))
	if level == "warn" {
		level = LevelWarning
	}
	if !level.known() {
		return "", false
	}
	return level, true
}

// LevelAtLeast reports whether level passes a minLevel filter. An empty
// minLevel passes everything; unknown levels rank as info.
func LevelAtLeast(level, minLevel Level) bool {
	if minLevel == "" {
		return true
	}
	return level.rank() >= minLevel.rank()
}
