// Package envid canonicalizes two-agent environment names and the aliases
// they are commonly referred to by.
package envid

import (
	"regexp"
	"strings"
)

const RunToGoal = "run-to-goal"

var versionSuffix = regexp.MustCompile(`-v[0-9]+$`)

// Normalize canonicalizes environment names and reference aliases, e.g.
// "multicomp/RunToGoalHumans-v0" -> "run-to-goal".
func Normalize(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	if idx := strings.LastIndex(normalized, "/"); idx >= 0 {
		normalized = normalized[idx+1:]
	}
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = versionSuffix.ReplaceAllString(normalized, "")
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return ""
	}
	if canonical, ok := canonicalName(normalized); ok {
		return canonical
	}
	return normalized
}

// Known lists the canonical names with a built-in environment.
func Known() []string {
	return []string{RunToGoal}
}

func canonicalName(alias string) (string, bool) {
	compact := strings.ReplaceAll(alias, "-", "")
	for _, body := range []string{"humans", "ants", "lite"} {
		if trimmed := strings.TrimSuffix(compact, body); trimmed != "" {
			compact = trimmed
		}
	}
	switch compact {
	case "runtogoal", "rtg":
		return RunToGoal, true
	default:
		return "", false
	}
}
