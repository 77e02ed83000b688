// Package scapeid canonicalizes scape names so registry lookups accept the
// spellings users type for the same task.
package scapeid

import (
	"regexp"
	"strings"
)

// versionSuffix matches gym-style environment versions such as "-v1".
var versionSuffix = regexp.MustCompile(`-v[0-9]+$`)

var aliases = map[string]string{
	"cartpole": "cart-pole",
}

// Normalize lowercases name, joins words with '-', drops a "scape-" prefix,
// a "-sim" suffix and a version suffix, then maps known aliases. Names that
// are not aliases keep their normalized spelling.
func Normalize(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.NewReplacer("_", "-", " ", "-").Replace(normalized)
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return ""
	}

	base := strings.TrimPrefix(normalized, "scape-")
	base = versionSuffix.ReplaceAllString(base, "")
	base = strings.TrimSuffix(base, "-sim")
	if canonical, ok := aliases[strings.ReplaceAll(base, "-", "")]; ok {
		return canonical
	}
	return normalized
}
