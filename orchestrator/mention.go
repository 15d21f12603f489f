package orchestrator

import (
	"strings"

	"github.com/parleyhq/parley/registry"
)

// ResolveMention maps a caller-supplied responder mention onto one of the
// known catalog names. Resolution precedence: exact case-insensitive
// match, then prefix match, then substring match, then fallback to the
// default name when it is in the catalog, then the first catalog entry.
// names must already be canonical; iteration order determines which of
// several prefix/substring candidates wins, so callers pass a sorted list.
func ResolveMention(mention string, names []string, defaultName string) string {
	m := registry.Canonical(mention)
	defaultName = registry.Canonical(defaultName)

	for _, name := range names {
		if name == m {
			return name
		}
	}
	if m != "" {
		for _, name := range names {
			if strings.HasPrefix(name, m) {
				return name
			}
		}
		for _, name := range names {
			if strings.Contains(name, m) {
				return name
			}
		}
	}
	for _, name := range names {
		if name == defaultName {
			return name
		}
	}
	if len(names) > 0 {
		return names[0]
	}
	return defaultName
}
