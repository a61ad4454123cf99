package session

import (
	"fmt"
	"strings"
)

// Disambiguate resolves a requested display name against the set of
// currently-online names (case-insensitive).
//
// If the caller's own prior session already owns a case-insensitive match,
// that name is reused verbatim. Otherwise the requested name is used as-is
// when free, or suffixed "(2)", "(3)", … with the first integer that produces
// no collision. The identity registry still re-validates at claim time; this
// resolution is only the pre-claim courtesy pass.
func Disambiguate(desired, currentName string, online []string) string {
	if currentName != "" && strings.EqualFold(currentName, desired) {
		return currentName
	}

	taken := make(map[string]struct{}, len(online))
	for _, name := range online {
		taken[strings.ToLower(name)] = struct{}{}
	}

	final := desired
	for suffix := 2; ; suffix++ {
		if _, collides := taken[strings.ToLower(final)]; !collides {
			return final
		}
		final = fmt.Sprintf("%s(%d)", desired, suffix)
	}
}
