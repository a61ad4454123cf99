package session

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genName() gopter.Gen {
	return gen.RegexMatch(`^[a-z]{1,8}$`)
}

func genRoster() gopter.Gen {
	return gen.SliceOf(genName())
}

// TestProperty_DisambiguateNeverCollides asserts that whatever the roster
// looks like, the assigned name never case-insensitively equals an online
// name, and a free desired name is always returned unchanged.
func TestProperty_DisambiguateNeverCollides(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("assigned name is unique on the roster", prop.ForAll(
		func(desired string, online []string) bool {
			assigned := Disambiguate(desired, "", online)
			for _, name := range online {
				if strings.EqualFold(assigned, name) {
					return false
				}
			}
			return true
		},
		genName(),
		genRoster(),
	))

	properties.Property("free name is returned verbatim", prop.ForAll(
		func(desired string, online []string) bool {
			for _, name := range online {
				if strings.EqualFold(desired, name) {
					return true // collision case, covered by the other properties
				}
			}
			return Disambiguate(desired, "", online) == desired
		},
		genName(),
		genRoster(),
	))

	properties.Property("assigned name is the desired name or a suffixed form", prop.ForAll(
		func(desired string, online []string) bool {
			assigned := Disambiguate(desired, "", online)
			if assigned == desired {
				return true
			}
			return strings.HasPrefix(assigned, desired+"(") && strings.HasSuffix(assigned, ")")
		},
		genName(),
		genRoster(),
	))

	properties.TestingRun(t)
}
