package registry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// opKind enumerates the registry operations exercised by the model.
type opKind int

const (
	opClaim opKind = iota
	opRelease
)

// regOp is one randomly generated registry operation.
type regOp struct {
	kind  opKind
	conn  int // index into a fixed pool of connections
	name  int // index into a fixed pool of names
	token int // index into a fixed pool of tokens
}

func genRegOp(conns, names, tokens int) gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 1),
		gen.IntRange(0, conns-1),
		gen.IntRange(0, names-1),
		gen.IntRange(0, tokens-1),
	).Map(func(vals []interface{}) regOp {
		return regOp{
			kind:  opKind(vals[0].(int)),
			conn:  vals[1].(int),
			name:  vals[2].(int),
			token: vals[3].(int),
		}
	})
}

func genOps(conns, names, tokens int) gopter.Gen {
	return gen.SliceOf(genRegOp(conns, names, tokens))
}

// checkInvariants verifies uniqueness and mutual-inverse consistency of the
// registry maps via the public API only.
func checkInvariants(r *Registry, pool []*fakeConn) error {
	seen := make(map[string]Conn)
	for _, c := range pool {
		name, ok := r.WhoHolds(c)
		if !ok {
			continue
		}
		if prev, dup := seen[name]; dup {
			return fmt.Errorf("name %q held by both %s and %s", name, prev.ID(), c.ID())
		}
		seen[name] = c

		owner, ok := r.Lookup(name)
		if !ok {
			return fmt.Errorf("WhoHolds says %s holds %q but Lookup finds nothing", c.ID(), name)
		}
		if owner != Conn(c) {
			return fmt.Errorf("inverse violated: WhoHolds(%s)=%q but Lookup(%q)=%s", c.ID(), name, name, owner.ID())
		}
	}

	snapshot := r.Snapshot()
	if len(snapshot) != len(seen) {
		return fmt.Errorf("snapshot has %d names, expected %d", len(snapshot), len(seen))
	}
	for _, name := range snapshot {
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("snapshot contains %q which no connection holds", name)
		}
	}
	return nil
}

// Property: for all sequences of claims and releases, at no point do two
// distinct live connections map to the same display name, and the
// connection→name and name→connection maps stay mutual inverses.
func TestProperty_UniquenessAndInverseConsistency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	const nConns, nNames, nTokens = 5, 4, 3

	properties.Property("uniqueness and inverse consistency hold after every op", prop.ForAll(
		func(ops []regOp) bool {
			r := New()
			pool := make([]*fakeConn, nConns)
			for i := range pool {
				pool[i] = newFakeConn(fmt.Sprintf("conn-%d", i))
			}

			for _, op := range ops {
				conn := pool[op.conn]
				switch op.kind {
				case opClaim:
					name := fmt.Sprintf("user-%d", op.name)
					token := fmt.Sprintf("token-%d", op.token)
					if _, err := r.Claim(conn, name, token); err != nil && !errors.Is(err, ErrNameInUse) {
						return false
					}
				case opRelease:
					r.Release(conn)
				}

				if err := checkInvariants(r, pool); err != nil {
					t.Logf("invariant violated: %v", err)
					return false
				}
			}
			return true
		},
		genOps(nConns, nNames, nTokens),
	))

	properties.TestingRun(t)
}

// Property: a rejected claim leaves the registry exactly as it was.
func TestProperty_RejectedClaimChangesNothing(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("failed claim leaves owner binding untouched", prop.ForAll(
		func(name, ownerToken, attackerToken string) bool {
			if ownerToken == attackerToken {
				return true // only distinct tokens model a different session
			}

			r := New()
			owner := newFakeConn("owner")
			attacker := newFakeConn("attacker")

			if _, err := r.Claim(owner, name, ownerToken); err != nil {
				return false
			}

			_, err := r.Claim(attacker, name, attackerToken)
			if !errors.Is(err, ErrNameInUse) {
				return false
			}

			got, ok := r.Lookup(name)
			if !ok || got != Conn(owner) {
				return false
			}
			if _, ok := r.WhoHolds(attacker); ok {
				return false
			}
			return true
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

// Property: takeover with the owner's token always succeeds and transfers the
// binding to the newer connection.
func TestProperty_TakeoverTransfersBinding(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("same-token claim evicts the old connection", prop.ForAll(
		func(name, token string) bool {
			r := New()
			old := newFakeConn("old")
			fresh := newFakeConn("fresh")

			if _, err := r.Claim(old, name, token); err != nil {
				return false
			}

			res, err := r.Claim(fresh, name, token)
			if err != nil || res.Outcome != OutcomeTakeover || res.Evicted != Conn(old) {
				return false
			}

			got, ok := r.Lookup(name)
			if !ok || got != Conn(fresh) {
				return false
			}
			_, ok = r.WhoHolds(old)
			return !ok
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
