// Package allowlist holds the closed set of instrument identifiers that may be written to the store.
package allowlist

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrAllowListViolation is returned whenever a write targets an identifier outside the allow-list.
var ErrAllowListViolation = errors.New("identifier is not in the allow-list")

// Guard is an immutable membership set.
type Guard struct {
	version string
	members map[string]struct{}
}

// New builds a Guard. Identifiers are trimmed; blanks are dropped.
func New(version string, identifiers []string) *Guard {
	members := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		members[id] = struct{}{}
	}
	return &Guard{version: version, members: members}
}

func (g *Guard) Version() string {
	return g.version
}

func (g *Guard) Len() int {
	return len(g.members)
}

// Contains reports whether identifier is a member.
func (g *Guard) Contains(identifier string) bool {
	_, ok := g.members[identifier]
	return ok
}

// Check returns a wrapped ErrAllowListViolation for non-members.
func (g *Guard) Check(identifier string) error {
	if g.Contains(identifier) {
		return nil
	}
	return fmt.Errorf("%w: %q (allow-list version %s)", ErrAllowListViolation, identifier, g.version)
}

// Identifiers returns the members in sorted order.
func (g *Guard) Identifiers() []string {
	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
