// Package authority implements the authority provider (SPEC_FULL.md §4.8):
// grant, lookup with wildcard fallback, tier comparison, and revocation.
package authority

import (
	"sync"
	"time"

	"github.com/cortexrt/cortex/internal/envelope"
)

const wildcardAction = "*"

type key struct {
	agentID string
	action  string
}

// Provider is keyed by (agentId, action), with a sentinel "*" action key for
// claims that were granted without an action enumeration.
type Provider struct {
	mu     sync.Mutex
	claims map[key]envelope.AuthorityClaim
	now    func() time.Time
}

// New builds an empty provider. now defaults to time.Now if nil.
func New(now func() time.Time) *Provider {
	if now == nil {
		now = time.Now
	}
	return &Provider{claims: make(map[key]envelope.AuthorityClaim), now: now}
}

// Grant indexes claim under every action it names, or under the wildcard
// sentinel if PermittedActions is empty. Granting the same claim twice
// leaves the store equivalent to a single grant (the second grant simply
// overwrites the identical entries).
func (p *Provider) Grant(claim envelope.AuthorityClaim) {
	p.mu.Lock()
	defer p.mu.Unlock()

	actions := claim.PermittedActions
	if len(actions) == 0 {
		actions = []string{wildcardAction}
	}
	for _, action := range actions {
		p.claims[key{claim.GrantedTo, action}] = claim
	}
}

// GetClaim returns the claim for (agentID, action), falling back to the
// wildcard entry if no action-specific claim exists. An expired claim is
// purged and reported as absent.
func (p *Provider) GetClaim(agentID, action string) (envelope.AuthorityClaim, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if claim, ok := p.lookupAndPurge(key{agentID, action}); ok {
		return claim, true
	}
	return p.lookupAndPurge(key{agentID, wildcardAction})
}

// lookupAndPurge must be called with p.mu held.
func (p *Provider) lookupAndPurge(k key) (envelope.AuthorityClaim, bool) {
	claim, ok := p.claims[k]
	if !ok {
		return envelope.AuthorityClaim{}, false
	}
	if claim.IsExpired(p.now()) {
		delete(p.claims, k)
		return envelope.AuthorityClaim{}, false
	}
	return claim, true
}

// HasAuthority reports whether agentID holds an unexpired claim for action
// at or above minTier.
func (p *Provider) HasAuthority(agentID, action string, minTier envelope.AuthorityTier) bool {
	claim, ok := p.GetClaim(agentID, action)
	return ok && claim.Tier >= minTier
}

// Revoke removes only the specific (agentID, action) entry; it does not
// touch a wildcard entry that might also apply.
func (p *Provider) Revoke(agentID, action string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.claims, key{agentID, action})
}
