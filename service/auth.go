package service

import (
	"errors"
	"fmt"
)

// Tier is an administrative privilege level.
type Tier int

const (
	// TierAdmin may read the audit trail and seed the candidate
	// directory.
	TierAdmin Tier = iota + 1
	// TierSuperAdmin may run the ceremony, transition the election state,
	// access the tally and reset the election.
	TierSuperAdmin
)

func (t Tier) String() string {
	switch t {
	case TierAdmin:
		return "admin"
	case TierSuperAdmin:
		return "super_admin"
	}
	return "unknown"
}

// ParseTier converts a configuration string into a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "admin":
		return TierAdmin, nil
	case "super_admin":
		return TierSuperAdmin, nil
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// Capability identifies an authenticated actor and their privilege tier. It
// is threaded explicitly into every privileged core operation; nothing in
// the core re-derives authorization on its own.
type Capability struct {
	Actor string
	Tier  Tier
}

// Allows reports whether the capability meets the required tier.
func (c Capability) Allows(required Tier) bool {
	return c.Tier >= required
}

// Authorizer resolves opaque credentials into capabilities. Identity
// verification itself lives outside this core.
type Authorizer interface {
	Authenticate(token string) (Capability, error)
}

// ErrUnknownToken is returned by authorizers for unrecognized credentials.
var ErrUnknownToken = errors.New("unknown credential")

// StaticAuthorizer authenticates against a fixed token table loaded from
// configuration.
type StaticAuthorizer struct {
	tokens map[string]Capability
}

func NewStaticAuthorizer(tokens map[string]Capability) *StaticAuthorizer {
	if tokens == nil {
		tokens = make(map[string]Capability)
	}
	return &StaticAuthorizer{tokens: tokens}
}

func (a *StaticAuthorizer) Authenticate(token string) (Capability, error) {
	cap, ok := a.tokens[token]
	if !ok {
		return Capability{}, ErrUnknownToken
	}
	return cap, nil
}
