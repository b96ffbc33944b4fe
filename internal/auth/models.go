package auth

import (
	"fmt"
	"strings"
	"time"
)

// Tier gates rate limits and endpoint access. Tiers are ordered.
type Tier string

const (
	TierFree     Tier = "free"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
	TierAdmin    Tier = "admin"
)

var tierRank = map[Tier]int{TierFree: 0, TierStandard: 1, TierPremium: 2, TierAdmin: 3}

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tierRank[t]; !ok {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// AtLeast reports whether t ranks at or above min.
func (t Tier) AtLeast(min Tier) bool {
	r, ok := tierRank[t]
	if !ok {
		return false
	}
	return r >= tierRank[min]
}

// Scopes.
const (
	ScopeAdminAll = "admin:all"
	ScopeReadAll  = "read:all"
)

// DefaultScopes are granted when a key is created without explicit scopes.
var DefaultScopes = map[Tier][]string{
	TierFree:     {"read:facts", "read:dengue", "read:municipios", "read:gold"},
	TierStandard: {ScopeReadAll},
	TierPremium:  {ScopeReadAll, "write:risk"},
	TierAdmin:    {ScopeAdminAll},
}

// KeyInfo describes an API key. The raw key is never stored.
type KeyInfo struct {
	ID         string     `json:"key_id"`
	Owner      string     `json:"owner"`
	Tier       Tier       `json:"tier"`
	Scopes     []string   `json:"scopes"`
	Prefix     string     `json:"prefix"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Active     bool       `json:"is_active"`
}

// HasScope applies the scope rules: admin:all grants everything, read:all
// grants any read:* scope, otherwise the scope must match exactly.
func (k KeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		switch {
		case s == ScopeAdminAll, s == scope:
			return true
		case s == ScopeReadAll && strings.HasPrefix(scope, "read:"):
			return true
		}
	}
	return false
}

// CreateKeyRequest is the body of POST /api/v1/keys.
type CreateKeyRequest struct {
	Owner  string   `json:"owner"`
	Tier   string   `json:"tier"`
	Scopes []string `json:"scopes,omitempty"`
}

// CreateKeyResponse carries the raw key, shown exactly once.
type CreateKeyResponse struct {
	APIKey  string  `json:"api_key"`
	Key     KeyInfo `json:"key"`
	Warning string  `json:"warning"`
}
