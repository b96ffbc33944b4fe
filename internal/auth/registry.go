package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrKeyNotFound = errors.New("api key not found")
	ErrEmptyOwner  = errors.New("owner is required")
	ErrDuplicate   = errors.New("api key already registered")
)

// KeyPrefix starts every generated raw key.
const KeyPrefix = "td_"

const prefixLen = 10

// KeyStore is the key registry contract. Registry is the in-memory
// implementation; a persistent repository can replace it.
type KeyStore interface {
	Create(owner string, tier Tier, scopes []string) (string, KeyInfo, error)
	Register(raw, owner string, tier Tier, scopes []string) (KeyInfo, error)
	Validate(raw string) (KeyInfo, bool)
	Revoke(id string) error
	List() []KeyInfo
}

// Registry maps SHA-256(raw key) to key info.
type Registry struct {
	now func() time.Time

	mu     sync.RWMutex
	byHash map[string]*KeyInfo
	byID   map[string]string
}

func NewRegistry() *Registry {
	return &Registry{now: time.Now, byHash: map[string]*KeyInfo{}, byID: map[string]string{}}
}

// HashKey returns the hex SHA-256 of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateKey returns a new random raw key.
func GenerateKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(b), nil
}

// Create generates a key for owner and returns the raw key with its info.
// The raw key cannot be recovered afterwards.
func (r *Registry) Create(owner string, tier Tier, scopes []string) (string, KeyInfo, error) {
	raw, err := GenerateKey()
	if err != nil {
		return "", KeyInfo{}, err
	}
	info, err := r.Register(raw, owner, tier, scopes)
	if err != nil {
		return "", KeyInfo{}, err
	}
	return raw, info, nil
}

// Register stores an externally supplied raw key, such as the bootstrap admin key.
func (r *Registry) Register(raw, owner string, tier Tier, scopes []string) (KeyInfo, error) {
	if owner == "" {
		return KeyInfo{}, ErrEmptyOwner
	}
	if _, ok := tierRank[tier]; !ok {
		return KeyInfo{}, fmt.Errorf("unknown tier %q", tier)
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes[tier]
	}
	prefix := raw
	if len(prefix) > prefixLen {
		prefix = prefix[:prefixLen]
	}
	info := &KeyInfo{
		ID:        uuid.NewString(),
		Owner:     owner,
		Tier:      tier,
		Scopes:    append([]string(nil), scopes...),
		Prefix:    prefix,
		CreatedAt: r.now().UTC(),
		Active:    true,
	}
	h := HashKey(raw)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byHash[h]; exists {
		return KeyInfo{}, ErrDuplicate
	}
	r.byHash[h] = info
	r.byID[info.ID] = h
	return *info, nil
}

// Validate looks up an active key and stamps its last use.
func (r *Registry) Validate(raw string) (KeyInfo, bool) {
	if raw == "" {
		return KeyInfo{}, false
	}
	h := HashKey(raw)
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.byHash[h]
	if !ok || !info.Active {
		return KeyInfo{}, false
	}
	now := r.now().UTC()
	info.LastUsedAt = &now
	return info.clone(), true
}

// Revoke deactivates a key by id.
func (r *Registry) Revoke(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byID[id]
	if !ok {
		return ErrKeyNotFound
	}
	r.byHash[h].Active = false
	return nil
}

// List returns every key ordered by creation time.
func (r *Registry) List() []KeyInfo {
	r.mu.RLock()
	out := make([]KeyInfo, 0, len(r.byHash))
	for _, info := range r.byHash {
		out = append(out, info.clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (k *KeyInfo) clone() KeyInfo {
	c := *k
	c.Scopes = append([]string(nil), k.Scopes...)
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		c.LastUsedAt = &t
	}
	return c
}
