package auth

import (
	"log"
)

// Init builds the registry and registers the bootstrap admin key when one is configured.
func Init(adminKey string) *Registry {
	reg := NewRegistry()
	if adminKey == "" {
		return reg
	}
	info, err := reg.Register(adminKey, "bootstrap-admin", TierAdmin, nil)
	if err != nil {
		log.Printf("[auth] WARNING: failed to register bootstrap admin key: %v", err)
		return reg
	}
	log.Printf("[auth] registered bootstrap admin key %s (prefix %s)", info.ID, info.Prefix)
	return reg
}
