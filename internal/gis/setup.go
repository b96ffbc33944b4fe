package gis

import (
	"context"
	"log"

	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/sources"
	"github.com/techdengue/analytics/internal/store"
)

// Init builds the chain: the database when adapter is non-nil, the remote
// dataset when the store reads remotely, then the local snapshot.
func Init(adapter *sources.GISAdapter, st *store.Store, strict bool) *Service {
	var chain []Source
	if adapter != nil {
		chain = append(chain, DBSource{Adapter: adapter})
	}
	if st.Remote() != "" {
		chain = append(chain, StoreSource{Label: "remote", Load: st.Load})
	}
	chain = append(chain, StoreSource{Label: "snapshot", Load: func(_ context.Context, name string) (*frame.Frame, error) {
		return st.LoadLocal(name)
	}})
	names := make([]string, len(chain))
	for i, s := range chain {
		names[i] = s.Name()
	}
	log.Printf("GIS module initialized (sources: %v, strict: %t)", names, strict)
	return &Service{Chain: &Chain{Sources: chain}, Strict: strict}
}
