// Package venue exposes the read-only venue configuration this core consumes:
// feature flags and pass allocation rules. Administration of that
// configuration lives outside the core.
package venue

import (
	"context"
	"sync"

	"github.com/musicamatics/queueskip/internal/pass/models"
	id "github.com/musicamatics/queueskip/pkg/domain"
	"github.com/musicamatics/queueskip/pkg/platform/sentinel"
)

// FeatureFlags are the venue-level switches the core consults. Only
// PassTransfer gates a core operation; the rest ride along for the transport
// layer.
type FeatureFlags struct {
	PassTransfer   bool `json:"passTransfer"`
	PassExpiration bool `json:"passExpiration"`
	OneTimePasses  bool `json:"oneTimePasses"`
}

// Config is one venue's configuration snapshot.
type Config struct {
	ID              id.VenueID
	Name            string
	Features        FeatureFlags
	AllocationRules []models.AllocationRule
}

// Provider supplies venue configuration. Implementations must be safe for
// concurrent reads.
type Provider interface {
	Venue(ctx context.Context, venueID id.VenueID) (*Config, error)
	// Associated reports whether the user holds an active association with
	// the venue, and their user group when they do.
	Associated(ctx context.Context, userID id.UserID, venueID id.VenueID) (string, bool, error)
}

// MemoryProvider is a seedable in-memory Provider for tests and dev runs.
type MemoryProvider struct {
	mu           sync.RWMutex
	venues       map[id.VenueID]*Config
	associations map[id.UserID]map[id.VenueID]string
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		venues:       make(map[id.VenueID]*Config),
		associations: make(map[id.UserID]map[id.VenueID]string),
	}
}

func (p *MemoryProvider) SeedVenue(cfg *Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.venues[cfg.ID] = cfg
}

func (p *MemoryProvider) SeedAssociation(userID id.UserID, venueID id.VenueID, userGroup string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.associations[userID] == nil {
		p.associations[userID] = make(map[id.VenueID]string)
	}
	p.associations[userID][venueID] = userGroup
}

func (p *MemoryProvider) Venue(_ context.Context, venueID id.VenueID) (*Config, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cfg, ok := p.venues[venueID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *cfg
	cp.AllocationRules = append([]models.AllocationRule(nil), cfg.AllocationRules...)
	return &cp, nil
}

func (p *MemoryProvider) Associated(_ context.Context, userID id.UserID, venueID id.VenueID) (string, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	group, ok := p.associations[userID][venueID]
	return group, ok, nil
}
