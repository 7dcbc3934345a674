package venue

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/musicamatics/queueskip/internal/pass/models"
	id "github.com/musicamatics/queueskip/pkg/domain"
)

// fileConfig is the on-disk shape of a venue configuration file. IDs are
// plain UUID strings; they are parsed and validated on load.
type fileConfig struct {
	Venues []struct {
		ID       string       `json:"id"`
		Name     string       `json:"name"`
		Features FeatureFlags `json:"features"`
		Rules    []struct {
			UserGroup  string `json:"userGroup"`
			PassTypeID string `json:"passTypeId"`
			Quantity   int    `json:"quantity"`
			Period     string `json:"period"`
			AutoRenew  bool   `json:"autoRenew"`
		} `json:"allocationRules"`
	} `json:"venues"`
	Associations []struct {
		UserID    string `json:"userId"`
		VenueID   string `json:"venueId"`
		UserGroup string `json:"userGroup"`
	} `json:"associations"`
}

// LoadFile reads venue configuration from a JSON file into a MemoryProvider.
// The file is read once at startup; changing it requires a restart.
func LoadFile(path string) (*MemoryProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read venue config: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse venue config: %w", err)
	}

	p := NewMemoryProvider()
	for _, v := range fc.Venues {
		venueID, err := id.ParseVenueID(v.ID)
		if err != nil {
			return nil, fmt.Errorf("venue %q: %w", v.Name, err)
		}
		cfg := &Config{ID: venueID, Name: v.Name, Features: v.Features}
		for _, r := range v.Rules {
			typeID, err := id.ParsePassTypeID(r.PassTypeID)
			if err != nil {
				return nil, fmt.Errorf("venue %q rule for %q: %w", v.Name, r.UserGroup, err)
			}
			cfg.AllocationRules = append(cfg.AllocationRules, models.AllocationRule{
				VenueID:    venueID,
				UserGroup:  r.UserGroup,
				PassTypeID: typeID,
				Quantity:   r.Quantity,
				Period:     r.Period,
				AutoRenew:  r.AutoRenew,
			})
		}
		p.SeedVenue(cfg)
	}

	for _, a := range fc.Associations {
		userID, err := id.ParseUserID(a.UserID)
		if err != nil {
			return nil, fmt.Errorf("association for venue %q: %w", a.VenueID, err)
		}
		venueID, err := id.ParseVenueID(a.VenueID)
		if err != nil {
			return nil, fmt.Errorf("association for user %q: %w", a.UserID, err)
		}
		p.SeedAssociation(userID, venueID, a.UserGroup)
	}

	return p, nil
}
