package venue_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/musicamatics/queueskip/internal/venue"
	id "github.com/musicamatics/queueskip/pkg/domain"
	"github.com/musicamatics/queueskip/pkg/platform/sentinel"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "venues.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	venueID := uuid.NewString()
	typeID := uuid.NewString()
	userID := uuid.NewString()

	path := writeConfig(t, `{
		"venues": [{
			"id": "`+venueID+`",
			"name": "City Museum",
			"features": {"passTransfer": true},
			"allocationRules": [{
				"userGroup": "members",
				"passTypeId": "`+typeID+`",
				"quantity": 3,
				"period": "day"
			}]
		}],
		"associations": [{
			"userId": "`+userID+`",
			"venueId": "`+venueID+`",
			"userGroup": "members"
		}]
	}`)

	p, err := venue.LoadFile(path)
	require.NoError(t, err)

	ctx := context.Background()
	cfg, err := p.Venue(ctx, id.VenueID(uuid.MustParse(venueID)))
	require.NoError(t, err)
	require.Equal(t, "City Museum", cfg.Name)
	require.True(t, cfg.Features.PassTransfer)
	require.Len(t, cfg.AllocationRules, 1)
	require.Equal(t, "members", cfg.AllocationRules[0].UserGroup)
	require.Equal(t, 3, cfg.AllocationRules[0].Quantity)

	group, ok, err := p.Associated(ctx, id.UserID(uuid.MustParse(userID)), cfg.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "members", group)
}

func TestLoadFileUnknownVenueStaysNotFound(t *testing.T) {
	path := writeConfig(t, `{"venues": []}`)

	p, err := venue.LoadFile(path)
	require.NoError(t, err)

	_, err = p.Venue(context.Background(), id.VenueID(uuid.New()))
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestLoadFileRejectsBadVenueID(t *testing.T) {
	path := writeConfig(t, `{"venues": [{"id": "not-a-uuid", "name": "Broken"}]}`)

	_, err := venue.LoadFile(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Broken")
}

func TestLoadFileMissingFile(t *testing.T) {
	_, err := venue.LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
