package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day time.Weekday, hour, minute int) time.Time {
	// 2025-06-01 is a Sunday.
	base := time.Date(2025, 6, 1, hour, minute, 0, 0, time.UTC)
	return base.AddDate(0, 0, int(day-time.Sunday))
}

func TestRestrictionTimeWindow(t *testing.T) {
	r := Restriction{Kind: RestrictionTimeWindow, Value: "09:00-17:00"}

	assert.True(t, r.Allows(at(time.Monday, 9, 0)))
	assert.True(t, r.Allows(at(time.Monday, 16, 59)))
	assert.False(t, r.Allows(at(time.Monday, 17, 0)))
	assert.False(t, r.Allows(at(time.Monday, 8, 59)))
}

func TestRestrictionTimeWindowWrapsMidnight(t *testing.T) {
	r := Restriction{Kind: RestrictionTimeWindow, Value: "22:00-02:00"}

	assert.True(t, r.Allows(at(time.Friday, 23, 30)))
	assert.True(t, r.Allows(at(time.Saturday, 1, 0)))
	assert.False(t, r.Allows(at(time.Saturday, 3, 0)))
}

func TestRestrictionDayOfWeek(t *testing.T) {
	r := Restriction{Kind: RestrictionDayOfWeek, Value: "mon,wed,fri"}

	assert.True(t, r.Allows(at(time.Monday, 12, 0)))
	assert.True(t, r.Allows(at(time.Friday, 12, 0)))
	assert.False(t, r.Allows(at(time.Sunday, 12, 0)))
}

func TestRestrictionMalformedValueDenies(t *testing.T) {
	cases := []Restriction{
		{Kind: RestrictionTimeWindow, Value: "nonsense"},
		{Kind: RestrictionTimeWindow, Value: "25:00-26:00"},
		{Kind: RestrictionDayOfWeek, Value: "noday"},
		{Kind: RestrictionUsageCount, Value: "zero"},
		{Kind: "unknown", Value: "x"},
	}
	for _, r := range cases {
		assert.False(t, r.Allows(at(time.Monday, 12, 0)), "kind=%s value=%s", r.Kind, r.Value)
	}
}

func TestParseRestrictionKind(t *testing.T) {
	kind, err := ParseRestrictionKind("time_window")
	require.NoError(t, err)
	assert.Equal(t, RestrictionTimeWindow, kind)

	_, err = ParseRestrictionKind("teleport")
	require.Error(t, err)
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Now()
	p := &Pass{Status: StatusActive, ValidFrom: now.Add(-time.Hour), ValidUntil: now.Add(time.Hour)}

	assert.Equal(t, StatusActive, p.EffectiveStatus(now))
	assert.Equal(t, StatusExpired, p.EffectiveStatus(now.Add(time.Hour)))
	assert.Equal(t, StatusExpired, p.EffectiveStatus(now.Add(2*time.Hour)))

	p.Status = StatusUsed
	assert.Equal(t, StatusUsed, p.EffectiveStatus(now.Add(2*time.Hour)))
}
