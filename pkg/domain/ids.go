package domain

import (
	"github.com/google/uuid"

	dErrors "github.com/musicamatics/queueskip/pkg/domain-errors"
)

// Typed identifiers for the core entities. Construct via the Parse helpers at
// trust boundaries; direct casting bypasses validation.
type (
	PassID     uuid.UUID
	PassTypeID uuid.UUID
	UserID     uuid.UUID
	VenueID    uuid.UUID
	StaffID    uuid.UUID
)

func parse(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be the nil UUID")
	}
	return u, nil
}

func ParsePassID(s string) (PassID, error) {
	u, err := parse("pass id", s)
	return PassID(u), err
}

func ParsePassTypeID(s string) (PassTypeID, error) {
	u, err := parse("pass type id", s)
	return PassTypeID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parse("user id", s)
	return UserID(u), err
}

func ParseVenueID(s string) (VenueID, error) {
	u, err := parse("venue id", s)
	return VenueID(u), err
}

func ParseStaffID(s string) (StaffID, error) {
	u, err := parse("staff id", s)
	return StaffID(u), err
}

func NewPassID() PassID         { return PassID(uuid.New()) }
func NewPassTypeID() PassTypeID { return PassTypeID(uuid.New()) }
func NewUserID() UserID         { return UserID(uuid.New()) }
func NewVenueID() VenueID       { return VenueID(uuid.New()) }
func NewStaffID() StaffID       { return StaffID(uuid.New()) }

func (id PassID) String() string     { return uuid.UUID(id).String() }
func (id PassTypeID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id VenueID) String() string    { return uuid.UUID(id).String() }
func (id StaffID) String() string    { return uuid.UUID(id).String() }

func (id PassID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id PassTypeID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id VenueID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id StaffID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
