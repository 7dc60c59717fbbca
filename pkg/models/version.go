package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is an entity's semantic version. The major part increments on
// backward-incompatible changes and resets the minor part to zero; the minor
// part increments by one for patch-style changes. Stored as an integer pair
// rather than a float so repeated minor bumps never drift.
type Version struct {
	Major int
	Minor int
}

// VersionInitial is the version assigned to a newly created entity.
var VersionInitial = Version{Major: 0, Minor: 1}

// ParseVersion parses a "major.minor" string such as "1.2".
func ParseVersion(s string) (Version, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	if major < 0 || minor < 0 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	return Version{Major: major, Minor: minor}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// BumpMinor returns the next patch version.
func (v Version) BumpMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// BumpMajor returns the next major version with the minor part reset.
func (v Version) BumpMajor() Version {
	return Version{Major: v.Major + 1, Minor: 0}
}

// IsZero reports whether the version was never set. The initial version of a
// real entity is 0.1, so the zero value is never a stored version.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0
}

// Compare returns -1, 0 or 1 ordering v against other.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}
	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}
	return 0
}

// MarshalJSON renders the version as a JSON string ("1.2").
func (v Version) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(v.String())), nil
}

// UnmarshalJSON accepts a quoted "major.minor" string.
func (v *Version) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("invalid version payload %s: %w", data, err)
	}
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FieldDelta records how a single tracked field changed between two versions.
// Scalar fields populate Old/New; list fields populate Added/Deleted instead,
// so consumers can render "added X, removed Y" rather than opaque blobs.
type FieldDelta struct {
	Old     any   `json:"old,omitempty"`
	New     any   `json:"new,omitempty"`
	Added   []any `json:"added,omitempty"`
	Deleted []any `json:"deleted,omitempty"`
}

// ChangeDescription is the structured diff attached to an entity version.
// It is immutable once the version is committed.
type ChangeDescription struct {
	PreviousVersion Version               `json:"previousVersion"`
	Fields          map[string]FieldDelta `json:"fields"`
}

// VersionSummary is one row of an entity's version history listing.
type VersionSummary struct {
	Version           Version            `json:"version"`
	UpdatedBy         string             `json:"updatedBy"`
	UpdatedAt         int64              `json:"updatedAt"`
	ChangeDescription *ChangeDescription `json:"changeDescription,omitempty"`
}
