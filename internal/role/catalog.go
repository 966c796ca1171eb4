// Package role holds the fixed catalog of band roles a jam can require.
package role

import "fmt"

// Role is a band role name drawn from the catalog.
type Role string

const (
	LeadVocals       Role = "LEAD VOCALS"
	BackupVocals     Role = "BACKUP VOCALS"
	Percussion       Role = "PERCUSSION"
	Bass             Role = "BASS"
	RhythmGuitar     Role = "RHYTHM GUITAR"
	LeadGuitar       Role = "LEAD GUITAR"
	Strings          Role = "STRINGS"
	Horns            Role = "HORNS"
	Woodwinds        Role = "WOODWINDS"
	ElectronicSounds Role = "ELECTRONIC SOUNDS"
)

// catalog is kept in display order.
var catalog = []Role{
	LeadVocals,
	BackupVocals,
	Percussion,
	Bass,
	RhythmGuitar,
	LeadGuitar,
	Strings,
	Horns,
	Woodwinds,
	ElectronicSounds,
}

var known = func() map[Role]struct{} {
	m := make(map[Role]struct{}, len(catalog))
	for _, r := range catalog {
		m[r] = struct{}{}
	}
	return m
}()

// Catalog returns a copy of the recognized roles in display order.
func Catalog() []Role {
	out := make([]Role, len(catalog))
	copy(out, catalog)
	return out
}

// IsValid reports whether name is a catalog role.
func IsValid(name string) bool {
	_, ok := known[Role(name)]
	return ok
}

// Parse converts name to a Role, failing for anything outside the catalog.
func Parse(name string) (Role, error) {
	if !IsValid(name) {
		return "", fmt.Errorf("unknown role %q", name)
	}
	return Role(name), nil
}

// ParseAll converts every name, stopping at the first unknown one.
func ParseAll(names []string) ([]Role, error) {
	out := make([]Role, 0, len(names))
	for _, n := range names {
		r, err := Parse(n)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Names converts roles back to plain strings, e.g. for TEXT[] columns.
func Names(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func (r Role) String() string { return string(r) }
