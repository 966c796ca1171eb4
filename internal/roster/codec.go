// Package roster encodes filled role slots for storage.
//
// A filled slot is a (role, holder) pair. At rest it is kept as a single
// token "ROLE|holderID"; role names never contain the delimiter.
package roster

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jamsession/api/internal/role"
)

// Delimiter separates the role from the holder id inside a token.
const Delimiter = "|"

var (
	ErrMissingDelimiter = errors.New("roster: token has no delimiter")
	ErrUnknownRole      = errors.New("roster: token role is not in the catalog")
	ErrBadHolder        = errors.New("roster: token holder is not an integer id")
)

// Entry is one satisfied requirement slot.
type Entry struct {
	Role     role.Role
	HolderID int64
}

// Encode joins role and holder into a token.
func Encode(e Entry) string {
	return string(e.Role) + Delimiter + strconv.FormatInt(e.HolderID, 10)
}

// Decode parses a token produced by Encode.
func Decode(token string) (Entry, error) {
	name, holder, ok := strings.Cut(token, Delimiter)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrMissingDelimiter, token)
	}
	r, err := role.Parse(name)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
	id, err := strconv.ParseInt(holder, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %q", ErrBadHolder, holder)
	}
	return Entry{Role: r, HolderID: id}, nil
}

// EncodeAll encodes entries in order.
func EncodeAll(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = Encode(e)
	}
	return out
}

// DecodeAll decodes tokens in order, failing on the first malformed token.
func DecodeAll(tokens []string) ([]Entry, error) {
	out := make([]Entry, 0, len(tokens))
	for _, t := range tokens {
		e, err := Decode(t)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (e Entry) String() string { return Encode(e) }

// MarshalText makes JSON and other text encoders store the token form.
func (e Entry) MarshalText() ([]byte, error) {
	return []byte(Encode(e)), nil
}

// UnmarshalText is the inverse of MarshalText.
func (e *Entry) UnmarshalText(b []byte) error {
	decoded, err := Decode(string(b))
	if err != nil {
		return err
	}
	*e = decoded
	return nil
}
