package models

import (
	"strings"

	"github.com/google/uuid"
)

// GlobalSingletonID is the well-known identifier naming a user's global
// context. Each user's actual global row is keyed by this id together with
// the user id, so two users never share a row.
var GlobalSingletonID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// GlobalContextAlias is the string alias callers may pass instead of the
// singleton UUID
const GlobalContextAlias = "global"

// NormalizeID parses an identifier in canonical or compact 32-hex form and
// returns the canonical representation. Callers are expected to surface the
// error as INVALID_FORMAT without touching storage.
func NormalizeID(raw string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(raw)
	return uuid.Parse(trimmed)
}

// NormalizeIDField is NormalizeID with the domain error already shaped for
// the named field
func NormalizeIDField(field, raw string) (uuid.UUID, *AppError) {
	id, err := NormalizeID(raw)
	if err != nil {
		return uuid.Nil, NewInvalidFormatError(field, raw)
	}
	return id, nil
}

// IsGlobalAlias reports whether raw names the global context, either by the
// "global" alias or by the singleton UUID in any accepted form
func IsGlobalAlias(raw string) bool {
	if strings.EqualFold(strings.TrimSpace(raw), GlobalContextAlias) {
		return true
	}
	id, err := NormalizeID(raw)
	return err == nil && id == GlobalSingletonID
}
