package schema

import (
	"strings"

	"github.com/hollowdb/hollow/pkg/dberr"
)

// validNamePart checks the §4.C grammar: must begin alphanumeric, remainder
// alphanumeric/./-/_.
func validNamePart(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			continue
		case i > 0 && (r == '.' || r == '-' || r == '_'):
			continue
		default:
			return false
		}
	}
	return true
}

// ValidateQualifiedName checks an "authority.name" identifier, returning an
// *dberr.InvalidName describing the violation if any.
func ValidateQualifiedName(kind, full string) error {
	authority, name, ok := strings.Cut(full, ".")
	if !ok {
		return &dberr.InvalidName{Name: full, Detail: kind + " name must be of the form authority.name"}
	}
	if !validNamePart(authority) {
		return &dberr.InvalidName{Name: full, Detail: kind + " authority must begin alphanumeric; remainder alphanumeric, '.', '-', or '_'"}
	}
	if !validNamePart(name) {
		return &dberr.InvalidName{Name: full, Detail: kind + " name must begin alphanumeric; remainder alphanumeric, '.', '-', or '_'"}
	}
	return nil
}

// ValidateName checks a single-part identifier against the same character
// grammar as ValidateQualifiedName's parts, for names that are not
// authority-qualified (database names, §4.G "Database names follow the
// same rules as schema names").
func ValidateName(kind, name string) error {
	if !validNamePart(name) {
		return &dberr.InvalidName{Name: name, Detail: kind + " name must begin alphanumeric; remainder alphanumeric, '.', '-', or '_'"}
	}
	return nil
}

// FoldName exports foldName for callers outside this package that need
// the same case-insensitive comparison key (e.g. pkg/connection's
// database registry).
func FoldName(s string) string { return foldName(s) }

// foldName normalizes a name for case-insensitive comparisons.
func foldName(s string) string { return strings.ToLower(s) }
