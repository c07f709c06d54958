// Package queries renders the structural SQL the comparator engine
// issues: the level-0 checksum table, the summary-table cascade, the
// walker's per-level ordered select and the bulk-chunk resolver select.
//
// Structural statements are built with text/template rather than string
// concatenation so every substitution point is named and every
// identifier is sanitized before it reaches a template.
package queries

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

var validIdentifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// SanitiseIdentifier rejects anything that is not a bare SQL identifier.
// Table and column names the engine composes into structural SQL
// (cascade table names, key/data column names, and each dot-separated
// part of an operator-supplied source table name) are checked with this
// before being interpolated into a template.
//
// Unlike the teacher's identical-concern helper, this one is not paired
// with pgx.Identifier{...}.Sanitize() quoting: the resulting SQL text is
// shared verbatim across the postgres and mysql Queriers, and
// pgx's quoting is Postgres-specific double-quoting that mysql's default
// (non-ANSI_QUOTES) parser rejects. A reject-only character-class check
// is the one identifier-safety mechanism that is valid unquoted on both
// backends, so it stays the single source of truth here.
func SanitiseIdentifier(ident string) error {
	if !validIdentifierRegex.MatchString(ident) {
		return fmt.Errorf("invalid identifier: %s", ident)
	}
	return nil
}

// SanitiseIdentifiers is SanitiseIdentifier over a list.
func SanitiseIdentifiers(idents []string) error {
	for _, ident := range idents {
		if err := SanitiseIdentifier(ident); err != nil {
			return err
		}
	}
	return nil
}

// SanitiseQualifiedIdentifier is SanitiseIdentifier for a possibly
// dot-qualified name such as "public.orders": every part between the
// dots must independently pass SanitiseIdentifier.
func SanitiseQualifiedIdentifier(ident string) error {
	parts := strings.Split(ident, ".")
	for _, p := range parts {
		if err := SanitiseIdentifier(p); err != nil {
			return fmt.Errorf("invalid identifier %q: %w", ident, err)
		}
	}
	return nil
}

// RenderSQL executes a template against data and returns the resulting
// statement text.
func RenderSQL(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render SQL: %w", err)
	}
	return buf.String(), nil
}
