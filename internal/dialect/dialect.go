// Package dialect parameterizes the SQL fragments the comparator engine
// emits: the per-field NULL-coalescing template, the multi-field
// concatenation template, the scalar checksum function and the
// XOR-style aggregate function.
//
// Templates are validated at construction time: each must contain
// exactly one "%s" substitution point. The engine only ever calls
// fmt.Sprintf with operator-supplied templates against operator-supplied
// column lists; it never folds caller-observed data into these strings,
// so the single-verb check is the full safety contract described for
// this adapter.
package dialect

import (
	"fmt"
	"strings"
)

// Dialect is a resolved, validated set of SQL fragments for one side of
// a comparison.
type Dialect struct {
	null      string
	concat    string
	checksum  string
	aggregate string
}

// New validates and builds a Dialect from the four configurable
// fragments. null and concat must each contain exactly one "%s";
// checksum and aggregate must name a non-empty scalar/aggregate SQL
// function.
func New(null, concat, checksum, aggregate string) (*Dialect, error) {
	if err := validateTemplate("null", null); err != nil {
		return nil, err
	}
	if err := validateTemplate("concat", concat); err != nil {
		return nil, err
	}
	if strings.TrimSpace(checksum) == "" {
		return nil, fmt.Errorf("dialect: checksum function name must not be empty")
	}
	if strings.TrimSpace(aggregate) == "" {
		return nil, fmt.Errorf("dialect: aggregate function name must not be empty")
	}
	return &Dialect{null: null, concat: concat, checksum: checksum, aggregate: aggregate}, nil
}

func validateTemplate(name, tmpl string) error {
	if n := strings.Count(tmpl, "%s"); n != 1 {
		return fmt.Errorf("dialect: %s template must contain exactly one %%s placeholder, got %d", name, n)
	}
	// A template is lexical substitution only; reject the handful of
	// extra verbs fmt.Sprintf would otherwise accept silently (%%d, %%v,
	// ...) so a misconfigured operator template fails fast instead of
	// emitting malformed SQL.
	scan := tmpl
	for {
		i := strings.IndexByte(scan, '%')
		if i < 0 {
			break
		}
		if i+1 >= len(scan) {
			return fmt.Errorf("dialect: %s template has a trailing bare %%", name)
		}
		switch scan[i+1] {
		case 's', '%':
		default:
			return fmt.Errorf("dialect: %s template contains an unsupported verb %%%c", name, scan[i+1])
		}
		scan = scan[i+2:]
	}
	return nil
}

// Coalesced wraps a single column reference so that NULL maps to a
// sentinel string.
func (d *Dialect) Coalesced(col string) string {
	return fmt.Sprintf(d.null, col)
}

// ConcatKey produces a single SQL expression concatenating the
// coalesced form of each column, in order.
func (d *Dialect) ConcatKey(cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = d.Coalesced(c)
	}
	return fmt.Sprintf(d.concat, strings.Join(parts, ","))
}

// ConcatAll is ConcatKey over keys followed by cols.
func (d *Dialect) ConcatAll(keys, cols []string) string {
	all := make([]string, 0, len(keys)+len(cols))
	all = append(all, keys...)
	all = append(all, cols...)
	return d.ConcatKey(all)
}

// ChecksumExpr wraps an already-built expression with the scalar
// checksum function.
func (d *Dialect) ChecksumExpr(expr string) string {
	return fmt.Sprintf("%s(%s)", d.checksum, expr)
}

// AggregateExpr wraps a column reference with the XOR-style aggregate
// function.
func (d *Dialect) AggregateExpr(col string) string {
	return fmt.Sprintf("%s(%s)", d.aggregate, col)
}

// Temporary renders the TEMPORARY keyword, or the empty string.
func Temporary(temporary bool) string {
	if temporary {
		return "TEMPORARY"
	}
	return ""
}
