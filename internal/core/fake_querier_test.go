package core

import (
	"context"
	"regexp"
	"sort"
	"strconv"
)

// fakeRow is one row of a fake table: id is only meaningful at level 0.
type fakeRow struct {
	idc uint32
	cks uint32
	id  string
}

// fakeQuerier is an in-memory Querier used by tests in place of a real
// database. Exec is a no-op that records the statement text; Query
// returns the rows of whichever table the statement names, filtered by
// whichever WHERE form the query renders (the walker's "idc & mask IN
// (...)" or the bulk resolver's disjunction of "(idc & mask) = idc"),
// and sorted by (idc, cks), the order of the walker's ORDER BY.
type fakeQuerier struct {
	tables map[string][]fakeRow
	counts map[string]int64
	execed []string
}

var (
	fromTableRe  = regexp.MustCompile(`(?i)FROM\s+([A-Za-z0-9_]+)`)
	inFilterRe   = regexp.MustCompile(`idc & (\d+) IN \(([^)]*)\)`)
	bulkClauseRe = regexp.MustCompile(`\(idc & (\d+)\) = (\d+)`)
)

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{tables: map[string][]fakeRow{}, counts: map[string]int64{}}
}

func (f *fakeQuerier) seed(table string, rows []fakeRow) {
	sorted := append([]fakeRow{}, rows...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].idc != sorted[j].idc {
			return sorted[i].idc < sorted[j].idc
		}
		return sorted[i].cks < sorted[j].cks
	})
	f.tables[table] = sorted
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string) error {
	f.execed = append(f.execed, sql)
	return nil
}

func (f *fakeQuerier) Count(ctx context.Context, sql string) (int64, error) {
	table := fromTableRe.FindStringSubmatch(sql)
	if table == nil {
		return 0, nil
	}
	if n, ok := f.counts[table[1]]; ok {
		return n, nil
	}
	return int64(len(f.tables[table[1]])), nil
}

func (f *fakeQuerier) Query(ctx context.Context, sql string) (RowIter, error) {
	m := fromTableRe.FindStringSubmatch(sql)
	if m == nil {
		return &fakeRowIter{}, nil
	}
	rows := f.tables[m[1]]

	if in := inFilterRe.FindStringSubmatch(sql); in != nil {
		mask := parseUint(in[1])
		values := map[uint32]bool{}
		for _, v := range splitCSV(in[2]) {
			values[parseUint(v)] = true
		}
		rows = filterRows(rows, func(r fakeRow) bool { return values[r.idc&mask] })
	} else if clauses := bulkClauseRe.FindAllStringSubmatch(sql, -1); clauses != nil {
		rows = filterRows(rows, func(r fakeRow) bool {
			for _, c := range clauses {
				if r.idc&parseUint(c[1]) == parseUint(c[2]) {
					return true
				}
			}
			return false
		})
	}

	return &fakeRowIter{rows: rows}, nil
}

func parseUint(s string) uint32 {
	n, _ := strconv.ParseUint(s, 10, 32)
	return uint32(n)
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func filterRows(rows []fakeRow, keep func(fakeRow) bool) []fakeRow {
	var out []fakeRow
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeQuerier) UnsignedType() string { return "BIGINT" }

type fakeRowIter struct {
	rows []fakeRow
	idx  int
}

func (it *fakeRowIter) Next() bool {
	if it.idx >= len(it.rows) {
		return false
	}
	it.idx++
	return true
}

func (it *fakeRowIter) Scan(idc, cks *uint32, id *string) error {
	row := it.rows[it.idx-1]
	if idc != nil {
		*idc = row.idc
	}
	if cks != nil {
		*cks = row.cks
	}
	if id != nil {
		*id = row.id
	}
	return nil
}

func (it *fakeRowIter) Err() error   { return nil }
func (it *fakeRowIter) Close() error { return nil }
