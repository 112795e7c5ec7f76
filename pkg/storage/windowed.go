package storage

import (
	"fmt"
	"iter"

	"github.com/corvid-labs/grackle/pkg/types"
)

// Default window sizes for keyset-paginated scans. Second-pass target scans
// run alongside ongoing writes and stay small; the edge export is read-only
// bulk work and takes a wider window.
const (
	TargetWindow = 1000
	EdgeWindow   = 10000
)

// windowed runs a keyset-paginated scan. query must select rows with a
// strictly increasing key, take the last seen key and the window size as
// its final two bind arguments, and order by that key. key extracts the
// pagination key from a fetched row. Rows stream through the returned
// iterator one window at a time; no offset is ever used.
func windowed[T any](s *Store, query string, window int, key func(*T) int64, args ...any) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		var last int64
		for {
			rows := []T{}
			qargs := append(append([]any{}, args...), last, window)
			if err := s.tx.Select(&rows, query, qargs...); err != nil {
				yield(nil, fmt.Errorf("windowed scan failed: %w", err))
				return
			}
			for i := range rows {
				if !yield(&rows[i], nil) {
					return
				}
				last = key(&rows[i])
			}
			if len(rows) < window {
				return
			}
		}
	}
}

// row shapes for the windowed scans; id carries the pagination key only
type targetRow struct {
	ID int64 `db:"id"`
	types.Target
}

type pairRow struct {
	ID  int64 `db:"id"`
	Src int64 `db:"src"`
	Dst int64 `db:"dst"`
}

type lookupRow struct {
	ID  int64  `db:"id"`
	OID string `db:"oid"`
}

var sdTargetTables = []struct {
	table string
	cols  string
	otype types.ObjectKind
}{
	{"aduser", "dn, guid, sid", types.ObjectKindUser},
	{"admachine", "dn, guid, sid", types.ObjectKindMachine},
	{"adgroup", "dn, guid, sid", types.ObjectKindGroup},
	{"adou", "dn, guid, '' AS sid", types.ObjectKindOU},
	{"adgpo", "dn, guid, '' AS sid", types.ObjectKindGPO},
}

var membershipTargetTables = []struct {
	table string
	otype types.ObjectKind
}{
	{"aduser", types.ObjectKindUser},
	{"admachine", types.ObjectKindMachine},
	{"adgroup", types.ObjectKindGroup},
}

// PendingSDTargets streams the objects of the run that have no stored
// security descriptor yet, table by table. Window-sized chunks keep memory
// flat even on runs with hundreds of thousands of objects.
func (s *Store) PendingSDTargets(adID int64, window int) iter.Seq2[*types.Target, error] {
	return func(yield func(*types.Target, error) bool) {
		for _, tt := range sdTargetTables {
			query := fmt.Sprintf(`SELECT id, %s FROM %s
				WHERE ad_id = ? AND guid NOT IN (SELECT guid FROM adsd WHERE ad_id = ?)
				AND id > ? ORDER BY id LIMIT ?`, tt.cols, tt.table)
			for row, err := range windowed[targetRow](s, query, window, func(r *targetRow) int64 { return r.ID }, adID, adID) {
				if err != nil {
					yield(nil, err)
					return
				}
				t := row.Target
				t.ObjectType = tt.otype
				if !yield(&t, nil) {
					return
				}
			}
		}
	}
}

// PendingMembershipTargets streams the users, machines and groups of the
// run that have no tokengroup rows yet
func (s *Store) PendingMembershipTargets(adID int64, window int) iter.Seq2[*types.Target, error] {
	return func(yield func(*types.Target, error) bool) {
		for _, tt := range membershipTargetTables {
			query := fmt.Sprintf(`SELECT id, dn, guid, sid FROM %s
				WHERE ad_id = ? AND guid NOT IN (SELECT guid FROM tokengroup WHERE ad_id = ?)
				AND id > ? ORDER BY id LIMIT ?`, tt.table)
			for row, err := range windowed[targetRow](s, query, window, func(r *targetRow) int64 { return r.ID }, adID, adID) {
				if err != nil {
					yield(nil, err)
					return
				}
				t := row.Target
				t.ObjectType = tt.otype
				if !yield(&t, nil) {
					return
				}
			}
		}
	}
}

// CountPendingSDTargets reports how many objects still lack a security
// descriptor; the second pass sizes its accounting from this.
func (s *Store) CountPendingSDTargets(adID int64) (int64, error) {
	var total int64
	for _, tt := range sdTargetTables {
		var n int64
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s
			WHERE ad_id = ? AND guid NOT IN (SELECT guid FROM adsd WHERE ad_id = ?)`, tt.table)
		if err := s.tx.Get(&n, query, adID, adID); err != nil {
			return 0, fmt.Errorf("failed to count pending sd targets: %w", err)
		}
		total += n
	}
	return total, nil
}

// CountPendingMembershipTargets reports how many users, machines and groups
// still have no tokengroup rows
func (s *Store) CountPendingMembershipTargets(adID int64) (int64, error) {
	var total int64
	for _, tt := range membershipTargetTables {
		var n int64
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s
			WHERE ad_id = ? AND guid NOT IN (SELECT guid FROM tokengroup WHERE ad_id = ?)`, tt.table)
		if err := s.tx.Get(&n, query, adID, adID); err != nil {
			return 0, fmt.Errorf("failed to count pending membership targets: %w", err)
		}
		total += n
	}
	return total, nil
}

// EdgeLookupIDs streams every resolvable node id of the run, excluding the
// entry whose oid equals excludeOID. Used by destination-only path queries
// to sweep all candidate sources.
func (s *Store) EdgeLookupIDs(adID int64, excludeOID string, window int) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		query := `SELECT id, oid FROM edgelookup
			WHERE ad_id = ? AND oid IS NOT NULL AND oid != ?
			AND id > ? ORDER BY id LIMIT ?`
		for row, err := range windowed[lookupRow](s, query, window, func(r *lookupRow) int64 { return r.ID }, adID, excludeOID) {
			if err != nil {
				yield(0, err)
				return
			}
			if !yield(row.ID, nil) {
				return
			}
		}
	}
}

// EdgesForCSV streams the (src, dst) pairs of a graph whose endpoints both
// resolve to a directory identifier, in edge id order
func (s *Store) EdgesForCSV(graphID int64, window int) iter.Seq2[*types.Edge, error] {
	return func(yield func(*types.Edge, error) bool) {
		query := `SELECT e.id, e.src, e.dst FROM edge e
			JOIN edgelookup sl ON sl.id = e.src
			JOIN edgelookup dl ON dl.id = e.dst
			WHERE e.graph_id = ? AND sl.oid IS NOT NULL AND dl.oid IS NOT NULL
			AND e.id > ? ORDER BY e.id LIMIT ?`
		for row, err := range windowed[pairRow](s, query, window, func(r *pairRow) int64 { return r.ID }, graphID) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(&types.Edge{ID: row.ID, GraphID: graphID, Src: row.Src, Dst: row.Dst}, nil) {
				return
			}
		}
	}
}

// TokenGroupRows streams every effective-membership row of the run
func (s *Store) TokenGroupRows(adID int64, window int) iter.Seq2[*types.TokenGroup, error] {
	return func(yield func(*types.TokenGroup, error) bool) {
		query := `SELECT id, ad_id, guid, sid, object_type, member_sid FROM tokengroup
			WHERE ad_id = ? AND id > ? ORDER BY id LIMIT ?`
		for row, err := range windowed[types.TokenGroup](s, query, window, func(r *types.TokenGroup) int64 { return r.ID }, adID) {
			if !yield(row, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// Counts holds per-table row counts for one run
type Counts struct {
	Users       int64 `json:"users"`
	Machines    int64 `json:"machines"`
	Groups      int64 `json:"groups"`
	OUs         int64 `json:"ous"`
	GPOs        int64 `json:"gpos"`
	Trusts      int64 `json:"trusts"`
	SPNServices int64 `json:"spn_services"`
	SDs         int64 `json:"sds"`
	TokenGroups int64 `json:"token_groups"`
}

// CountObjects reports per-table row counts for the run
func (s *Store) CountObjects(adID int64) (*Counts, error) {
	c := &Counts{}
	for _, q := range []struct {
		table string
		dst   *int64
	}{
		{"aduser", &c.Users},
		{"admachine", &c.Machines},
		{"adgroup", &c.Groups},
		{"adou", &c.OUs},
		{"adgpo", &c.GPOs},
		{"adtrust", &c.Trusts},
		{"spnservice", &c.SPNServices},
		{"adsd", &c.SDs},
		{"tokengroup", &c.TokenGroups},
	} {
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE ad_id = ?`, q.table)
		if err := s.tx.Get(q.dst, query, adID); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", q.table, err)
		}
	}
	return c, nil
}
