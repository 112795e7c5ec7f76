package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/corvid-labs/grackle/pkg/types"
)

// ErrNotFound is returned by point lookups that match no row
var ErrNotFound = errors.New("not found")

// Store is the transactional facade over the relational store. All writes
// go through one open unit of work; Commit closes it and opens the next.
// The store is owned by the enumeration manager: a single goroutine at a
// time may use it.
type Store struct {
	db *sqlx.DB
	tx *sqlx.Tx
}

// Open opens (creating if necessary) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.begin(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) begin() error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return nil
}

// Commit commits the open unit of work and opens the next one
func (s *Store) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return s.begin()
}

// Rollback discards the open unit of work and opens the next one
func (s *Store) Rollback() error {
	if err := s.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback: %w", err)
	}
	return s.begin()
}

// Close discards any open unit of work and closes the database
func (s *Store) Close() error {
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}

// Select runs an arbitrary query through the open unit of work and scans
// all rows into dst
func (s *Store) Select(dst any, query string, args ...any) error {
	return s.tx.Select(dst, query, args...)
}

func (s *Store) insert(query string, arg any) (int64, error) {
	res, err := s.tx.NamedExec(query, arg)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertDomainInfo stores the run's root record and refreshes its
// server-assigned id, which becomes the run's ad_id.
func (s *Store) InsertDomainInfo(info *types.DomainInfo) error {
	id, err := s.insert(`INSERT INTO adinfo (dn, guid, sid, name, enum_state)
		VALUES (:dn, :guid, :sid, :name, :enum_state)`, info)
	if err != nil {
		return fmt.Errorf("failed to insert domain info: %w", err)
	}
	info.ID = id
	return nil
}

// GetDomainInfo loads the run record for adID
func (s *Store) GetDomainInfo(adID int64) (*types.DomainInfo, error) {
	var info types.DomainInfo
	err := s.tx.Get(&info, `SELECT id, dn, guid, sid, name, enum_state FROM adinfo WHERE id = ?`, adID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load domain info: %w", err)
	}
	return &info, nil
}

// UpdateEnumState transitions the run's lifecycle state
func (s *Store) UpdateEnumState(adID int64, state types.EnumState) error {
	if _, err := s.tx.Exec(`UPDATE adinfo SET enum_state = ? WHERE id = ?`, state, adID); err != nil {
		return fmt.Errorf("failed to update enum state: %w", err)
	}
	return nil
}

// InsertUser stores a user row and refreshes its id
func (s *Store) InsertUser(u *types.User) error {
	id, err := s.insert(`INSERT INTO aduser (ad_id, dn, guid, sid, cn, sam_account_name)
		VALUES (:ad_id, :dn, :guid, :sid, :cn, :sam_account_name)`, u)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	u.ID = id
	return nil
}

// InsertSPN stores one parsed user SPN row
func (s *Store) InsertSPN(spn *types.SPN) error {
	id, err := s.insert(`INSERT INTO adspn (ad_id, owner_sid, service_class, computername, port, service_name)
		VALUES (:ad_id, :owner_sid, :service_class, :computername, :port, :service_name)`, spn)
	if err != nil {
		return fmt.Errorf("failed to insert spn: %w", err)
	}
	spn.ID = id
	return nil
}

// InsertMachine stores a machine row and refreshes its id
func (s *Store) InsertMachine(m *types.Machine) error {
	id, err := s.insert(`INSERT INTO admachine (ad_id, dn, guid, sid, cn, sam_account_name, dns_hostname)
		VALUES (:ad_id, :dn, :guid, :sid, :cn, :sam_account_name, :dns_hostname)`, m)
	if err != nil {
		return fmt.Errorf("failed to insert machine: %w", err)
	}
	m.ID = id
	return nil
}

// InsertDelegation stores one constrained-delegation target
func (s *Store) InsertDelegation(d *types.MachineDelegation) error {
	id, err := s.insert(`INSERT INTO delegation (machine_sid, target_spn, service_class, computername, port, service_name)
		VALUES (:machine_sid, :target_spn, :service_class, :computername, :port, :service_name)`, d)
	if err != nil {
		return fmt.Errorf("failed to insert delegation: %w", err)
	}
	d.ID = id
	return nil
}

// InsertGroup stores a group row
func (s *Store) InsertGroup(g *types.Group) error {
	id, err := s.insert(`INSERT INTO adgroup (ad_id, dn, guid, sid, cn)
		VALUES (:ad_id, :dn, :guid, :sid, :cn)`, g)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	g.ID = id
	return nil
}

// InsertOU stores an OU row and refreshes its id
func (s *Store) InsertOU(ou *types.OU) error {
	id, err := s.insert(`INSERT INTO adou (ad_id, dn, guid, name, gplink)
		VALUES (:ad_id, :dn, :guid, :name, :gplink)`, ou)
	if err != nil {
		return fmt.Errorf("failed to insert ou: %w", err)
	}
	ou.ID = id
	return nil
}

// InsertGPLink stores one parsed gPLink row
func (s *Store) InsertGPLink(l *types.GPLink) error {
	id, err := s.insert(`INSERT INTO gplink (ad_id, ou_guid, gpo_dn, link_order)
		VALUES (:ad_id, :ou_guid, :gpo_dn, :link_order)`, l)
	if err != nil {
		return fmt.Errorf("failed to insert gplink: %w", err)
	}
	l.ID = id
	return nil
}

// InsertGPO stores a GPO row
func (s *Store) InsertGPO(g *types.GPO) error {
	id, err := s.insert(`INSERT INTO adgpo (ad_id, dn, guid, display_name, path)
		VALUES (:ad_id, :dn, :guid, :display_name, :path)`, g)
	if err != nil {
		return fmt.Errorf("failed to insert gpo: %w", err)
	}
	g.ID = id
	return nil
}

// InsertTrust stores a trust row
func (s *Store) InsertTrust(t *types.Trust) error {
	id, err := s.insert(`INSERT INTO adtrust (ad_id, dn, guid, cn, security_identifier, trust_direction, trust_type)
		VALUES (:ad_id, :dn, :guid, :cn, :security_identifier, :trust_direction, :trust_type)`, t)
	if err != nil {
		return fmt.Errorf("failed to insert trust: %w", err)
	}
	t.ID = id
	return nil
}

// InsertSPNService stores one SPN-sweep row
func (s *Store) InsertSPNService(spn *types.SPNService) error {
	id, err := s.insert(`INSERT INTO spnservice (ad_id, owner_sid, service_class, computername, port, service_name)
		VALUES (:ad_id, :owner_sid, :service_class, :computername, :port, :service_name)`, spn)
	if err != nil {
		return fmt.Errorf("failed to insert spn service: %w", err)
	}
	spn.ID = id
	return nil
}

// InsertTokenGroup stores one effective-membership row
func (s *Store) InsertTokenGroup(tg *types.TokenGroup) error {
	id, err := s.insert(`INSERT INTO tokengroup (ad_id, guid, sid, object_type, member_sid)
		VALUES (:ad_id, :guid, :sid, :object_type, :member_sid)`, tg)
	if err != nil {
		return fmt.Errorf("failed to insert tokengroup: %w", err)
	}
	tg.ID = id
	return nil
}

// InsertSDBinding stores a security descriptor binding. At most one binding
// exists per (ad_id, guid); re-inserting a covered pair is a no-op so bulk
// loads of resumed runs stay idempotent.
func (s *Store) InsertSDBinding(sd *types.SDBinding) error {
	_, err := s.tx.NamedExec(`INSERT OR IGNORE INTO adsd (ad_id, guid, sid, object_type, sd, sd_hash)
		VALUES (:ad_id, :guid, :sid, :object_type, :sd, :sd_hash)`, sd)
	if err != nil {
		return fmt.Errorf("failed to insert sd binding: %w", err)
	}
	return nil
}

// InsertGraphInfo stores a graph registration row and refreshes its id
func (s *Store) InsertGraphInfo(g *types.GraphInfo) error {
	id, err := s.insert(`INSERT INTO graphinfo (ad_id) VALUES (:ad_id)`, g)
	if err != nil {
		return fmt.Errorf("failed to insert graph info: %w", err)
	}
	g.ID = id
	return nil
}

// GetGraphInfo resolves a graph id to its enumeration run
func (s *Store) GetGraphInfo(graphID int64) (*types.GraphInfo, error) {
	var g types.GraphInfo
	err := s.tx.Get(&g, `SELECT id, ad_id FROM graphinfo WHERE id = ?`, graphID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load graph info: %w", err)
	}
	return &g, nil
}

// InsertEdgeLookup stores a node id mapping and refreshes its id
func (s *Store) InsertEdgeLookup(l *types.EdgeLookup) error {
	id, err := s.insert(`INSERT INTO edgelookup (ad_id, oid, otype) VALUES (:ad_id, :oid, :otype)`, l)
	if err != nil {
		return fmt.Errorf("failed to insert edge lookup: %w", err)
	}
	l.ID = id
	return nil
}

// InsertEdge stores one labelled edge
func (s *Store) InsertEdge(e *types.Edge) error {
	id, err := s.insert(`INSERT INTO edge (graph_id, ad_id, src, dst, label)
		VALUES (:graph_id, :ad_id, :src, :dst, :label)`, e)
	if err != nil {
		return fmt.Errorf("failed to insert edge: %w", err)
	}
	e.ID = id
	return nil
}

// LookupIDByOID resolves an (ad_id, oid) pair to its stable node id
func (s *Store) LookupIDByOID(adID int64, oid string) (int64, error) {
	var id int64
	err := s.tx.Get(&id, `SELECT id FROM edgelookup WHERE ad_id = ? AND oid = ?`, adID, oid)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve oid: %w", err)
	}
	return id, nil
}

// GetEdgeLookup loads a node id mapping by id
func (s *Store) GetEdgeLookup(id int64) (*types.EdgeLookup, error) {
	var l types.EdgeLookup
	err := s.tx.Get(&l, `SELECT id, ad_id, COALESCE(oid, '') AS oid, otype FROM edgelookup WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load edge lookup: %w", err)
	}
	return &l, nil
}

// EdgeLabels returns the distinct labels present between src and dst
func (s *Store) EdgeLabels(graphID, adID, src, dst int64) ([]string, error) {
	var labels []string
	err := s.tx.Select(&labels, `SELECT DISTINCT label FROM edge
		WHERE graph_id = ? AND ad_id = ? AND src = ? AND dst = ?`, graphID, adID, src, dst)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve edge labels: %w", err)
	}
	return labels, nil
}

// CNForOID resolves a directory identifier to its CN through the table
// matching the object type. Trusts are matched on securityIdentifier.
func (s *Store) CNForOID(otype string, oid string) (string, error) {
	var query string
	switch types.ObjectKind(otype) {
	case types.ObjectKindUser:
		query = `SELECT cn FROM aduser WHERE sid = ?`
	case types.ObjectKindGroup:
		query = `SELECT cn FROM adgroup WHERE sid = ?`
	case types.ObjectKindMachine:
		query = `SELECT cn FROM admachine WHERE sid = ?`
	case types.ObjectKindTrust:
		query = `SELECT cn FROM adtrust WHERE security_identifier = ?`
	default:
		return "", nil
	}
	var cn string
	err := s.tx.Get(&cn, query, oid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve cn: %w", err)
	}
	return cn, nil
}
