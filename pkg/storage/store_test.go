package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-labs/grackle/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRun(t *testing.T, s *Store) int64 {
	t.Helper()
	info := &types.DomainInfo{
		DistinguishedName: "DC=corp,DC=example,DC=com",
		GUID:              "11111111-2222-3333-4444-555555555555",
		SID:               "S-1-5-21-1-2-3",
		Name:              "corp.example.com",
		EnumState:         types.EnumStateStarted,
	}
	require.NoError(t, s.InsertDomainInfo(info))
	require.NotZero(t, info.ID)
	return info.ID
}

func TestDomainInfoLifecycle(t *testing.T) {
	s := newTestStore(t)
	adID := newTestRun(t, s)

	got, err := s.GetDomainInfo(adID)
	require.NoError(t, err)
	assert.Equal(t, types.EnumStateStarted, got.EnumState)
	assert.Equal(t, "corp.example.com", got.Name)

	require.NoError(t, s.UpdateEnumState(adID, types.EnumStateFinished))
	got, err = s.GetDomainInfo(adID)
	require.NoError(t, err)
	assert.Equal(t, types.EnumStateFinished, got.EnumState)

	_, err = s.GetDomainInfo(adID + 100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommitOpensNextUnitOfWork(t *testing.T) {
	s := newTestStore(t)
	adID := newTestRun(t, s)
	require.NoError(t, s.Commit())

	// the store stays usable across the commit boundary
	u := &types.User{ADID: adID, DN: "CN=alice,DC=corp", GUID: "g-1", SID: "S-1-5-21-1-2-3-1001", CN: "alice"}
	require.NoError(t, s.InsertUser(u))
	assert.NotZero(t, u.ID)
	require.NoError(t, s.Commit())
}

func TestInsertRefreshesIDs(t *testing.T) {
	s := newTestStore(t)
	adID := newTestRun(t, s)

	m := &types.Machine{ADID: adID, DN: "CN=ws01", GUID: "g-m1", SID: "S-1-5-21-1-2-3-2001", CN: "ws01", DNSHostName: "ws01.corp.example.com"}
	require.NoError(t, s.InsertMachine(m))
	g := &types.Group{ADID: adID, DN: "CN=admins", GUID: "g-g1", SID: "S-1-5-21-1-2-3-512", CN: "admins"}
	require.NoError(t, s.InsertGroup(g))
	ou := &types.OU{ADID: adID, DN: "OU=workstations", GUID: "g-ou1", Name: "workstations"}
	require.NoError(t, s.InsertOU(ou))
	gpo := &types.GPO{ADID: adID, DN: "CN={31B2F340}", GUID: "g-gpo1", DisplayName: "Default Domain Policy"}
	require.NoError(t, s.InsertGPO(gpo))
	tr := &types.Trust{ADID: adID, DN: "CN=other.example.com", CN: "other.example.com", SecurityIdentifier: "S-1-5-21-9-9-9"}
	require.NoError(t, s.InsertTrust(tr))

	for _, id := range []int64{m.ID, g.ID, ou.ID, gpo.ID, tr.ID} {
		assert.NotZero(t, id)
	}
}

func TestSDBindingUniquePerObject(t *testing.T) {
	s := newTestStore(t)
	adID := newTestRun(t, s)

	sd := &types.SDBinding{ADID: adID, GUID: "g-1", SID: "S-1", ObjectType: types.ObjectKindUser, SD: "AQID", SDHash: "abc"}
	require.NoError(t, s.InsertSDBinding(sd))
	// a resumed run replays the same object; the second insert is a no-op
	require.NoError(t, s.InsertSDBinding(&types.SDBinding{ADID: adID, GUID: "g-1", SD: "BBBB", SDHash: "def"}))

	var n int64
	require.NoError(t, s.tx.Get(&n, `SELECT COUNT(*) FROM adsd WHERE ad_id = ? AND guid = ?`, adID, "g-1"))
	assert.EqualValues(t, 1, n)
}

func seedPendingObjects(t *testing.T, s *Store, adID int64, users, machines, groups int) {
	t.Helper()
	for i := 0; i < users; i++ {
		require.NoError(t, s.InsertUser(&types.User{ADID: adID, DN: fmt.Sprintf("CN=u%d", i), GUID: fmt.Sprintf("ug-%d", i), SID: fmt.Sprintf("S-1-5-21-1-2-3-1%03d", i)}))
	}
	for i := 0; i < machines; i++ {
		require.NoError(t, s.InsertMachine(&types.Machine{ADID: adID, DN: fmt.Sprintf("CN=m%d", i), GUID: fmt.Sprintf("mg-%d", i), SID: fmt.Sprintf("S-1-5-21-1-2-3-2%03d", i)}))
	}
	for i := 0; i < groups; i++ {
		require.NoError(t, s.InsertGroup(&types.Group{ADID: adID, DN: fmt.Sprintf("CN=g%d", i), GUID: fmt.Sprintf("gg-%d", i), SID: fmt.Sprintf("S-1-5-21-1-2-3-3%03d", i)}))
	}
}

func sdTargetGUIDs(t *testing.T, s *Store, adID int64, window int) []string {
	t.Helper()
	var guids []string
	for target, err := range s.PendingSDTargets(adID, window) {
		require.NoError(t, err)
		guids = append(guids, target.GUID)
	}
	return guids
}

func TestPendingSDTargets(t *testing.T) {
	s := newTestStore(t)
	adID := newTestRun(t, s)
	seedPendingObjects(t, s, adID, 5, 3, 2)
	require.NoError(t, s.InsertOU(&types.OU{ADID: adID, DN: "OU=x", GUID: "oug-0"}))

	// two users already have descriptors
	require.NoError(t, s.InsertSDBinding(&types.SDBinding{ADID: adID, GUID: "ug-0", SD: "x", SDHash: "h"}))
	require.NoError(t, s.InsertSDBinding(&types.SDBinding{ADID: adID, GUID: "ug-3", SD: "x", SDHash: "h"}))

	guids := sdTargetGUIDs(t, s, adID, TargetWindow)
	assert.Len(t, guids, 9)
	assert.NotContains(t, guids, "ug-0")
	assert.NotContains(t, guids, "ug-3")
	assert.Contains(t, guids, "mg-2")
	assert.Contains(t, guids, "oug-0")

	n, err := s.CountPendingSDTargets(adID)
	require.NoError(t, err)
	assert.EqualValues(t, 9, n)
}

func TestPendingSDTargetsWindowEquivalence(t *testing.T) {
	s := newTestStore(t)
	adID := newTestRun(t, s)
	seedPendingObjects(t, s, adID, 7, 4, 0)

	wide := sdTargetGUIDs(t, s, adID, TargetWindow)
	for _, window := range []int{1, 2, 3, 5} {
		assert.Equal(t, wide, sdTargetGUIDs(t, s, adID, window), "window=%d", window)
	}
}

func TestPendingMembershipTargets(t *testing.T) {
	s := newTestStore(t)
	adID := newTestRun(t, s)
	seedPendingObjects(t, s, adID, 3, 2, 2)

	require.NoError(t, s.InsertTokenGroup(&types.TokenGroup{ADID: adID, GUID: "ug-1", MemberSID: "S-1-5-21-1-2-3-512"}))
	require.NoError(t, s.InsertTokenGroup(&types.TokenGroup{ADID: adID, GUID: "ug-1", MemberSID: "S-1-5-21-1-2-3-513"}))

	var guids []string
	var kinds []types.ObjectKind
	for target, err := range s.PendingMembershipTargets(adID, TargetWindow) {
		require.NoError(t, err)
		guids = append(guids, target.GUID)
		kinds = append(kinds, target.ObjectType)
	}
	assert.Len(t, guids, 6)
	assert.NotContains(t, guids, "ug-1")
	assert.Contains(t, kinds, types.ObjectKindMachine)
	assert.Contains(t, kinds, types.ObjectKindGroup)

	n, err := s.CountPendingMembershipTargets(adID)
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)
}

func TestEdgeQueries(t *testing.T) {
	s := newTestStore(t)
	adID := newTestRun(t, s)

	gi := &types.GraphInfo{ADID: adID}
	require.NoError(t, s.InsertGraphInfo(gi))
	loaded, err := s.GetGraphInfo(gi.ID)
	require.NoError(t, err)
	assert.Equal(t, adID, loaded.ADID)

	a := &types.EdgeLookup{ADID: adID, OID: "S-1-5-21-1-2-3-1001", OType: "user"}
	b := &types.EdgeLookup{ADID: adID, OID: "S-1-5-21-1-2-3-512", OType: "group"}
	c := &types.EdgeLookup{ADID: adID, OID: "S-1-5-21-1-2-3-2001", OType: "machine"}
	for _, l := range []*types.EdgeLookup{a, b, c} {
		require.NoError(t, s.InsertEdgeLookup(l))
	}

	id, err := s.LookupIDByOID(adID, "S-1-5-21-1-2-3-512")
	require.NoError(t, err)
	assert.Equal(t, b.ID, id)
	_, err = s.LookupIDByOID(adID, "S-1-5-21-9-9-9")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.InsertEdge(&types.Edge{GraphID: gi.ID, ADID: adID, Src: a.ID, Dst: b.ID, Label: "member"}))
	require.NoError(t, s.InsertEdge(&types.Edge{GraphID: gi.ID, ADID: adID, Src: a.ID, Dst: b.ID, Label: "GenericAll"}))
	require.NoError(t, s.InsertEdge(&types.Edge{GraphID: gi.ID, ADID: adID, Src: b.ID, Dst: c.ID, Label: "adminTo"}))

	labels, err := s.EdgeLabels(gi.ID, adID, a.ID, b.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"member", "GenericAll"}, labels)

	var pairs [][2]int64
	for e, err := range s.EdgesForCSV(gi.ID, 1) {
		require.NoError(t, err)
		pairs = append(pairs, [2]int64{e.Src, e.Dst})
	}
	assert.Equal(t, [][2]int64{{a.ID, b.ID}, {a.ID, b.ID}, {b.ID, c.ID}}, pairs)

	var ids []int64
	for id, err := range s.EdgeLookupIDs(adID, "S-1-5-21-1-2-3-2001", 2) {
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []int64{a.ID, b.ID}, ids)
}

func TestCNForOID(t *testing.T) {
	s := newTestStore(t)
	adID := newTestRun(t, s)

	require.NoError(t, s.InsertUser(&types.User{ADID: adID, DN: "CN=alice", GUID: "g-1", SID: "S-1-5-21-1-2-3-1001", CN: "alice"}))
	require.NoError(t, s.InsertTrust(&types.Trust{ADID: adID, DN: "CN=other", CN: "other.example.com", SecurityIdentifier: "S-1-5-21-9-9-9"}))

	cn, err := s.CNForOID("user", "S-1-5-21-1-2-3-1001")
	require.NoError(t, err)
	assert.Equal(t, "alice", cn)

	cn, err = s.CNForOID("trust", "S-1-5-21-9-9-9")
	require.NoError(t, err)
	assert.Equal(t, "other.example.com", cn)

	// unknown identifiers resolve to empty, not an error
	cn, err = s.CNForOID("user", "S-1-5-21-0-0-0-0")
	require.NoError(t, err)
	assert.Empty(t, cn)
}

func TestCountObjects(t *testing.T) {
	s := newTestStore(t)
	adID := newTestRun(t, s)
	seedPendingObjects(t, s, adID, 2, 1, 3)
	require.NoError(t, s.InsertTokenGroup(&types.TokenGroup{ADID: adID, GUID: "ug-0", MemberSID: "S-1"}))

	c, err := s.CountObjects(adID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, c.Users)
	assert.EqualValues(t, 1, c.Machines)
	assert.EqualValues(t, 3, c.Groups)
	assert.EqualValues(t, 1, c.TokenGroups)
	assert.EqualValues(t, 0, c.SDs)
}
