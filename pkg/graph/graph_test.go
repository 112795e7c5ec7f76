package graph

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-labs/grackle/pkg/storage"
	"github.com/corvid-labs/grackle/pkg/types"
)

const (
	domainSID  = "S-1-5-21-1-2-3"
	aliceSID   = domainSID + "-1001"
	adminsSID  = domainSID + "-512"
	dcAdminSID = domainSID + "-1102"
	ws01SID    = domainSID + "-2001"
	domUsers   = domainSID + "-513"
)

type fixture struct {
	store   *storage.Store
	graphID int64
	adID    int64
	ids     map[string]int64
}

// seedGraph builds a small domain graph:
//
//	alice -MemberOf-> admins -GenericAll-> ws01
//	alice -ForceChangePassword-> dcadmin -AdminTo-> ws01
//	domain users -AdminTo-> ws01
//	builtin users -GenericAll-> ws01   (filtered out of the CSV)
func seedGraph(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	info := &types.DomainInfo{
		DistinguishedName: "DC=corp,DC=example,DC=com",
		GUID:              "g-domain",
		SID:               domainSID,
		Name:              "corp.example.com",
		EnumState:         types.EnumStateFinished,
	}
	require.NoError(t, s.InsertDomainInfo(info))

	gi := &types.GraphInfo{ADID: info.ID}
	require.NoError(t, s.InsertGraphInfo(gi))

	require.NoError(t, s.InsertUser(&types.User{ADID: info.ID, DN: "CN=alice", GUID: "g-u1", SID: aliceSID, CN: "alice"}))
	require.NoError(t, s.InsertUser(&types.User{ADID: info.ID, DN: "CN=dcadmin", GUID: "g-u2", SID: dcAdminSID, CN: "dcadmin"}))
	require.NoError(t, s.InsertGroup(&types.Group{ADID: info.ID, DN: "CN=admins", GUID: "g-g1", SID: adminsSID, CN: "admins"}))
	require.NoError(t, s.InsertMachine(&types.Machine{ADID: info.ID, DN: "CN=ws01", GUID: "g-m1", SID: ws01SID, CN: "ws01"}))

	ids := make(map[string]int64)
	for sid, otype := range map[string]string{
		aliceSID:           "user",
		dcAdminSID:         "user",
		adminsSID:          "group",
		ws01SID:            "machine",
		domUsers:           "group",
		ExcludedBuiltinSID: "group",
	} {
		l := &types.EdgeLookup{ADID: info.ID, OID: sid, OType: otype}
		require.NoError(t, s.InsertEdgeLookup(l))
		ids[sid] = l.ID
	}

	addEdge := func(src, dst, label string) {
		require.NoError(t, s.InsertEdge(&types.Edge{
			GraphID: gi.ID, ADID: info.ID,
			Src: ids[src], Dst: ids[dst], Label: label,
		}))
	}
	addEdge(aliceSID, adminsSID, "MemberOf")
	addEdge(adminsSID, ws01SID, "GenericAll")
	addEdge(aliceSID, dcAdminSID, "ForceChangePassword")
	addEdge(dcAdminSID, ws01SID, "AdminTo")
	addEdge(domUsers, ws01SID, "AdminTo")
	addEdge(ExcludedBuiltinSID, ws01SID, "GenericAll")

	return &fixture{store: s, graphID: gi.ID, adID: info.ID, ids: ids}
}

func loadGraph(t *testing.T, f *fixture, cfg Config) *Graph {
	t.Helper()
	if cfg.WorkDir == "" {
		cfg.WorkDir = t.TempDir()
	}
	g, err := Load(cfg, f.store, f.graphID)
	require.NoError(t, err)
	return g
}

func TestLoadBuildsFilteredCSV(t *testing.T) {
	f := seedGraph(t)
	workDir := t.TempDir()
	loadGraph(t, f, Config{WorkDir: workDir})

	raw, err := os.ReadFile(filepath.Join(workDir, strconv.FormatInt(f.graphID, 10), "edges.csv"))
	require.NoError(t, err)
	content := string(raw)
	assert.True(t, strings.HasSuffix(content, "\r\n"))

	lines := strings.Split(strings.TrimRight(content, "\r\n"), "\r\n")
	// 6 seeded edges minus the one touching the builtin Users group
	assert.Len(t, lines, 5)
	excluded := strconv.FormatInt(f.ids[ExcludedBuiltinSID], 10)
	for _, line := range lines {
		assert.NotContains(t, strings.Split(line, ","), excluded)
	}
}

func TestLoadKeepsBuiltinUsersWhenDisabled(t *testing.T) {
	f := seedGraph(t)
	workDir := t.TempDir()
	loadGraph(t, f, Config{WorkDir: workDir, KeepBuiltinUsers: true})

	raw, err := os.ReadFile(filepath.Join(workDir, strconv.FormatInt(f.graphID, 10), "edges.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\r\n"), "\r\n")
	assert.Len(t, lines, 6)
}

func TestShortestPathsDirect(t *testing.T) {
	f := seedGraph(t)
	g := loadGraph(t, f, Config{})

	data, err := g.ShortestPaths(aliceSID, ws01SID)
	require.NoError(t, err)

	require.Len(t, data.Nodes, 3)
	byDistance := make(map[int]Node)
	for _, n := range data.Nodes {
		byDistance[n.Distance] = n
	}
	assert.Equal(t, aliceSID, byDistance[0].SID)
	assert.Equal(t, "alice", byDistance[0].Name)
	assert.Equal(t, "user", byDistance[0].Type)
	assert.Equal(t, ws01SID, byDistance[2].SID)
	assert.Equal(t, "ws01", byDistance[2].Name)
	assert.Equal(t, f.adID, byDistance[0].DomainID)

	require.Len(t, data.Edges, 2)
	// consecutive hops carry the labels stored in the edge table; either
	// two-hop route is a valid single answer
	labels := []string{data.Edges[0].Label, data.Edges[1].Label}
	assert.Contains(t, [][]string{{"MemberOf", "GenericAll"}, {"ForceChangePassword", "AdminTo"}}, labels)
}

func TestAllShortestPathsReturnsEveryRoute(t *testing.T) {
	f := seedGraph(t)
	g := loadGraph(t, f, Config{})

	data, err := g.AllShortestPaths(aliceSID, ws01SID)
	require.NoError(t, err)

	// both 2-hop routes show up: via admins and via dcadmin
	sids := make([]string, 0, len(data.Nodes))
	for _, n := range data.Nodes {
		sids = append(sids, n.SID)
	}
	assert.ElementsMatch(t, []string{aliceSID, adminsSID, dcAdminSID, ws01SID}, sids)
	assert.Len(t, data.Edges, 4)
}

func TestMultiEdgeLabelsPreserved(t *testing.T) {
	f := seedGraph(t)
	require.NoError(t, f.store.InsertEdge(&types.Edge{
		GraphID: f.graphID, ADID: f.adID,
		Src: f.ids[aliceSID], Dst: f.ids[adminsSID], Label: "GenericWrite",
	}))
	g := loadGraph(t, f, Config{})

	data, err := g.ShortestPaths(aliceSID, adminsSID)
	require.NoError(t, err)
	labels := make([]string, 0, len(data.Edges))
	for _, e := range data.Edges {
		labels = append(labels, e.Label)
	}
	assert.ElementsMatch(t, []string{"MemberOf", "GenericWrite"}, labels)
}

func TestDestinationSweepExcludesDomainUsers(t *testing.T) {
	f := seedGraph(t)
	g := loadGraph(t, f, Config{})

	data, err := g.ShortestPaths("", ws01SID)
	require.NoError(t, err)

	require.NotEmpty(t, data.Nodes)
	for _, n := range data.Nodes {
		assert.NotEqual(t, domUsers, n.SID)
	}
	for _, e := range data.Edges {
		assert.NotEqual(t, domUsers, e.SrcSID)
	}
}

func TestQueryErrorModes(t *testing.T) {
	f := seedGraph(t)
	g := loadGraph(t, f, Config{})

	_, err := g.ShortestPaths("", "")
	assert.ErrorIs(t, err, ErrEndpointRequired)

	_, err = g.ShortestPaths(aliceSID, "")
	assert.ErrorIs(t, err, ErrSourceOnlyNotImplemented)

	_, err = g.ShortestPaths("S-1-5-21-9-9-9-9999", ws01SID)
	assert.ErrorIs(t, err, ErrSIDNotFound)

	_, err = g.AllShortestPaths(aliceSID, "S-1-5-21-9-9-9-9999")
	assert.ErrorIs(t, err, ErrSIDNotFound)
}

func TestBuildMaterializesMembershipEdges(t *testing.T) {
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	info := &types.DomainInfo{
		DistinguishedName: "DC=corp,DC=example,DC=com",
		GUID:              "g-domain", SID: domainSID,
		Name: "corp.example.com", EnumState: types.EnumStateFinished,
	}
	require.NoError(t, s.InsertDomainInfo(info))
	require.NoError(t, s.InsertUser(&types.User{ADID: info.ID, DN: "CN=alice", GUID: "g-u1", SID: aliceSID, CN: "alice"}))
	require.NoError(t, s.InsertGroup(&types.Group{ADID: info.ID, DN: "CN=admins", GUID: "g-g1", SID: adminsSID, CN: "admins"}))

	// alice's token carries admins; admins' token carries ops
	opsSID := domainSID + "-1103"
	require.NoError(t, s.InsertTokenGroup(&types.TokenGroup{ADID: info.ID, GUID: "g-u1", SID: aliceSID, ObjectType: types.ObjectKindUser, MemberSID: adminsSID}))
	require.NoError(t, s.InsertTokenGroup(&types.TokenGroup{ADID: info.ID, GUID: "g-g1", SID: adminsSID, ObjectType: types.ObjectKindGroup, MemberSID: opsSID}))

	graphID, err := Build(s, info.ID)
	require.NoError(t, err)
	require.NotZero(t, graphID)

	g, err := Load(Config{WorkDir: t.TempDir()}, s, graphID)
	require.NoError(t, err)

	data, err := g.ShortestPaths(aliceSID, opsSID)
	require.NoError(t, err)
	require.Len(t, data.Nodes, 3)
	require.Len(t, data.Edges, 2)
	assert.Equal(t, MemberOfLabel, data.Edges[0].Label)
	assert.Equal(t, aliceSID, data.Edges[0].SrcSID)
	assert.Equal(t, adminsSID, data.Edges[0].DstSID)
}

func TestBuildUnknownRunFails(t *testing.T) {
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = Build(s, 42)
	assert.Error(t, err)
}

func TestUnreachableEndpointsYieldEmptyResult(t *testing.T) {
	f := seedGraph(t)
	g := loadGraph(t, f, Config{})

	// ws01 has no outgoing edges; the reverse direction finds nothing
	data, err := g.ShortestPaths(ws01SID, aliceSID)
	require.NoError(t, err)
	assert.Empty(t, data.Nodes)
	assert.Empty(t, data.Edges)
}
