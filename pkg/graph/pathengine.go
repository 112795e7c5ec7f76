package graph

import (
	"errors"
	"fmt"
	"math"
	"time"

	gograph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"

	"github.com/corvid-labs/grackle/pkg/metrics"
	"github.com/corvid-labs/grackle/pkg/storage"
)

var (
	// ErrSIDNotFound means a supplied SID has no edge lookup entry
	ErrSIDNotFound = errors.New("sid not found in edge lookup")

	// ErrEndpointRequired means neither endpoint was supplied
	ErrEndpointRequired = errors.New("at least one of src and dst is required")

	// ErrSourceOnlyNotImplemented means only src was supplied; sweeping all
	// destinations from a source is not implemented
	ErrSourceOnlyNotImplemented = errors.New("source-only path search not implemented")
)

// Data is the result graph of a path query
type Data struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is one principal on a returned path. Distance is the node's position
// on the path it was first seen on.
type Node struct {
	SID      string `json:"sid"`
	Name     string `json:"name"`
	Type     string `json:"node_type"`
	DomainID int64  `json:"domain_id"`
	Distance int    `json:"distance"`
}

// Edge is one labelled hop of a returned path. Parallel labels between the
// same endpoints appear as separate edges.
type Edge struct {
	SrcSID string `json:"src"`
	DstSID string `json:"dst"`
	Label  string `json:"label"`
}

// ShortestPaths returns one shortest path per endpoint pair. At least one
// of srcSID and dstSID is required; source-only search is not implemented.
func (g *Graph) ShortestPaths(srcSID, dstSID string) (*Data, error) {
	return g.query(srcSID, dstSID, false)
}

// AllShortestPaths returns every shortest path between the endpoint pairs
func (g *Graph) AllShortestPaths(srcSID, dstSID string) (*Data, error) {
	return g.query(srcSID, dstSID, true)
}

func (g *Graph) query(srcSID, dstSID string, all bool) (*Data, error) {
	start := time.Now()
	defer func() {
		metrics.PathQueryDuration.Observe(time.Since(start).Seconds())
	}()

	if srcSID == "" && dstSID == "" {
		return nil, ErrEndpointRequired
	}
	if dstSID == "" {
		return nil, ErrSourceOnlyNotImplemented
	}

	dst, err := g.resolveSID(dstSID)
	if err != nil {
		return nil, err
	}

	res := newAssembler(g)
	if srcSID != "" {
		metrics.PathQueries.WithLabelValues("direct").Inc()
		src, err := g.resolveSID(srcSID)
		if err != nil {
			return nil, err
		}
		if err := g.pathsBetween(res, src, dst, all); err != nil {
			return nil, err
		}
		return res.data, nil
	}

	// destination-only mode sweeps every known node except Domain Users,
	// whose membership would connect virtually everything
	metrics.PathQueries.WithLabelValues("dst_sweep").Inc()
	domainUsers := g.domainSID + "-513"
	for src, err := range g.store.EdgeLookupIDs(g.adID, domainUsers, storage.TargetWindow) {
		if err != nil {
			return nil, err
		}
		if src == dst {
			continue
		}
		if err := g.pathsBetween(res, src, dst, all); err != nil {
			return nil, err
		}
	}
	return res.data, nil
}

func (g *Graph) resolveSID(sid string) (int64, error) {
	id, err := g.store.LookupIDByOID(g.adID, sid)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrSIDNotFound, sid)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// pathsBetween feeds the shortest path(s) from src to dst into the
// assembler. Endpoints that carry no edges are simply unreachable.
func (g *Graph) pathsBetween(res *assembler, src, dst int64, all bool) error {
	if g.g.Node(src) == nil || g.g.Node(dst) == nil {
		return nil
	}
	if all {
		alt := path.DijkstraAllFrom(g.g.Node(src), g.g)
		paths, _ := alt.AllTo(dst)
		for _, p := range paths {
			if err := res.addPath(p); err != nil {
				return err
			}
		}
		return nil
	}
	sp := path.DijkstraFrom(g.g.Node(src), g.g)
	p, w := sp.To(dst)
	if len(p) == 0 || math.IsInf(w, 1) {
		return nil
	}
	return res.addPath(p)
}

// assembler builds the result graph from raw id paths, deduplicating nodes
// by SID and edges by (src, dst, label)
type assembler struct {
	g         *Graph
	data      *Data
	seenNodes map[string]bool
	seenEdges map[[3]string]bool
}

func newAssembler(g *Graph) *assembler {
	return &assembler{
		g:         g,
		data:      &Data{},
		seenNodes: make(map[string]bool),
		seenEdges: make(map[[3]string]bool),
	}
}

func (a *assembler) addPath(p []gograph.Node) error {
	sids := make([]string, len(p))
	for d, n := range p {
		lu, err := a.g.lookup(n.ID())
		if err != nil {
			return err
		}
		sids[d] = lu.OID
		if a.seenNodes[lu.OID] {
			continue
		}
		a.seenNodes[lu.OID] = true
		cn, err := a.g.store.CNForOID(lu.OType, lu.OID)
		if err != nil {
			return err
		}
		a.data.Nodes = append(a.data.Nodes, Node{
			SID:      lu.OID,
			Name:     cn,
			Type:     lu.OType,
			DomainID: a.g.adID,
			Distance: d,
		})
	}
	for i := 0; i+1 < len(p); i++ {
		labels, err := a.g.store.EdgeLabels(a.g.graphID, a.g.adID, p[i].ID(), p[i+1].ID())
		if err != nil {
			return err
		}
		for _, label := range labels {
			key := [3]string{sids[i], sids[i+1], label}
			if a.seenEdges[key] {
				continue
			}
			a.seenEdges[key] = true
			a.data.Edges = append(a.data.Edges, Edge{SrcSID: sids[i], DstSID: sids[i+1], Label: label})
		}
	}
	return nil
}
