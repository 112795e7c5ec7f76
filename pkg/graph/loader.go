package graph

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/corvid-labs/grackle/pkg/log"
	"github.com/corvid-labs/grackle/pkg/metrics"
	"github.com/corvid-labs/grackle/pkg/storage"
	"github.com/corvid-labs/grackle/pkg/types"
)

// ExcludedBuiltinSID is the well-known BUILTIN\Users local group. Its node
// aggregates nearly every principal and drowns path results, so edges
// touching it are dropped from the CSV cache unless the exclusion is
// switched off.
const ExcludedBuiltinSID = "S-1-5-32-545"

const edgesFileName = "edges.csv"

// Config controls graph loading
type Config struct {
	// WorkDir caches one edges.csv per graph id; empty disables caching
	// and the CSV is rebuilt into a temporary directory on every load.
	WorkDir string `yaml:"work_dir"`

	// KeepBuiltinUsers disables the ExcludedBuiltinSID edge filter
	KeepBuiltinUsers bool `yaml:"keep_builtin_users"`
}

// Graph is one loaded domain graph plus the lookups the path engine needs
// to turn node ids back into directory objects.
type Graph struct {
	store     *storage.Store
	g         *simple.DirectedGraph
	graphID   int64
	adID      int64
	domainSID string

	// node id -> (oid, otype), populated on demand, bounded by graph size
	nodes map[int64]*types.EdgeLookup
}

// Load resolves graphID, materializes the edge CSV if it is not cached and
// builds the in-memory directed graph.
func Load(cfg Config, store *storage.Store, graphID int64) (*Graph, error) {
	logger := log.WithGraphID(graphID)

	info, err := store.GetGraphInfo(graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve graph %d: %w", graphID, err)
	}
	domain, err := store.GetDomainInfo(info.ADID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve run %d: %w", info.ADID, err)
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir, err = os.MkdirTemp("", "grackle-graph-")
		if err != nil {
			return nil, fmt.Errorf("failed to create scratch dir: %w", err)
		}
	}
	csvPath := filepath.Join(workDir, strconv.FormatInt(graphID, 10), edgesFileName)

	if _, err := os.Stat(csvPath); errors.Is(err, os.ErrNotExist) {
		logger.Info().Str("path", csvPath).Msg("edge cache missing, building")
		if err := buildCSV(cfg, store, graphID, info.ADID, csvPath); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat edge cache: %w", err)
	}

	g := &Graph{
		store:     store,
		g:         simple.NewDirectedGraph(),
		graphID:   graphID,
		adID:      info.ADID,
		domainSID: domain.SID,
		nodes:     make(map[int64]*types.EdgeLookup),
	}
	if err := g.loadCSV(csvPath); err != nil {
		return nil, err
	}
	logger.Info().
		Int("nodes", g.g.Nodes().Len()).
		Int("edges", g.g.Edges().Len()).
		Msg("graph loaded")
	metrics.GraphNodesLoaded.Set(float64(g.g.Nodes().Len()))
	metrics.GraphEdgesLoaded.Set(float64(g.g.Edges().Len()))
	return g, nil
}

// buildCSV streams the graph's resolvable edges into the cache file, one
// "src,dst" pair per CRLF-terminated line
func buildCSV(cfg Config, store *storage.Store, graphID, adID int64, csvPath string) error {
	var excluded int64 = -1
	if !cfg.KeepBuiltinUsers {
		id, err := store.LookupIDByOID(adID, ExcludedBuiltinSID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// domain was enumerated without the builtin group; nothing to drop
		case err != nil:
			return err
		default:
			excluded = id
		}
	}

	if err := os.MkdirAll(filepath.Dir(csvPath), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	f, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create edge cache: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	for edge, err := range store.EdgesForCSV(graphID, storage.EdgeWindow) {
		if err != nil {
			return err
		}
		if edge.Src == excluded || edge.Dst == excluded {
			continue
		}
		if _, err := fmt.Fprintf(w, "%d,%d\r\n", edge.Src, edge.Dst); err != nil {
			return fmt.Errorf("failed to write edge cache: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush edge cache: %w", err)
	}
	return nil
}

func (g *Graph) loadCSV(csvPath string) error {
	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open edge cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		srcStr, dstStr, ok := strings.Cut(line, ",")
		if !ok {
			return fmt.Errorf("malformed edge cache line %q", line)
		}
		src, err := strconv.ParseInt(srcStr, 10, 64)
		if err != nil {
			return fmt.Errorf("malformed edge cache line %q: %w", line, err)
		}
		dst, err := strconv.ParseInt(dstStr, 10, 64)
		if err != nil {
			return fmt.Errorf("malformed edge cache line %q: %w", line, err)
		}
		if src == dst {
			continue
		}
		g.g.SetEdge(g.g.NewEdge(node(src), node(dst)))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read edge cache: %w", err)
	}
	return nil
}

// node is a gonum vertex whose identity is the edge lookup id
type node int64

func (n node) ID() int64 { return int64(n) }

// lookup resolves a node id to its directory identifier, caching per graph
func (g *Graph) lookup(id int64) (*types.EdgeLookup, error) {
	if l, ok := g.nodes[id]; ok {
		return l, nil
	}
	l, err := g.store.GetEdgeLookup(id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve node %d: %w", id, err)
	}
	g.nodes[id] = l
	return l, nil
}
