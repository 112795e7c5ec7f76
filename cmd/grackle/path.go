package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corvid-labs/grackle/pkg/graph"
	"github.com/corvid-labs/grackle/pkg/storage"
)

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Query shortest paths in a domain graph",
	Long: `Path loads (or builds) a domain graph and prints shortest paths between
principals as JSON. Supply --src and --dst as SIDs; omitting --src sweeps
every principal that can reach the destination.`,
	RunE: runPath,
}

func init() {
	pathCmd.Flags().Int64("graph-id", 0, "Graph id to query")
	pathCmd.Flags().Int64("build-from", 0, "Register a new graph for this ad_id and exit")
	pathCmd.Flags().String("src", "", "Source SID")
	pathCmd.Flags().String("dst", "", "Destination SID")
	pathCmd.Flags().Bool("all", false, "Return all shortest paths instead of one per pair")
	pathCmd.Flags().String("work-dir", "", "Directory caching edge CSV files")
	pathCmd.Flags().Bool("keep-builtin-users", false, "Keep edges touching the builtin Users group")
}

func runPath(cmd *cobra.Command, args []string) error {
	initLogging(cmd)
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	if adID, _ := cmd.Flags().GetInt64("build-from"); adID != 0 {
		graphID, err := graph.Build(store, adID)
		if err != nil {
			return err
		}
		fmt.Printf("graph %d built from run %d\n", graphID, adID)
		return nil
	}

	graphID, _ := cmd.Flags().GetInt64("graph-id")
	if graphID == 0 {
		return fmt.Errorf("a graph id is required (--graph-id)")
	}

	if v, _ := cmd.Flags().GetString("work-dir"); v != "" {
		cfg.Graph.WorkDir = v
	}
	if v, _ := cmd.Flags().GetBool("keep-builtin-users"); v {
		cfg.Graph.KeepBuiltinUsers = true
	}

	g, err := graph.Load(cfg.Graph, store, graphID)
	if err != nil {
		return err
	}

	src, _ := cmd.Flags().GetString("src")
	dst, _ := cmd.Flags().GetString("dst")
	all, _ := cmd.Flags().GetBool("all")

	var data *graph.Data
	if all {
		data, err = g.AllShortestPaths(src, dst)
	} else {
		data, err = g.ShortestPaths(src, dst)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
