package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/corvid-labs/grackle/pkg/graph"
	ldapclient "github.com/corvid-labs/grackle/pkg/ldap"
	"github.com/corvid-labs/grackle/pkg/log"
	"github.com/corvid-labs/grackle/pkg/manager"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "grackle",
	Short: "Grackle - Active Directory enumeration and attack path analysis",
	Long: `Grackle enumerates an Active Directory domain over LDAP into a local
database, then answers shortest path queries over the resulting
permission graph.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Grackle version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Config file path")
	rootCmd.PersistentFlags().String("db", "grackle.db", "Database file path")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json-log", false, "Emit JSON logs")

	rootCmd.AddCommand(gatherCmd)
	rootCmd.AddCommand(pathCmd)
}

// config is the full file configuration; flags override individual fields
type config struct {
	Database string            `yaml:"database"`
	LDAP     ldapclient.Config `yaml:"ldap"`
	Manager  manager.Config    `yaml:"manager"`
	Graph    graph.Config      `yaml:"graph"`
	Redis    struct {
		Addr string `yaml:"addr"`
		Key  string `yaml:"key"`
	} `yaml:"redis"`
	MetricsAddr string `yaml:"metrics_addr"`
}

func loadConfig(cmd *cobra.Command) (*config, error) {
	cfg := &config{}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if cmd.Flags().Changed("db") || cfg.Database == "" {
		cfg.Database, _ = cmd.Flags().GetString("db")
	}
	return cfg, nil
}

func initLogging(cmd *cobra.Command) {
	level, _ := cmd.Flags().GetString("log-level")
	jsonOut, _ := cmd.Flags().GetBool("json-log")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}
