package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	ldapclient "github.com/corvid-labs/grackle/pkg/ldap"
	"github.com/corvid-labs/grackle/pkg/log"
	"github.com/corvid-labs/grackle/pkg/manager"
	"github.com/corvid-labs/grackle/pkg/metrics"
	"github.com/corvid-labs/grackle/pkg/progress"
	"github.com/corvid-labs/grackle/pkg/storage"
)

var gatherCmd = &cobra.Command{
	Use:   "gather",
	Short: "Enumerate a domain into the database",
	Long: `Gather runs the full enumeration pipeline against a domain: breadth
enumeration of every object category, then per-object security descriptor
and membership collection. An interrupted run can be resumed with --resume;
only objects missing from the database are fetched again.`,
	RunE: runGather,
}

func init() {
	gatherCmd.Flags().String("url", "", "LDAP URL, e.g. ldaps://dc01.corp.example.com")
	gatherCmd.Flags().String("bind-dn", "", "Bind DN or UPN")
	gatherCmd.Flags().String("password", "", "Bind password")
	gatherCmd.Flags().String("base-dn", "", "Search base, e.g. DC=corp,DC=example,DC=com")
	gatherCmd.Flags().Int("workers", 0, "Worker pool size (0 = min(cpus, 3))")
	gatherCmd.Flags().String("spill-dir", "", "Directory for spill files (default: system temp)")
	gatherCmd.Flags().Int64("resume", 0, "Resume the run with this ad_id")
	gatherCmd.Flags().String("redis", "", "Publish progress to this Redis address instead of the terminal")
	gatherCmd.Flags().String("redis-key", "grackle_progress", "Redis list key for progress messages")
	gatherCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
}

func runGather(cmd *cobra.Command, args []string) error {
	initLogging(cmd)
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyGatherFlags(cmd, cfg)

	if cfg.LDAP.URL == "" {
		return fmt.Errorf("an LDAP URL is required (--url or config)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		logger := log.WithComponent("metrics")
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, metrics.Handler()); err != nil {
				logger.Warn().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	store, err := storage.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	var obs progress.Observer
	if cfg.Redis.Addr != "" {
		pusher := progress.NewRedisPusher(cfg.Redis.Addr, cfg.Redis.Key)
		defer pusher.Close()
		obs = progress.NewRemote(ctx, pusher)
	} else {
		obs = progress.NewTTY(os.Stdout)
	}

	m := manager.New(cfg.Manager, store, ldapclient.NewFactory(cfg.LDAP), obs)
	adID, err := m.Run(ctx)
	if err != nil {
		return fmt.Errorf("enumeration failed: %w", err)
	}

	counts, err := m.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("run %d finished: %d users, %d machines, %d groups, %d ous, %d gpos, %d trusts, %d spn services, %d sds, %d memberships\n",
		adID, counts.Users, counts.Machines, counts.Groups, counts.OUs, counts.GPOs,
		counts.Trusts, counts.SPNServices, counts.SDs, counts.TokenGroups)
	return nil
}

func applyGatherFlags(cmd *cobra.Command, cfg *config) {
	if v, _ := cmd.Flags().GetString("url"); v != "" {
		cfg.LDAP.URL = v
	}
	if v, _ := cmd.Flags().GetString("bind-dn"); v != "" {
		cfg.LDAP.BindDN = v
	}
	if v, _ := cmd.Flags().GetString("password"); v != "" {
		cfg.LDAP.Password = v
	}
	if v, _ := cmd.Flags().GetString("base-dn"); v != "" {
		cfg.LDAP.BaseDN = v
	}
	if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
		cfg.Manager.Workers = v
	}
	if v, _ := cmd.Flags().GetString("spill-dir"); v != "" {
		cfg.Manager.SpillDir = v
	}
	if v, _ := cmd.Flags().GetInt64("resume"); v != 0 {
		cfg.Manager.ResumeADID = v
	}
	if v, _ := cmd.Flags().GetString("redis"); v != "" {
		cfg.Redis.Addr = v
	}
	if v, _ := cmd.Flags().GetString("redis-key"); v != "" {
		cfg.Redis.Key = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}
}
