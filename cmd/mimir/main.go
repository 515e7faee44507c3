package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mimir/internal/casefile"
	"mimir/internal/config"
	"mimir/internal/history"
	"mimir/internal/intel"
	"mimir/internal/logging"
	"mimir/internal/shell"
	"mimir/internal/ui"
	"mimir/internal/workspace"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "1.0.0"

var (
	// Global flags
	verbose       bool
	workspacePath string

	// Built once in PersistentPreRunE, shared by every command
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mimir",
	Short: "Mimir - interactive shell for incident investigations",
	Long: `Mimir is a command shell for working security investigations.

It keeps per-case evidence and notes under a workspace directory,
records every command to an append-only history, and answers hash,
ipcheck and urlcheck queries against AbuseIPDB, URLhaus and
MalwareBazaar. Anything it does not recognize runs as a host command.

Run without arguments to start the interactive shell.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// version has to work on a machine with no workspace at all
		if cmd.Name() == "version" {
			return nil
		}

		// The workspace .env is loaded again once the workspace is
		// known; godotenv never overrides, so the real environment
		// still wins.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(workspacePath)
		if err != nil {
			return err
		}

		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.File, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		actions, err := workspace.Ensure(cfg)
		for _, action := range actions {
			fmt.Println(action)
		}
		if err != nil {
			return fmt.Errorf("workspace setup: %w", err)
		}
		if missing := workspace.MissingKeys(cfg); len(missing) > 0 {
			fmt.Printf("[setup] Missing API keys: %s\n", strings.Join(missing, ", "))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell()
	},
}

// versionCmd prints the build version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mimir version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mimir %s\n", version)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspacePath, "workspace", "w", "", "Workspace directory (default: WORKSPACE_PATH env)")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runShell wires the stores, the lookup clients and the session, then
// hands the terminal over until the user leaves.
func runShell() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cases := casefile.NewStore(cfg.CasesDir(), cfg.Examiner, cfg.StrictCaseCreate, logger)

	hist, err := history.New(cfg.HistoryFile, cfg.HistoryMax, logger)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	var cache *intel.Cache
	if cfg.Lookup.CacheEnabled() {
		cache, err = intel.OpenCache(cfg.Lookup.CachePath, cfg.GetCacheTTL(), logger)
		if err != nil {
			logger.Warn("Lookup cache unavailable, queries go direct", zap.Error(err))
		} else {
			defer cache.Close()
		}
	}

	styles := ui.DefaultStyles()

	router := shell.NewRouter(shell.RouterConfig{
		Cases:         cases,
		History:       hist,
		Providers:     buildProviders(cfg, cache, logger),
		Styles:        styles,
		FollowCaseDir: cfg.FollowCaseDir,
		LookupTimeout: cfg.GetLookupTimeout(),
		Logger:        logger,
	})

	sess := shell.NewSession(shell.SessionConfig{
		Router:  router,
		History: hist,
		Styles:  styles,
		User:    cfg.Examiner,
		Logger:  logger,
	})

	logger.Info("mimir starting",
		zap.String("version", version),
		zap.String("workspace", cfg.Workspace),
		zap.String("examiner", cfg.Examiner))

	return sess.Run(ctx)
}

// buildProviders assembles one lookup client per artifact kind, each
// wrapped with the shared response cache when one is open.
func buildProviders(cfg *config.Config, cache *intel.Cache, logger *zap.Logger) []intel.Provider {
	timeout := cfg.GetLookupTimeout()

	ipCfg := intel.DefaultAbuseIPDBConfig(cfg.Lookup.AbuseIPDBKey)
	ipCfg.BaseURL = cfg.Lookup.AbuseIPDBURL
	ipCfg.Timeout = timeout

	urlCfg := intel.DefaultURLHausConfig(cfg.Lookup.AbuseCHKey)
	urlCfg.BaseURL = cfg.Lookup.URLHausURL
	urlCfg.Timeout = timeout

	hashCfg := intel.DefaultMalwareBazaarConfig(cfg.Lookup.AbuseCHKey)
	hashCfg.BaseURL = cfg.Lookup.MalwareBazaarURL
	hashCfg.Timeout = timeout

	providers := []intel.Provider{
		intel.NewAbuseIPDBClientWithConfig(ipCfg),
		intel.NewURLHausClientWithConfig(urlCfg),
		intel.NewMalwareBazaarClientWithConfig(hashCfg),
	}
	for i, p := range providers {
		providers[i] = intel.WithCache(p, cache, logger)
	}
	return providers
}
