package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"driverecover/config"
	"driverecover/internal/errors"
	"driverecover/internal/logging"
	"driverecover/internal/metrics"
	"driverecover/pkg/utils"
)

var (
	cfg        *config.Config
	configFile string

	metricsOnce sync.Once
)

var rootCmd = &cobra.Command{
	Use:   "driverecover",
	Short: "Restore deleted folder trees from a drive's recycle bin",
	Long: `driverecover walks a deleted folder in the recycle bin of a remote drive and
restores everything below it. When several deleted items share a name in the
same folder, only the newest one is restored and the rest are reported.

Supported backends are Microsoft Graph drives (OneDrive, SharePoint) and
versioned S3 buckets, where objects hidden by a delete marker count as deleted.
Configuration is loaded from .env file, an optional config file or environment variables`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

// Execute runs the command line. Errors are printed as JSON before they are
// returned.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, err := rootCmd.ExecuteContextC(ctx)
	if err != nil {
		utils.PrintError(err, cmd.Name())
	}
	return err
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(itemInfoCmd)
	rootCmd.AddCommand(listDeletedCmd)
	rootCmd.AddCommand(duplicatesCmd)
	rootCmd.AddCommand(resolvePathCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	flags.String("backend", "", "Backend to use: graph or s3 (overrides config)")
	flags.String("drive", "", "Graph drive id (default: the signed-in user's drive)")
	flags.StringP("bucket", "b", "", "Override bucket name from config")
	flags.BoolP("verbose", "v", false, "Enable verbose output")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: console or json")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configFile)
	if err != nil {
		return err
	}
	applyFlags(cmd, c)

	err = logging.Init(logging.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		OutputPath: c.Log.Output,
	})
	if err != nil {
		return errors.Wrap(err, "init logging")
	}
	if !c.EnvFileLoaded {
		logging.L().Debug("no .env file found, using environment only")
	}

	if c.MetricsAddr != "" {
		serveMetrics(c.MetricsAddr)
	}

	cfg = c
	return nil
}

// applyFlags lets explicitly set global flags win over the loaded config.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("backend") {
		c.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("drive") {
		c.Graph.DriveID, _ = flags.GetString("drive")
	}
	if flags.Changed("bucket") {
		c.S3.BucketName, _ = flags.GetString("bucket")
	}
	if flags.Changed("log-level") {
		c.Log.Level, _ = flags.GetString("log-level")
	} else if isVerbose(cmd) {
		c.Log.Level = "debug"
	}
	if flags.Changed("log-format") {
		c.Log.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("metrics-addr") {
		c.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
}

func serveMetrics(addr string) {
	metricsOnce.Do(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.L().Error("metrics server stopped", zap.Error(err))
			}
		}()
		logging.L().Info("serving metrics", zap.String("addr", addr))
	})
}

func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}
