package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"driverecover/internal/logging"
	"driverecover/internal/models"
	"driverecover/internal/restore"
	"driverecover/pkg/utils"
)

var restoreCmd = &cobra.Command{
	Use:   "restore [item-id]",
	Short: "Restore a deleted folder and everything below it",
	Long: `Restore a deleted item from the recycle bin, together with all deleted items below it.

The command will:
- Try to restore the whole folder with a single request (bulk restore)
- Fall back to walking the tree and restoring item by item if that fails
- Restore only the newest of several deleted items sharing a name
- Skip folders named in --exclude (node_modules by default)
- Retry transient failures with a linearly growing delay
- Return the recovered directory tree and every error as JSON

Progress is written to stderr. Items that were never deleted are left alone.`,
	Example: `  # Restore a folder by id
  driverecover restore 01ABCDEF!123 --confirm

  # Restore a folder by path, without the bulk attempt
  driverecover restore --path "Documents/Projects" --no-bulk

  # Restore into another folder and keep a report archive
  driverecover restore 01ABCDEF!123 --restore-to 01ABCDEF!7 --report ./reports/

  # Restore from a versioned bucket
  driverecover restore --backend s3 --bucket my-bucket --path "logs/2025"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	ref, err := refFromArgs(cmd, args)
	if err != nil {
		return err
	}
	over := restoreOverrides(cmd)

	confirm, _ := cmd.Flags().GetBool("confirm")
	if !confirm && !askConfirmation(cmd, ref) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Operation cancelled.")
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	progress := newProgressPrinter(cmd.ErrOrStderr())
	over.Progress = progress

	r, _, err := newRestorer(ctx, over)
	if err != nil {
		return err
	}
	r.Policy().Report = func(itemID string, attempt int, err error, delay time.Duration) {
		progress.Status(fmt.Sprintf("attempt %d for %s failed, retrying in %v: %v", attempt, itemID, delay, err))
	}

	if isVerbose(cmd) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Restoring %v using the %s backend\n", ref, cfg.Backend)
	}

	result, err := r.Run(ctx, ref)
	progress.Done()
	if err != nil {
		return err
	}

	if report, _ := cmd.Flags().GetString("report"); report != "" {
		info, err := writeReport(result, report)
		if err != nil {
			return err
		}
		logging.L().Info("report written",
			zap.String("path", info.ArchivePath),
			zap.String("size", utils.FormatBytes(info.CompressedSize)))
		if isVerbose(cmd) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", info.ArchivePath)
		}
	}

	return utils.WriteJSON(cmd.OutOrStdout(), result)
}

// restoreOverrides collects the restore flags that were set explicitly.
func restoreOverrides(cmd *cobra.Command) restore.Options {
	flags := cmd.Flags()
	var o restore.Options
	if flags.Changed("exclude") {
		o.Exclude, _ = flags.GetStringSlice("exclude")
		if o.Exclude == nil {
			o.Exclude = []string{}
		}
	}
	o.DisableBulk, _ = flags.GetBool("no-bulk")
	o.MaxAttempts, _ = flags.GetInt("max-attempts")
	o.RetryDelay, _ = flags.GetDuration("retry-delay")
	o.FetchLimit, _ = flags.GetInt("limit")
	o.MaxConcurrency, _ = flags.GetInt("max-concurrency")
	o.TargetParentID, _ = flags.GetString("restore-to")
	return o
}

func askConfirmation(cmd *cobra.Command, ref restore.Ref) bool {
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "This will restore %v and every deleted item below it", ref)
	if target, _ := cmd.Flags().GetString("restore-to"); target != "" {
		fmt.Fprintf(out, " into folder '%s'", target)
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, "Are you sure? (yes/no): ")

	var response string
	fmt.Fscanln(cmd.InOrStdin(), &response)
	switch strings.ToLower(strings.TrimSpace(response)) {
	case "yes", "y":
		return true
	}
	return false
}

// writeReport stores one JSON document per result section in a zip archive.
// A directory target gets a generated file name.
func writeReport(res *models.RestoreResult, target string) (*models.ArchiveInfo, error) {
	if fi, err := os.Stat(target); (err == nil && fi.IsDir()) || strings.HasSuffix(target, string(os.PathSeparator)) {
		target = filepath.Join(target, utils.GenerateArchiveName([]string{"restore-report"}, ".zip"))
	}
	return utils.CreateJSONArchive(reportEntries(res), target)
}

func reportEntries(res *models.RestoreResult) []utils.ArchiveEntry {
	summary := struct {
		RunID         string       `json:"run_id"`
		Root          string       `json:"root"`
		Status        string       `json:"status"`
		HasDuplicates bool         `json:"has_duplicates"`
		StartedAt     string       `json:"started_at"`
		Duration      string       `json:"duration"`
		Stats         models.Stats `json:"stats"`
	}{
		RunID:         res.RunID,
		Root:          res.Root,
		Status:        res.Status,
		HasDuplicates: res.HasDuplicates,
		StartedAt:     res.StartedAt,
		Duration:      res.Duration,
		Stats:         res.Stats,
	}

	return []utils.ArchiveEntry{
		{Name: "summary", Data: summary},
		{Name: "directory_tree", Data: res.DirectoryTree},
		{Name: "duplicate_registry", Data: res.DuplicateRegistry},
		{Name: "read_errors", Data: res.ReadErrors},
		{Name: "recovery_errors", Data: res.RecoveryErrors},
		{Name: "not_deleted_errors", Data: res.NotDeletedErrors},
		{Name: "filtered_items", Data: res.FilteredItems},
	}
}

func init() {
	flags := restoreCmd.Flags()
	flags.StringP("path", "p", "", "Path of the item to restore, relative to the drive root")
	flags.StringSlice("exclude", nil, "Folder names that are never entered (default from config: node_modules)")
	flags.Bool("no-bulk", false, "Skip the single-request restore and walk item by item")
	flags.Int("max-attempts", 0, "Attempts per item before giving up (default from config: 5)")
	flags.Duration("retry-delay", 0, "Base delay between attempts, multiplied by the attempt number (default from config: 100ms)")
	flags.Int("limit", 0, "Page size for child listings (default from config: 1000)")
	flags.Int("max-concurrency", 0, "Maximum folders worked on at once (0 means no limit)")
	flags.String("restore-to", "", "Restore the root item into this folder id instead of its original location")
	flags.Duration("timeout", 0, "Timeout for the whole operation (0 means no limit)")
	flags.Bool("confirm", false, "Skip confirmation prompt")
	flags.String("report", "", "Also write a zip report to this file or directory")
}
