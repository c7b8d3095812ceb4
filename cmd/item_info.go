package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"driverecover/internal/models"
	"driverecover/internal/remote"
	"driverecover/internal/restore"
	"driverecover/pkg/utils"
)

var itemInfoCmd = &cobra.Command{
	Use:   "item-info [item-id]",
	Short: "Get information about a file or folder, deleted or not",
	Long: `Get metadata of a single item, including items that are only in the recycle bin.
The item is given by id or by --path relative to the drive root.`,
	Example: `  # Get info by id
  driverecover item-info 01ABCDEF!123

  # Get info by path
  driverecover item-info --path "Documents/Projects"

  # Verbose output
  driverecover item-info --path "Documents" --verbose`,
	Args: cobra.MaximumNArgs(1),
	RunE: runItemInfo,
}

func runItemInfo(cmd *cobra.Command, args []string) error {
	ref, err := refFromArgs(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	r, client, err := newRestorer(ctx, optionsFromFlags(cmd))
	if err != nil {
		return err
	}

	if isVerbose(cmd) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Getting item information for: %v\n", ref)
	}

	item, err := r.Lookup(ctx, ref)
	if err != nil {
		return err
	}

	exists, err := client.ItemExists(ctx, item.ID)
	if err != nil {
		return err
	}

	info := itemInfo(item, !exists)
	if len(ref.Path) > 0 {
		if resolver, err := newResolver(cfg); err == nil {
			info.Address = resolver.Resolve(ref.Path...)
		}
	}

	return utils.WriteJSON(cmd.OutOrStdout(), info)
}

func itemInfo(item *remote.Item, deleted bool) models.ItemInfo {
	return models.ItemInfo{
		ID:           item.ID,
		Name:         item.Name,
		Type:         item.Kind(),
		Path:         item.Path(),
		ParentID:     item.ParentID,
		Deleted:      deleted,
		SizeBytes:    item.Size,
		SizeHuman:    utils.FormatBytes(item.Size),
		ChildCount:   item.ChildCount,
		LastModified: item.LastModified,
		Backend:      cfg.Backend,
		RetrievedAt:  utils.FormatTime(time.Now()),
	}
}

// commandContext applies the --timeout flag, given in seconds, to the
// command's context.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	timeout, _ := cmd.Flags().GetInt("timeout")
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
}

// optionsFromFlags reads the listing flags shared by the inspection commands.
func optionsFromFlags(cmd *cobra.Command) restore.Options {
	limit, _ := cmd.Flags().GetInt("limit")
	return restore.Options{FetchLimit: limit}
}

func addInspectFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("path", "p", "", "Path of the item, relative to the drive root")
	cmd.Flags().Int("limit", 0, "Page size for child listings (default from config: 1000)")
	cmd.Flags().Int("timeout", 300, "Timeout in seconds for the operation")
}

func init() {
	addInspectFlags(itemInfoCmd)
}
