package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"driverecover/internal/models"
	"driverecover/pkg/utils"
)

var listDeletedCmd = &cobra.Command{
	Use:   "list-deleted [folder-id]",
	Short: "List the deleted items directly inside a folder",
	Long: `List the children of a folder that are only visible when deleted items are
included. Nothing is restored.`,
	Example: `  # List deleted items of a folder by id
  driverecover list-deleted 01ABCDEF!123

  # List deleted items at the drive root
  driverecover list-deleted --path /

  # List deleted objects under a bucket prefix
  driverecover list-deleted --backend s3 --path "logs/2025"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runListDeleted,
}

func runListDeleted(cmd *cobra.Command, args []string) error {
	ref, err := refFromArgs(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	r, _, err := newRestorer(ctx, optionsFromFlags(cmd))
	if err != nil {
		return err
	}

	if isVerbose(cmd) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Listing deleted items in: %v\n", ref)
	}

	folder, deleted, err := r.ListDeleted(ctx, ref)
	if err != nil {
		return err
	}

	listing := models.DeletedListing{
		FolderID:      folder.ID,
		FolderPath:    folder.Path(),
		Items:         make([]models.DeletedEntry, 0, len(deleted)),
		OperationTime: utils.FormatTime(time.Now()),
	}
	for _, it := range deleted {
		listing.Items = append(listing.Items, models.DeletedEntry{
			ID:           it.ID,
			Name:         it.Name,
			Type:         it.Kind(),
			Size:         it.Size,
			LastModified: it.LastModified,
		})
		if it.IsFolder {
			listing.TotalFolders++
		} else {
			listing.TotalFiles++
		}
		listing.TotalSizeBytes += it.Size
	}
	sort.SliceStable(listing.Items, func(i, j int) bool {
		return listing.Items[i].Name < listing.Items[j].Name
	})
	listing.TotalSizeHuman = utils.FormatBytes(listing.TotalSizeBytes)

	return utils.WriteJSON(cmd.OutOrStdout(), listing)
}

func init() {
	addInspectFlags(listDeletedCmd)
}
