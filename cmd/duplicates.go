package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"driverecover/internal/models"
	"driverecover/pkg/utils"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates [folder-id]",
	Short: "Show deleted items of a folder that share a name",
	Long: `Group the deleted children of a folder by type and name and show which
version a restore would keep. Nothing is restored.`,
	Example: `  # Check a folder before restoring it
  driverecover duplicates --path "Documents/Projects"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDuplicates,
}

func runDuplicates(cmd *cobra.Command, args []string) error {
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
		fmt.Fprintf(cmd.ErrOrStderr(), "Looking for duplicates in: %v\n", ref)
	}

	folder, groups, err := r.FindDuplicates(ctx, ref)
	if err != nil {
		return err
	}

	report := models.DuplicateReport{
		FolderID:      folder.ID,
		FolderPath:    folder.Path(),
		Groups:        make(map[string]*models.DuplicateGroup, len(groups)),
		GroupCount:    len(groups),
		OperationTime: utils.FormatTime(time.Now()),
	}
	for _, g := range groups {
		report.Groups[g.Type+":"+g.Path] = g
	}

	return utils.WriteJSON(cmd.OutOrStdout(), report)
}

func init() {
	addInspectFlags(duplicatesCmd)
}
