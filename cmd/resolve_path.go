package cmd

import (
	"github.com/spf13/cobra"

	"driverecover/internal/models"
	"driverecover/pkg/utils"
)

var resolvePathCmd = &cobra.Command{
	Use:   "resolve-path [segments...]",
	Short: "Print the service address of a path",
	Long: `Print the address the selected backend uses to look up a path. Segments may
contain slashes; they are split before encoding. Without segments the drive
root is printed. The service is not contacted.`,
	Example: `  # Address of a folder in the user's drive
  driverecover resolve-path Documents "Q1 Reports"

  # Address in a specific drive
  driverecover resolve-path --drive b!abc Documents/Projects`,
	RunE: runResolvePath,
}

func runResolvePath(cmd *cobra.Command, args []string) error {
	resolver, err := newResolver(cfg)
	if err != nil {
		return err
	}

	segments := []string{}
	for _, arg := range args {
		segments = append(segments, splitPath(arg)...)
	}

	return utils.WriteJSON(cmd.OutOrStdout(), models.ResolvedPath{
		Backend:  cfg.Backend,
		Segments: segments,
		Address:  resolver.Resolve(segments...),
	})
}
