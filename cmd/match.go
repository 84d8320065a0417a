package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/utils"
)

var matchCmd = &cobra.Command{
	Use:   "match TEXT",
	Short: "Check recognized text against the trusted registry",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		text := strings.Join(args, " ")
		cleaned := utils.CleanPlateText(text)
		res := a.service.Match(cleaned)

		out := cmd.OutOrStdout()
		if !res.Found {
			fmt.Fprintf(out, "DENIED  %s (no trusted plate within %d edits)\n", cleaned, cfg.Matching.Threshold)
			return nil
		}
		fmt.Fprintf(out, "GRANTED %s (read %s, distance %d)\n", res.Plate, cleaned, res.Distance)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
}
