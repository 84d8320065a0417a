package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/registry"
)

var platesCmd = &cobra.Command{
	Use:   "plates",
	Short: "Manage the trusted plate registry",
}

var platesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the trusted plates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := registry.Open(cfg.Registry.Path, log)
		plates := store.Snapshot()
		if len(plates) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No trusted plates in %s.\n", store.Path())
			return nil
		}
		for _, p := range plates {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

var platesAddCmd = &cobra.Command{
	Use:   "add PLATE...",
	Short: "Add plates to the registry",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutatePlates(cmd, args, true)
	},
}

var platesRemoveCmd = &cobra.Command{
	Use:     "remove PLATE...",
	Aliases: []string{"rm"},
	Short:   "Remove plates from the registry",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutatePlates(cmd, args, false)
	},
}

func init() {
	platesCmd.AddCommand(platesListCmd, platesAddCmd, platesRemoveCmd)
	rootCmd.AddCommand(platesCmd)
}

func mutatePlates(cmd *cobra.Command, plates []string, add bool) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	verb, apply := "added", a.service.AddTrustedPlate
	if !add {
		verb, apply = "removed", a.service.RemoveTrustedPlate
	}

	for _, p := range plates {
		m, err := apply(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if m.Accepted {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, p)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "unchanged %s\n", p)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d trusted plates\n", a.store.Len())
	return nil
}
