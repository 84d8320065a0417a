package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/service"
)

var (
	pruneDays    int
	eventsLimit  int
	eventsPlate  string
	eventsAccess string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the access decision journal",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the most recent access decisions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{journal: true})
		if err != nil {
			return err
		}
		defer a.Close()

		q := service.EventQuery{Limit: eventsLimit}
		if eventsPlate != "" {
			q.Plate = &eventsPlate
		}
		if eventsAccess != "" {
			q.AccessStatus = &eventsAccess
		}

		events, err := a.service.FindEvents(cmd.Context(), q)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIME\tSOURCE\tSTATUS\tPLATE\tCONFIDENCE\tACCESS")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.4f\t%s\n",
				e.ProcessedAt.Local().Format("2006-01-02 15:04:05"), e.Source, e.Status, e.PlateText, e.Confidence, e.AccessStatus)
		}
		return w.Flush()
	},
}

var eventsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete journal entries older than --days",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{journal: true})
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.service.CleanupOldEvents(cmd.Context(), pruneDays)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Deleted %d events older than %d days\n", deleted, pruneDays)
		return nil
	},
}

func init() {
	eventsListCmd.Flags().IntVar(&eventsLimit, "limit", 20, "maximum number of events")
	eventsListCmd.Flags().StringVar(&eventsPlate, "plate", "", "only events for this plate")
	eventsListCmd.Flags().StringVar(&eventsAccess, "access", "", "only GRANTED or DENIED events")
	eventsPruneCmd.Flags().IntVar(&pruneDays, "days", 30, "retention in days")

	eventsCmd.AddCommand(eventsListCmd, eventsPruneCmd)
	rootCmd.AddCommand(eventsCmd)
}
