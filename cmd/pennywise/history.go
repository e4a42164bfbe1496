package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent retraining runs",
		RunE:  runHistory,
	}

	cmd.Flags().Int("limit", 20, "number of runs to show")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := store.GetTrainingHistory(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read training history: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No retraining runs yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tTRIGGER\tFEEDBACK\tEMBEDDINGS\tRULES\tDURATION\tNOTES")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			entry.StartedAt.Local().Format("2006-01-02 15:04"),
			entry.Trigger,
			entry.FeedbackCount,
			entry.EmbeddingsUpdated,
			entry.RulesGenerated,
			formatDuration(entry.Duration),
			entry.Notes)
	}
	return w.Flush()
}
