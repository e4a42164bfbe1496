package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline and learning-loop health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			svc, err := newServices(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			status, err := svc.pipeline.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to gather status: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Backend:\t%s\n", availability(status.BackendAvailable))
			fmt.Fprintf(w, "Embeddings:\t%s\n", availability(status.EmbeddingsAvailable))
			fmt.Fprintf(w, "Categorized items:\t%d\n", status.TotalCategorized)
			fmt.Fprintf(w, "Pending corrections:\t%d of %d needed to retrain\n", status.PendingFeedback, status.RetrainingThreshold)
			if status.RetrainingActive {
				fmt.Fprintf(w, "Retraining:\tin progress\n")
			}
			return w.Flush()
		},
	}
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}
