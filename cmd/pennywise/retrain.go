package main

import (
	"fmt"

	"github.com/jstall/pennywise/internal/feedback"
	"github.com/jstall/pennywise/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func retrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrain",
		Short: "Process pending feedback now",
		Long: `Run a retraining pass over all pending corrections: embeddings are
refreshed, repeated corrections become rules, and the similarity cache is
invalidated. With --watch the command keeps running and retrains whenever
the adaptive threshold is crossed.`,
		RunE: runRetrain,
	}

	cmd.Flags().Bool("watch", false, "keep running and retrain on a schedule")
	cmd.Flags().Duration("check-interval", 0, "how often --watch checks the threshold")
	cmd.Flags().Duration("forced-period", 0, "how often --watch retrains regardless of the threshold")
	_ = viper.BindPFlag("retrain.check_interval", cmd.Flags().Lookup("check-interval"))
	_ = viper.BindPFlag("retrain.forced_period", cmd.Flags().Lookup("forced-period"))

	return cmd
}

func runRetrain(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	svc, err := newServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	watch, _ := cmd.Flags().GetBool("watch")
	if watch {
		scheduler := feedback.NewScheduler(svc.store, svc.retrainer, nil,
			viper.GetDuration("retrain.check_interval"), viper.GetDuration("retrain.forced_period"))
		scheduler.Start(ctx)
		fmt.Println("Watching for pending feedback; Ctrl-C to stop.")
		<-ctx.Done()
		scheduler.Stop()
		return nil
	}

	pending, err := svc.store.GetPendingCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending feedback: %w", err)
	}
	if pending == 0 {
		fmt.Println("No pending feedback to process.")
		return nil
	}

	if err := svc.retrainer.Retrain(ctx, model.TriggerManual); err != nil {
		return fmt.Errorf("retraining failed: %w", err)
	}

	entries, err := svc.store.GetTrainingHistory(ctx, 1)
	if err != nil {
		return fmt.Errorf("failed to read training history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No pending feedback to process.")
		return nil
	}

	entry := entries[0]
	fmt.Printf("Processed %d corrections in %s: %d embeddings refreshed, %d rules generated.\n",
		entry.FeedbackCount, formatDuration(entry.Duration), entry.EmbeddingsUpdated, entry.RulesGenerated)
	if entry.Notes != "" {
		fmt.Println(entry.Notes)
	}
	return nil
}
