package main

import (
	"errors"
	"fmt"

	"github.com/jstall/pennywise/internal/common"
	"github.com/jstall/pennywise/internal/feedback"
	"github.com/jstall/pennywise/internal/model"
	"github.com/spf13/cobra"
)

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback <item-id> <category>",
		Short: "Correct a categorization decision",
		Long: `Record that an item belongs to a different category than the pipeline
chose. The correction becomes authoritative immediately, and enough of
them trigger a retraining pass.`,
		Args: cobra.ExactArgs(2),
		RunE: runFeedback,
	}

	cmd.Flags().String("type", string(model.ItemTypeTransaction), "item type (transaction, order)")
	cmd.Flags().String("text", "", "item text (looked up from the stored embedding when empty)")

	return cmd
}

func runFeedback(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	itemID, category := args[0], args[1]

	itemType, err := parseItemType(cmd.Flag("type").Value.String())
	if err != nil {
		return err
	}

	svc, err := newServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	correction := feedback.Correction{
		ItemID:         itemID,
		ItemType:       itemType,
		ItemText:       cmd.Flag("text").Value.String(),
		ActualCategory: category,
	}

	// Carry the prior decision into the event when one exists.
	record, err := svc.store.GetRecord(ctx, itemID, itemType)
	switch {
	case err == nil:
		correction.SuggestedCategory = record.Category
		correction.SuggestionMethod = record.Method
		correction.SuggestionConfidence = record.Confidence
	case errors.Is(err, common.ErrNotFound):
		// First sighting of this item; the correction still stands.
	default:
		return fmt.Errorf("failed to load prior decision: %w", err)
	}

	if err := svc.recorder.RecordFeedback(ctx, correction); err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}

	fmt.Printf("Recorded: %s is %s\n", itemID, category)
	return nil
}
