package main

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/service"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize [text...]",
		Short: "Categorize a transaction or a file of them",
		Long: `Run the categorization waterfall over a single item described on the
command line, or over every line of a file with --file. Each line of the
file is treated as one item's descriptive text; blank lines and lines
starting with # are skipped.`,
		RunE: runCategorize,
	}

	cmd.Flags().String("file", "", "categorize every line of this file")
	cmd.Flags().String("type", string(model.ItemTypeTransaction), "item type (transaction, order)")
	cmd.Flags().String("id", "", "item identifier (derived from the text when empty)")
	cmd.Flags().String("merchant", "", "merchant name")
	cmd.Flags().String("external-id", "", "stable catalog identifier (ASIN, SKU)")
	cmd.Flags().Float64("amount", 0, "item amount")
	cmd.Flags().Int("chunk-size", 0, "batch chunk size")
	_ = viper.BindPFlag("categorize.chunk_size", cmd.Flags().Lookup("chunk-size"))

	return cmd
}

func runCategorize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	itemType, err := parseItemType(cmd.Flag("type").Value.String())
	if err != nil {
		return err
	}

	svc, err := newServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if file := cmd.Flag("file").Value.String(); file != "" {
		return categorizeFile(cmd, svc, file, itemType)
	}

	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fmt.Errorf("nothing to categorize: pass item text or --file")
	}

	merchant := cmd.Flag("merchant").Value.String()
	amount, _ := cmd.Flags().GetFloat64("amount")

	item := model.Item{
		ID:         cmd.Flag("id").Value.String(),
		Type:       itemType,
		Merchant:   merchant,
		Name:       text,
		ExternalID: cmd.Flag("external-id").Value.String(),
		Amount:     amount,
		Date:       time.Now(),
	}
	if item.ID == "" {
		item.ID = deriveItemID(item.SearchText())
	}

	record, err := svc.pipeline.Categorize(ctx, item)
	if err != nil {
		return fmt.Errorf("categorization failed: %w", err)
	}

	printRecord(record)
	return nil
}

func categorizeFile(cmd *cobra.Command, svc *services, path string, itemType model.ItemType) error {
	ctx := cmd.Context()

	items, err := readItemsFile(path, itemType)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("Nothing to categorize.")
		return nil
	}

	bar := progressbar.NewOptions(len(items),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Categorizing..."),
	)

	records, err := svc.pipeline.BatchCategorize(ctx, items, func(p service.BatchProgress) {
		_ = bar.Set(p.Processed)
	})
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("batch categorization failed: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tCATEGORY\tCONFIDENCE\tMETHOD")
	byKey := make(map[string]*model.CategorizationRecord, len(records))
	for i := range records {
		byKey[records[i].ItemID] = &records[i]
	}
	for _, item := range items {
		record, ok := byKey[item.ID]
		if !ok {
			fmt.Fprintf(w, "%s\t\t\t(failed)\n", item.DisplayName())
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\n", item.DisplayName(), record.Category, model.ConfidenceToPercent(record.Confidence), record.Method)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(records) < len(items) {
		fmt.Fprintf(os.Stderr, "%d of %d items failed; see the log for details\n", len(items)-len(records), len(items))
	}
	return nil
}

func readItemsFile(path string, itemType model.ItemType) ([]model.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var items []model.Item
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		item := model.Item{
			Type: itemType,
			Name: line,
			Date: time.Now(),
		}
		item.ID = deriveItemID(item.SearchText())
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return items, nil
}

// deriveItemID produces a stable identifier for ad-hoc items so repeat runs
// hit the exact-match stage instead of re-deciding.
func deriveItemID(searchText string) string {
	sum := sha256.Sum256([]byte(searchText))
	return "adhoc-" + hex.EncodeToString(sum[:6])
}

func printRecord(record *model.CategorizationRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Category:\t%s\n", record.Category)
	fmt.Fprintf(w, "Confidence:\t%d%%\n", model.ConfidenceToPercent(record.Confidence))
	fmt.Fprintf(w, "Method:\t%s\n", record.Method)
	if record.Reasoning != "" {
		fmt.Fprintf(w, "Reasoning:\t%s\n", record.Reasoning)
	}
	for _, alt := range record.Alternatives {
		fmt.Fprintf(w, "Alternative:\t%s (%d%%)\n", alt.Category, model.ConfidenceToPercent(alt.Confidence))
	}
	_ = w.Flush()
}
