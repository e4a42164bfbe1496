package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/service"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
	}

	cmd.AddCommand(listRulesCmd())
	cmd.AddCommand(addRuleCmd())
	cmd.AddCommand(setRuleEnabledCmd("enable", true))
	cmd.AddCommand(setRuleEnabledCmd("disable", false))
	cmd.AddCommand(mapExternalIDCmd())

	return cmd
}

func addRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <pattern> <category>",
		Short: "Add a categorization rule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pattern, category := args[0], args[1]

			match, _ := cmd.Flags().GetString("match")
			kind, err := parseMatchKind(match)
			if err != nil {
				return err
			}
			percent, _ := cmd.Flags().GetInt("confidence")
			if percent < 0 || percent > 100 {
				return fmt.Errorf("confidence must be between 0 and 100, got %d", percent)
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			canonical, err := addRule(ctx, store, pattern, category, kind, percent)
			if err != nil {
				return err
			}

			fmt.Printf("Added %s rule %q for %s at %d%% confidence\n", kind, pattern, canonical, percent)
			return nil
		},
	}

	cmd.Flags().String("match", string(model.MatchContains), "match kind: exact, contains, startswith, endswith, regex")
	cmd.Flags().Int("confidence", 90, "rule confidence as a percentage (0-100)")

	return cmd
}

// addRule validates the category against the catalog and saves a user rule.
// The --confidence flag speaks the legacy 0-100 percentage scale; rules
// store the internal 0-1 scale. Returns the catalog's spelling of the
// category.
func addRule(ctx context.Context, store service.Storage, pattern, category string, kind model.MatchKind, percent int) (string, error) {
	categories, err := store.ListCategories(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list categories: %w", err)
	}
	cat := model.FindCategory(categories, category)
	if cat == nil {
		return "", fmt.Errorf("unknown category %q", category)
	}

	name := fmt.Sprintf("%s -> %s", pattern, cat.Name)
	confidence := model.PercentToConfidence(percent)
	if err := store.CreateAutoRule(ctx, name, pattern, cat.Name, kind, confidence, model.OriginUser); err != nil {
		return "", fmt.Errorf("failed to create rule: %w", err)
	}
	return cat.Name, nil
}

// parseMatchKind validates the --match flag.
func parseMatchKind(raw string) (model.MatchKind, error) {
	switch model.MatchKind(raw) {
	case model.MatchExact, model.MatchContains, model.MatchStartsWith, model.MatchEndsWith, model.MatchRegex:
		return model.MatchKind(raw), nil
	default:
		return "", fmt.Errorf("invalid match kind %q", raw)
	}
}

func mapExternalIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "map-id <external-id> <category>",
		Short: "Map a catalog identifier (ASIN, SKU) to a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			externalID, category := args[0], args[1]

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			categories, err := store.ListCategories(ctx)
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}
			if model.FindCategory(categories, category) == nil {
				return fmt.Errorf("unknown category %q", category)
			}

			if err := store.SaveExternalIDRule(ctx, externalID, category); err != nil {
				return fmt.Errorf("failed to save identifier rule: %w", err)
			}

			fmt.Printf("Mapped %s to %s\n", externalID, category)
			return nil
		},
	}
}

func listRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categorization rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			all, _ := cmd.Flags().GetBool("all")
			rules, err := store.GetCategoryRules(ctx, !all)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}
			if len(rules) == 0 {
				fmt.Println("No rules found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPATTERN\tMATCH\tCATEGORY\tCONFIDENCE\tORIGIN\tENABLED")
			for _, r := range rules {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%s\t%t\n",
					r.ID, r.Pattern, r.MatchKind, r.Category, r.EffectiveConfidence(), r.Origin, r.Enabled)
			}
			return w.Flush()
		},
	}

	cmd.Flags().Bool("all", false, "include disabled rules")

	return cmd
}

func setRuleEnabledCmd(use string, enabled bool) *cobra.Command {
	short := "Disable a rule"
	if enabled {
		short = "Re-enable a rule"
	}
	return &cobra.Command{
		Use:   use + " <rule-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid rule id %q", args[0])
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			if err := store.SetRuleEnabled(ctx, id, enabled); err != nil {
				return fmt.Errorf("failed to %s rule: %w", use, err)
			}

			fmt.Printf("Rule %d %sd\n", id, use)
			return nil
		},
	}
}
