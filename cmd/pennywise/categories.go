package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jstall/pennywise/internal/llm"
	"github.com/jstall/pennywise/internal/model"
	"github.com/spf13/cobra"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage spending categories",
	}

	cmd.AddCommand(listCategoriesCmd())
	cmd.AddCommand(addCategoryCmd())

	return cmd
}

func listCategoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			categories, err := store.ListCategories(ctx)
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}
			if len(categories) == 0 {
				fmt.Println("No categories found.")
				return nil
			}

			var suggester *llm.EmojiSuggester
			if withEmoji, _ := cmd.Flags().GetBool("emoji"); withEmoji {
				suggester, err = llm.NewEmojiSuggester(newBackend(), nil)
				if err != nil {
					return fmt.Errorf("failed to build emoji suggester: %w", err)
				}
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKEYWORDS\tDESCRIPTION")
			for _, cat := range categories {
				name := cat.Name
				if suggester != nil {
					name = suggester.Suggest(ctx, cat.Name) + " " + name
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, strings.Join(cat.Keywords, ", "), cat.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().Bool("emoji", false, "prefix each category with a suggested emoji")

	return cmd
}

func addCategoryCmd() *cobra.Command {
	var (
		description string
		keywords    []string
		examples    []string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("category name must not be empty")
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			existing, err := store.ListCategories(ctx)
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}
			if model.FindCategory(existing, name) != nil {
				return fmt.Errorf("category %q already exists", name)
			}

			cat := model.Category{
				Name:        name,
				Description: description,
				Keywords:    keywords,
				Examples:    examples,
				IsActive:    true,
			}
			if err := store.CreateCategory(ctx, &cat); err != nil {
				return fmt.Errorf("failed to create category: %w", err)
			}

			fmt.Printf("Created category %q\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "category description")
	cmd.Flags().StringSliceVar(&keywords, "keywords", nil, "keywords that hint at this category")
	cmd.Flags().StringSliceVar(&examples, "examples", nil, "example merchants or items")

	return cmd
}
