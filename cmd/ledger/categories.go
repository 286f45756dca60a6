package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/migration"
	"github.com/Veraticus/spice-ledger/internal/model"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"category", "cat"},
		Short:   "Manage categories",
	}

	cmd.AddCommand(listCategoriesCmd())
	cmd.AddCommand(createCategoryCmd())
	cmd.AddCommand(renameCategoryCmd())
	cmd.AddCommand(mergeCategoriesCmd())
	cmd.AddCommand(deleteCategoryCmd())

	return cmd
}

func listCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories and their subcategories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			categories, err := a.store.GetCategories(ctx)
			if err != nil {
				return err
			}
			if len(categories) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.SubtleStyle.Render("No categories found."))
				return nil
			}

			rows := make([][]string, 0, len(categories))
			for _, cat := range categories {
				subs, err := a.store.GetSubCategoriesByCategory(ctx, cat.ID)
				if err != nil {
					return err
				}
				names := make([]string, 0, len(subs))
				for _, sub := range subs {
					names = append(names, fmt.Sprintf("%s (%d)", sub.Name, sub.ID))
				}
				rows = append(rows, []string{strconv.Itoa(cat.ID), cat.Name, string(cat.Type), strings.Join(names, ", ")})
			}
			return cli.Table(cmd.OutOrStdout(), []string{"ID", "NAME", "TYPE", "SUBCATEGORIES"}, rows)
		},
	}
}

func createCategoryCmd() *cobra.Command {
	var income bool

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			categoryType := model.CategoryTypeExpense
			if income {
				categoryType = model.CategoryTypeIncome
			}
			cat, err := a.store.CreateCategory(ctx, args[0], categoryType)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created category %s (%d)", cat.Name, cat.ID)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&income, "income", false, "create an income category")
	return cmd
}

func renameCategoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <category> <new-name>",
		Short: "Rename a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cat, err := a.resolveCategory(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.store.UpdateCategory(ctx, cat.ID, args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Renamed %s to %s", cat.Name, args[1])))
			return nil
		},
	}
}

func mergeCategoriesCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "merge <source> <target>",
		Short: "Fold one category into another",
		Long: `Move every transaction of the source category to the target category.
Subcategories are matched by name ignoring case; missing ones are created in
the target. The source is deleted once every item has moved. A checkpoint
is taken first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			source, err := a.resolveCategory(ctx, args[0])
			if err != nil {
				return err
			}
			target, err := a.resolveCategory(ctx, args[1])
			if err != nil {
				return err
			}

			if !yes {
				ok, err := cli.Confirm(ctx, cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("Merge %s into %s?", source.Name, target.Name))
				if err != nil || !ok {
					return err
				}
			}
			if err := a.autoCheckpoint(ctx, "category-merge"); err != nil {
				return err
			}

			progress := cli.NewProgress(cmd.ErrOrStderr(), "Merging subcategories")
			result, err := a.migrations(migration.WithProgress(progress.Report)).MergeCategory(ctx, source.ID, target.ID)
			if err != nil {
				return err
			}
			return reportResult(cmd, result, fmt.Sprintf("Merged %s into %s", source.Name, target.Name),
				fmt.Sprintf("%s was kept", source.Name))
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func deleteCategoryCmd() *cobra.Command {
	var restore, yes bool

	cmd := &cobra.Command{
		Use:   "delete <category>",
		Short: "Delete a category with its subcategories and transactions",
		Long: `Delete a category, its subcategories and every transaction filed under
them. With --restore the balance effect of each transaction is reverted
first, as if it had never been recorded. A checkpoint is taken first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cat, err := a.resolveCategory(ctx, args[0])
			if err != nil {
				return err
			}

			if !yes {
				question := fmt.Sprintf("Delete %s and all of its transactions?", cat.Name)
				if restore {
					question = fmt.Sprintf("Delete %s and all of its transactions, restoring balances?", cat.Name)
				}
				ok, err := cli.Confirm(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), question)
				if err != nil || !ok {
					return err
				}
			}
			if err := a.autoCheckpoint(ctx, "category-delete"); err != nil {
				return err
			}

			progress := cli.NewProgress(cmd.ErrOrStderr(), "Deleting transactions")
			result, err := a.migrations(migration.WithProgress(progress.Report)).DeleteCategory(ctx, cat.ID, restore)
			if err != nil {
				return err
			}
			return reportResult(cmd, result, "Deleted "+cat.Name, fmt.Sprintf("%s was kept", cat.Name))
		},
	}

	cmd.Flags().BoolVar(&restore, "restore", false, "revert the balance effect of each deleted transaction")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func subcategoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subcategories",
		Aliases: []string{"subcategory", "sub"},
		Short:   "Manage subcategories",
	}

	cmd.AddCommand(createSubCategoryCmd())
	cmd.AddCommand(mergeSubCategoriesCmd())
	cmd.AddCommand(deleteSubCategoryCmd())

	return cmd
}

func createSubCategoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <category> <name>",
		Short: "Append a subcategory to a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cat, err := a.resolveCategory(ctx, args[0])
			if err != nil {
				return err
			}
			existing, err := a.store.GetSubCategoriesByCategory(ctx, cat.ID)
			if err != nil {
				return err
			}
			sub := &model.SubCategory{Name: args[1], CategoryID: cat.ID, Position: len(existing)}
			if err := a.store.InsertSubCategory(ctx, sub); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created %s / %s (%d)", cat.Name, sub.Name, sub.ID)))
			return nil
		},
	}
}

func mergeSubCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <source-id> <target-id>",
		Short: "Move the transactions of one subcategory to another and delete it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sourceID, err := parseID(args[0])
			if err != nil {
				return err
			}
			targetID, err := parseID(args[1])
			if err != nil {
				return err
			}
			if sourceID == targetID {
				return common.Validationf("cannot merge a subcategory into itself")
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			moved, err := a.migrations().MergeSubCategory(ctx, sourceID, targetID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Moved %d transactions", moved)))
			return nil
		},
	}
}

func deleteSubCategoryCmd() *cobra.Command {
	var restore bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a subcategory and its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.autoCheckpoint(ctx, "subcategory-delete"); err != nil {
				return err
			}
			result, err := a.migrations().DeleteSubCategory(ctx, id, restore)
			if err != nil {
				return err
			}
			return reportResult(cmd, result, "Deleted subcategory "+args[0], "the subcategory was kept")
		},
	}

	cmd.Flags().BoolVar(&restore, "restore", false, "revert the balance effect of each deleted transaction")
	return cmd
}
