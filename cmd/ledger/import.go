package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/ofx"
	"github.com/Veraticus/spice-ledger/internal/pattern"
)

func importCmd() *cobra.Command {
	var accountRef, statementAccount string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <files...>",
		Short: "Import transactions from OFX/QFX statements",
		Long: `Import bank or card statements exported as OFX or QFX. Debits become
expenses and credits income on the chosen account. Entries already imported
(same FITID on the same account) are skipped, so overlapping statements are
safe to import.

Rules under import.rules in the config file file matching entries into
categories as they are imported.`,
		Example: `  ledger import ~/Downloads/checking_jan.qfx --account Checking
  ledger import ~/Downloads/*.ofx --account Visa --statement-account 4111111111111111`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			files, err := expandFiles(args)
			if err != nil {
				return err
			}

			if dryRun {
				return previewImport(cmd, files)
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			account, err := a.resolveAccount(ctx, accountRef)
			if err != nil {
				return err
			}

			matcher, err := pattern.NewMatcher(a.cfg.Import.Rules)
			if err != nil {
				return err
			}
			categorizer := pattern.NewCategorizer(matcher, a.store)

			var total ofx.ImportResult
			for _, path := range files {
				progress := cli.NewProgress(cmd.ErrOrStderr(), "Importing "+filepath.Base(path))
				opts := []ofx.ImporterOption{ofx.WithProgress(progress.Report)}
				if matcher.Len() > 0 {
					opts = append(opts, ofx.WithCategorizer(categorizer))
				}
				importer := ofx.NewImporter(a.engine, a.store, opts...)

				result, err := importFile(cmd, importer, path, account.ID, statementAccount)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				total.Imported += result.Imported
				total.Skipped += result.Skipped
				total.Failed += result.Failed
				total.Categorized += result.Categorized
			}

			summary := fmt.Sprintf("Imported %d transactions into %s (%d already present)", total.Imported, account.Name, total.Skipped)
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(summary))
			if total.Categorized > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("%d categorized by import rules", total.Categorized)))
			}
			if total.Failed > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf("%d entries failed; see the log", total.Failed)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&accountRef, "account", "a", "", "ledger account to import into")
	cmd.Flags().StringVar(&statementAccount, "statement-account", "", "account number to pick from files that hold several")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what the files contain without importing")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func importFile(cmd *cobra.Command, importer *ofx.Importer, path, accountID, statementAccount string) (ofx.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ofx.ImportResult{}, err
	}
	defer func() { _ = f.Close() }()
	return importer.Import(cmd.Context(), f, accountID, statementAccount)
}

// expandFiles resolves glob patterns, keeping literal paths that exist.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("no files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, common.NewUserError("no files found to import", common.ErrNotFound)
	}
	return files, nil
}

func previewImport(cmd *cobra.Command, files []string) error {
	parser := ofx.NewParser()
	var rows [][]string
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		statements, err := parser.ParseFile(cmd.Context(), f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, stmt := range statements {
			for _, txn := range stmt.Transactions {
				rows = append(rows, []string{
					filepath.Base(path),
					stmt.AccountNumber,
					txn.Date.Format("2006-01-02"),
					txn.Title,
					string(txn.Mode),
					cli.FormatMoney(txn.Amount, stmt.Currency),
				})
			}
		}
	}
	return cli.Table(cmd.OutOrStdout(), []string{"FILE", "STATEMENT", "DATE", "TITLE", "MODE", "AMOUNT"}, rows)
}
