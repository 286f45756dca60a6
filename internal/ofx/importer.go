package ofx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Creator records a new transaction and its balance effect.
type Creator interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
}

// Lookup finds previously imported transactions.
type Lookup interface {
	GetTransactionByExternalID(ctx context.Context, accountID, externalID string) (*model.Transaction, error)
}

// Categorizer assigns a category to an entry before it is recorded.
type Categorizer interface {
	Categorize(ctx context.Context, txn *model.Transaction) (bool, error)
}

// ImportResult counts the outcome of one import.
type ImportResult struct {
	Imported    int
	Skipped     int
	Failed      int
	Categorized int
}

// Importer feeds statement entries into the ledger, one transaction at a
// time, skipping entries whose FITID was already imported into the account.
type Importer struct {
	parser      *Parser
	creator     Creator
	lookup      Lookup
	progress    func(done, total int)
	categorizer Categorizer
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithProgress reports progress after every statement entry.
func WithProgress(fn func(done, total int)) ImporterOption {
	return func(i *Importer) {
		i.progress = fn
	}
}

// WithCategorizer files uncategorized entries before they are recorded.
func WithCategorizer(c Categorizer) ImporterOption {
	return func(i *Importer) {
		i.categorizer = c
	}
}

// NewImporter creates an importer.
func NewImporter(creator Creator, lookup Lookup, opts ...ImporterOption) *Importer {
	i := &Importer{
		parser:  NewParser(),
		creator: creator,
		lookup:  lookup,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import parses reader and records its entries against accountID. When the
// file holds several accounts, accountNumber selects one; an empty
// accountNumber requires the file to hold exactly one.
func (i *Importer) Import(ctx context.Context, reader io.Reader, accountID, accountNumber string) (ImportResult, error) {
	statements, err := i.parser.ParseFile(ctx, reader)
	if err != nil {
		return ImportResult{}, err
	}

	stmt, err := selectStatement(statements, accountNumber)
	if err != nil {
		return ImportResult{}, err
	}
	return i.ImportStatement(ctx, stmt, accountID)
}

func selectStatement(statements []Statement, accountNumber string) (Statement, error) {
	if accountNumber == "" {
		switch len(statements) {
		case 0:
			return Statement{}, common.Validationf("statement file contains no accounts")
		case 1:
			return statements[0], nil
		default:
			return Statement{}, common.Validationf("statement file contains %d accounts; choose one", len(statements))
		}
	}
	for _, s := range statements {
		if s.AccountNumber == accountNumber {
			return s, nil
		}
	}
	return Statement{}, common.Validationf("account %s not found in statement file", accountNumber)
}

// ImportStatement records the entries of one statement. Entries that fail
// are logged and counted; only context cancellation aborts the import.
func (i *Importer) ImportStatement(ctx context.Context, stmt Statement, accountID string) (ImportResult, error) {
	var result ImportResult
	total := len(stmt.Transactions)

	for n := range stmt.Transactions {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		entry := stmt.Transactions[n]
		entry.AccountID = accountID
		skipped, categorized, err := i.importOne(ctx, &entry)
		if categorized && err == nil && !skipped {
			result.Categorized++
		}
		switch {
		case err != nil:
			result.Failed++
			slog.WarnContext(ctx, "failed to import statement entry",
				"fitid", entry.ExternalID,
				"title", entry.Title,
				"error", err)
		case skipped:
			result.Skipped++
		default:
			result.Imported++
		}

		if i.progress != nil {
			i.progress(n+1, total)
		}
	}

	slog.InfoContext(ctx, "statement imported",
		"account_id", accountID,
		"account_number", stmt.AccountNumber,
		"imported", result.Imported,
		"skipped", result.Skipped,
		"categorized", result.Categorized,
		"failed", result.Failed)
	return result, nil
}

func (i *Importer) importOne(ctx context.Context, entry *model.Transaction) (skipped, categorized bool, err error) {
	if entry.ExternalID != "" {
		_, err := i.lookup.GetTransactionByExternalID(ctx, entry.AccountID, entry.ExternalID)
		if err == nil {
			return true, false, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return false, false, fmt.Errorf("failed to check for existing entry: %w", err)
		}
	}

	if i.categorizer != nil {
		categorized, err = i.categorizer.Categorize(ctx, entry)
		if err != nil {
			return false, false, fmt.Errorf("failed to categorize entry: %w", err)
		}
	}

	if _, err := i.creator.Create(ctx, entry); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			return true, false, nil
		}
		return false, false, err
	}
	return false, categorized, nil
}
