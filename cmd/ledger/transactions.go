package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tx",
		Aliases: []string{"transactions"},
		Short:   "Record and manage transactions",
	}

	cmd.AddCommand(addTransactionCmd())
	cmd.AddCommand(listTransactionsCmd())
	cmd.AddCommand(editTransactionCmd())
	cmd.AddCommand(deleteTransactionCmd())
	cmd.AddCommand(markTransactionCmd())

	return cmd
}

// txnFlags holds the flags shared by add and edit.
type txnFlags struct {
	title       string
	amount      string
	mode        string
	kind        string
	status      string
	date        string
	clock       string
	to          string
	toAmount    string
	category    string
	subcategory int
	frequency   string
	interval    int
	until       string
}

func (f *txnFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.title, "title", "", "transaction title")
	flags.StringVar(&f.amount, "amount", "", "amount (positive)")
	flags.StringVarP(&f.mode, "mode", "m", string(model.ModeExpense), "expense, income or transfer")
	flags.StringVarP(&f.kind, "kind", "k", string(model.KindDefault), "default, upcoming, subscription, repetitive, lent or borrowed")
	flags.StringVar(&f.status, "status", "", "initial status (lent/borrowed: outstanding, collected, settled)")
	flags.StringVarP(&f.date, "date", "d", "", "date as YYYY-MM-DD (default today)")
	flags.StringVar(&f.clock, "time", "", "time of day as HH:MM")
	flags.StringVar(&f.to, "to", "", "destination account of a transfer")
	flags.StringVar(&f.toAmount, "to-amount", "", "amount credited to the destination when currencies differ")
	flags.StringVar(&f.category, "category", "", "category ID or name")
	flags.IntVar(&f.subcategory, "subcategory", 0, "subcategory ID")
	flags.StringVar(&f.frequency, "every", "", "recurrence frequency: daily, weekly, monthly or yearly")
	flags.IntVar(&f.interval, "interval", 1, "recurrence interval in units of --every")
	flags.StringVar(&f.until, "until", "", "last date of the recurrence as YYYY-MM-DD")
}

// apply copies the flags the user set onto txn. On create every flag counts
// as set.
func (f *txnFlags) apply(ctx context.Context, cmd *cobra.Command, a *app, txn *model.Transaction, all bool) error {
	changed := func(name string) bool {
		return all || cmd.Flags().Changed(name)
	}

	if changed("title") && f.title != "" {
		txn.Title = f.title
	}
	if changed("amount") && f.amount != "" {
		amount, err := parsePositiveAmount(f.amount)
		if err != nil {
			return err
		}
		txn.Amount = amount
	}
	if changed("mode") {
		txn.Mode = model.Mode(strings.ToLower(f.mode))
	}
	if changed("kind") {
		txn.Kind = model.Kind(strings.ToLower(f.kind))
	}
	if changed("status") && f.status != "" {
		txn.Status = model.Status(strings.ToLower(f.status))
	}
	if changed("date") {
		date, err := parseDate(f.date, time.Now())
		if err != nil {
			return err
		}
		txn.Date = date
	}
	if changed("time") {
		txn.Time = f.clock
	}
	if changed("to") && f.to != "" {
		dest, err := a.resolveAccount(ctx, f.to)
		if err != nil {
			return err
		}
		txn.DestinationAccountID = dest.ID
	}
	if changed("to-amount") {
		txn.DestinationAmount = decimal.Zero
		if f.toAmount != "" {
			amount, err := parsePositiveAmount(f.toAmount)
			if err != nil {
				return err
			}
			txn.DestinationAmount = amount
		}
	}
	if changed("category") && f.category != "" {
		category, err := a.resolveCategory(ctx, f.category)
		if err != nil {
			return err
		}
		txn.CategoryID = category.ID
	}
	if changed("subcategory") && f.subcategory > 0 {
		sub, err := a.store.GetSubCategory(ctx, f.subcategory)
		if err != nil {
			return err
		}
		txn.CategoryID = sub.CategoryID
		txn.SubCategoryID = &sub.ID
	}
	if changed("every") || changed("interval") || changed("until") {
		return f.applyRecurrence(txn)
	}
	return nil
}

func (f *txnFlags) applyRecurrence(txn *model.Transaction) error {
	if f.frequency == "" || f.frequency == string(model.FrequencyNone) {
		if txn.Kind.IsRecurring() && f.frequency == "" {
			return common.Validationf("%s transactions need --every", txn.Kind)
		}
		txn.Recurrence = nil
		return nil
	}

	rule := &model.Recurrence{
		Frequency: model.Frequency(strings.ToLower(f.frequency)),
		Interval:  f.interval,
	}
	if f.until != "" {
		end, err := parseDate(f.until, time.Now())
		if err != nil {
			return err
		}
		rule.EndDate = &end
	}
	txn.Recurrence = rule
	return nil
}

func addTransactionCmd() *cobra.Command {
	var flags txnFlags

	cmd := &cobra.Command{
		Use:   "add <account> <amount> <title>",
		Short: "Record a transaction",
		Example: `  ledger tx add Checking 12.50 "Lunch" --category Food
  ledger tx add Checking 1500 "Salary" --mode income
  ledger tx add Checking 9.99 "Streaming" --kind subscription --every monthly
  ledger tx add Checking 200 "Savings" --mode transfer --to Savings
  ledger tx add Checking 40 "Dinner for Sam" --kind lent`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			account, err := a.resolveAccount(ctx, args[0])
			if err != nil {
				return err
			}
			flags.amount = args[1]
			flags.title = args[2]

			txn := &model.Transaction{AccountID: account.ID}
			if err := flags.apply(ctx, cmd, a, txn, true); err != nil {
				return err
			}

			created, err := a.engine.Create(ctx, txn)
			if err != nil {
				return err
			}
			if account, err = a.store.GetAccount(ctx, account.ID); err != nil {
				return err
			}
			printTransaction(cmd, created, account)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func editTransactionCmd() *cobra.Command {
	var flags txnFlags

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a transaction and move its balance effect",
		Long: `Change any field of a transaction. The old balance effect is reverted
and the new one applied in a single database transaction. Changing the
recurrence of a subscription regenerates its unpaid future instances.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			txn, err := a.store.GetTransaction(ctx, args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("every") && !cmd.Flags().Changed("interval") && txn.Recurrence != nil {
				flags.interval = txn.Recurrence.Interval
			}
			if err := flags.apply(ctx, cmd, a, txn, false); err != nil {
				return err
			}

			updated, err := a.engine.Update(ctx, txn)
			if err != nil {
				return err
			}
			account, err := a.store.GetAccount(ctx, updated.AccountID)
			if err != nil {
				return err
			}
			printTransaction(cmd, updated, account)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func deleteTransactionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction and revert its balance effect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted transaction "+args[0]))
			return nil
		},
	}
}

func markTransactionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark <id> <paid|unpaid|collected|uncollected|settled|unsettled>",
		Short: "Change the status of an upcoming, recurring, lent or borrowed transaction",
		Long: `Mark a transaction paid, collected or settled (or undo it). The balance
moves with the status. Marking a subscription or repetitive payment paid
schedules its next occurrence.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			marks := map[string]func(context.Context, string) (*model.Transaction, error){
				"paid":        a.engine.MarkPaid,
				"unpaid":      a.engine.MarkUnpaid,
				"collected":   a.engine.MarkCollected,
				"uncollected": a.engine.MarkUncollected,
				"settled":     a.engine.MarkSettled,
				"unsettled":   a.engine.MarkUnsettled,
			}
			mark, ok := marks[strings.ToLower(args[1])]
			if !ok {
				return common.Validationf("unknown status %q", args[1])
			}

			// Re-marking is idempotent, so a busy database can be retried.
			var updated *model.Transaction
			err = retryBusy(ctx, "mark "+strings.ToLower(args[1]), func() error {
				var markErr error
				updated, markErr = mark(ctx, args[0])
				return markErr
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s is now %s", updated.Title, updated.Status)))
			return nil
		},
	}
}

func listTransactionsCmd() *cobra.Command {
	var accountRef, from, to string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			filter := service.TransactionFilter{Limit: limit}
			if accountRef != "" {
				account, err := a.resolveAccount(ctx, accountRef)
				if err != nil {
					return err
				}
				filter.AccountID = account.ID
			}
			if from != "" {
				start, err := parseDate(from, time.Now())
				if err != nil {
					return err
				}
				filter.StartDate = &start
			}
			if to != "" {
				end, err := parseDate(to, time.Now())
				if err != nil {
					return err
				}
				filter.EndDate = &end
			}

			txns, err := a.store.GetTransactions(ctx, filter)
			if err != nil {
				return err
			}
			if len(txns) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.SubtleStyle.Render("No transactions found."))
				return nil
			}

			accounts, err := a.engine.Accounts(ctx)
			if err != nil {
				return err
			}
			byID := make(map[string]model.Account, len(accounts))
			for _, acc := range accounts {
				byID[acc.ID] = acc
			}

			rows := make([][]string, 0, len(txns))
			for i := range txns {
				txn := &txns[i]
				account := byID[txn.AccountID]
				rows = append(rows, []string{
					model.FormatDate(txn.Date),
					txn.Title,
					cli.FormatMoney(txn.Amount, account.CurrencyCode),
					describeAccounts(txn, byID),
					string(txn.Kind),
					string(txn.Status),
					txn.ID,
				})
			}
			return cli.Table(cmd.OutOrStdout(), []string{"DATE", "TITLE", "AMOUNT", "ACCOUNT", "KIND", "STATUS", "ID"}, rows)
		},
	}

	cmd.Flags().StringVarP(&accountRef, "account", "a", "", "only this account")
	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of transactions")

	return cmd
}

func describeAccounts(txn *model.Transaction, accounts map[string]model.Account) string {
	name := accounts[txn.AccountID].Name
	switch txn.Mode {
	case model.ModeTransfer:
		return name + " → " + accounts[txn.DestinationAccountID].Name
	case model.ModeIncome:
		return "+ " + name
	default:
		return "- " + name
	}
}

func printTransaction(cmd *cobra.Command, txn *model.Transaction, account *model.Account) {
	line := fmt.Sprintf("%s %s %s on %s (%s)",
		txn.Title,
		cli.FormatMoney(txn.Amount, account.CurrencyCode),
		txn.Mode,
		model.FormatDate(txn.Date),
		txn.ID)
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(line))
	fmt.Fprintf(cmd.OutOrStdout(), "  %s balance: %s\n", account.Name,
		cli.FormatMoney(account.Balance, account.CurrencyCode))
}
