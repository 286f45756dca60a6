package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/migration"
	"github.com/Veraticus/spice-ledger/internal/model"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account"},
		Short:   "Manage accounts and balances",
	}

	cmd.AddCommand(createAccountCmd())
	cmd.AddCommand(listAccountsCmd())
	cmd.AddCommand(mainAccountCmd())
	cmd.AddCommand(adjustAccountCmd())
	cmd.AddCommand(mergeAccountsCmd())

	return cmd
}

func createAccountCmd() *cobra.Command {
	var currencyCode, balance string
	var isMain bool

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an account with an opening balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opening, err := parseAmount(balance)
			if err != nil {
				return err
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			account, err := a.engine.CreateAccount(ctx, &model.Account{
				Name:          args[0],
				CurrencyCode:  currencyCode,
				Balance:       opening,
				IsMainAccount: isMain,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created account %s (%s) with balance %s",
				account.Name, account.ID, cli.FormatMoney(account.Balance, account.CurrencyCode))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&currencyCode, "currency", "c", "USD", "ISO currency code")
	cmd.Flags().StringVarP(&balance, "balance", "b", "0", "opening balance")
	cmd.Flags().BoolVar(&isMain, "main", false, "make this the main account")

	return cmd
}

func listAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts with their balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			accounts, err := a.engine.Accounts(ctx)
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.SubtleStyle.Render("No accounts yet. Create one with: ledger accounts create <name>"))
				return nil
			}

			rows := make([][]string, 0, len(accounts))
			for _, acc := range accounts {
				marker := ""
				if acc.IsMainAccount {
					marker = "*"
				}
				rows = append(rows, []string{marker, acc.Name, cli.FormatMoney(acc.Balance, acc.CurrencyCode), acc.ID})
			}
			return cli.Table(cmd.OutOrStdout(), []string{"", "NAME", "BALANCE", "ID"}, rows)
		},
	}
}

func mainAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "main <account>",
		Short: "Set the main account",
		Args:  cobra.ExactArgs(1),
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
			if err := a.engine.SetMainAccount(ctx, account.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(account.Name+" is now the main account"))
			return nil
		},
	}
}

func adjustAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adjust <account> <amount>",
		Short: "Correct a balance without recording a transaction",
		Long: `Add a signed amount to an account balance. A negative amount is taken
from the account. No transaction is recorded, so the change cannot be
reverted by deleting one.`,
		Example: `  ledger accounts adjust Checking 12.34
  ledger accounts adjust Checking -- -5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			if amount.IsZero() {
				return nil
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			account, err := a.resolveAccount(ctx, args[0])
			if err != nil {
				return err
			}
			updated, err := a.engine.AdjustBalance(ctx, account.ID, amount.Abs(), amount.IsNegative())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s → %s\n",
				cli.FormatSuccess(updated.Name),
				cli.FormatSigned(amount, updated.CurrencyCode),
				cli.FormatMoney(updated.Balance, updated.CurrencyCode))
			return nil
		},
	}
}

func mergeAccountsCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "merge <source> <target>",
		Short: "Move every transaction of one account to another and delete it",
		Long: `Re-point all transactions of the source account to the target account,
carrying their balance effects along, then delete the source. Both accounts
must use the same currency. A checkpoint is taken first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			source, err := a.resolveAccount(ctx, args[0])
			if err != nil {
				return err
			}
			target, err := a.resolveAccount(ctx, args[1])
			if err != nil {
				return err
			}

			if !yes {
				ok, err := cli.Confirm(ctx, cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("Merge %s into %s and delete %s?", source.Name, target.Name, source.Name))
				if err != nil || !ok {
					return err
				}
			}

			if err := a.autoCheckpoint(ctx, "account-merge"); err != nil {
				return err
			}

			progress := cli.NewProgress(cmd.ErrOrStderr(), "Moving transactions")
			result, err := a.migrations(migration.WithProgress(progress.Report)).MergeAccount(ctx, source.ID, target.ID)
			if err != nil {
				return err
			}
			return reportResult(cmd, result, fmt.Sprintf("Merged %s into %s", source.Name, target.Name),
				fmt.Sprintf("%s was kept because some transactions could not be moved", source.Name))
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

// reportResult prints the outcome of a bulk operation.
func reportResult(cmd *cobra.Command, result migration.Result, done, partial string) error {
	out := cmd.OutOrStdout()
	if result.Complete() {
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s (%d transactions)", done, result.Succeeded)))
		return nil
	}
	fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d of %d items failed; %s. See the log for details.",
		result.Failed, result.Total, partial)))
	return nil
}
