package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/model"
)

func transferCmd() *cobra.Command {
	var toAmount, title, date string
	var balanceOnly bool

	cmd := &cobra.Command{
		Use:   "transfer <from> <to> <amount>",
		Short: "Move money between accounts",
		Long: `Record a transfer from one account to another. Between accounts in
different currencies the credited amount is converted with the configured
rates unless --to-amount gives it explicitly.

With --balance-only no transaction is recorded and --to-amount is required
when the currencies differ.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			amount, err := parsePositiveAmount(args[2])
			if err != nil {
				return err
			}
			credited := decimal.Zero
			if toAmount != "" {
				if credited, err = parsePositiveAmount(toAmount); err != nil {
					return err
				}
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			source, err := a.resolveAccount(ctx, args[0])
			if err != nil {
				return err
			}
			dest, err := a.resolveAccount(ctx, args[1])
			if err != nil {
				return err
			}

			var accounts []model.Account
			if balanceOnly {
				if credited.IsZero() {
					if source.CurrencyCode != dest.CurrencyCode {
						return fmt.Errorf("--to-amount is required between %s and %s", source.CurrencyCode, dest.CurrencyCode)
					}
					credited = amount
				}
				if accounts, err = a.engine.TransferWithConversion(ctx, source.ID, dest.ID, amount, credited); err != nil {
					return err
				}
			} else {
				day, err := parseDate(date, time.Now())
				if err != nil {
					return err
				}
				if title == "" {
					title = "Transfer to " + dest.Name
				}
				_, err = a.engine.Create(ctx, &model.Transaction{
					Title:                title,
					Amount:               amount,
					DestinationAmount:    credited,
					Date:                 day,
					AccountID:            source.ID,
					DestinationAccountID: dest.ID,
					Mode:                 model.ModeTransfer,
					Kind:                 model.KindDefault,
				})
				if err != nil {
					return err
				}
				if accounts, err = a.engine.Accounts(ctx); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Moved %s from %s to %s",
				cli.FormatMoney(amount, source.CurrencyCode), source.Name, dest.Name)))
			for _, acc := range accounts {
				if acc.ID == source.ID || acc.ID == dest.ID {
					fmt.Fprintf(out, "  %s: %s\n", acc.Name, cli.FormatMoney(acc.Balance, acc.CurrencyCode))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&toAmount, "to-amount", "", "amount credited to the destination")
	cmd.Flags().StringVar(&title, "title", "", "transaction title")
	cmd.Flags().StringVarP(&date, "date", "d", "", "date as YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&balanceOnly, "balance-only", false, "adjust balances without recording a transaction")

	return cmd
}
