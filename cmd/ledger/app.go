package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/config"
	"github.com/Veraticus/spice-ledger/internal/ledger"
	"github.com/Veraticus/spice-ledger/internal/migration"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/notify"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

// app wires the store, ledger engine and event sinks for one command run.
type app struct {
	cfg    *config.Config
	store  *storage.SQLiteStorage
	engine *ledger.Engine
	sink   notify.Sink
	amqp   *notify.AMQPSink
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	rates, err := cfg.Currency.RateSource()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, store: store}
	sinks := notify.Multi{notify.LogSink{}}
	if cfg.AMQP.Enabled() {
		// Events are advisory; an unreachable broker must not block the ledger.
		a.amqp, err = notify.NewAMQPSink(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey)
		if err != nil {
			slog.WarnContext(ctx, "AMQP notifications disabled", "error", err)
		} else {
			sinks = append(sinks, a.amqp)
		}
	}
	a.sink = sinks

	a.engine = ledger.NewWithConfig(store, ledger.Config{
		Rates: rates,
		Sink:  a.sink,
	})
	return a, nil
}

func (a *app) Close() {
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			slog.Debug("failed to close AMQP sink", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		slog.Debug("failed to close database", "error", err)
	}
}

func (a *app) migrations(opts ...migration.Option) *migration.Service {
	return migration.New(a.store, append([]migration.Option{migration.WithSink(a.sink)}, opts...)...)
}

// autoCheckpoint snapshots the database before a destructive operation.
func (a *app) autoCheckpoint(ctx context.Context, operation string) error {
	manager, err := a.store.NewCheckpointManager()
	if err != nil {
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	info, err := manager.AutoCheckpoint(ctx, operation)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "checkpoint saved", "id", info.ID)
	return nil
}

// resolveAccount accepts an account ID or a case-insensitive account name.
func (a *app) resolveAccount(ctx context.Context, ref string) (*model.Account, error) {
	account, err := a.store.GetAccount(ctx, ref)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	accounts, err := a.store.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	var matches []model.Account
	for _, acc := range accounts {
		if strings.EqualFold(acc.Name, ref) {
			matches = append(matches, acc)
		}
	}
	switch len(matches) {
	case 0:
		return nil, common.NewUserError(fmt.Sprintf("no account named %q", ref), common.ErrAccountNotFound)
	case 1:
		return &matches[0], nil
	default:
		return nil, common.NewUserError(fmt.Sprintf("%d accounts are named %q; use the account ID", len(matches), ref), common.ErrValidationFailed)
	}
}

// resolveCategory accepts a numeric ID or a category name.
func (a *app) resolveCategory(ctx context.Context, ref string) (*model.Category, error) {
	if id, err := parseID(ref); err == nil {
		return a.store.GetCategoryByID(ctx, id)
	}
	return a.store.GetCategoryByName(ctx, ref)
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id <= 0 {
		return 0, common.Validationf("invalid ID %q", s)
	}
	return id, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, common.Validationf("invalid amount %q", s)
	}
	return amount, nil
}

func parsePositiveAmount(s string) (decimal.Decimal, error) {
	amount, err := parseAmount(s)
	if err != nil {
		return amount, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, common.Validationf("amount must be positive, got %s", s)
	}
	return amount, nil
}

// parseDate accepts YYYY-MM-DD, "today" or empty for today.
func parseDate(s string, now time.Time) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return model.DateOf(now), nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return time.Time{}, common.Validationf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// retryBusy retries store operations that failed on a busy or locked database.
func retryBusy(ctx context.Context, name string, op func() error) error {
	return common.WithRetry(ctx, op, common.RetryOptions{
		Name:         name,
		MaxAttempts:  4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
	})
}
