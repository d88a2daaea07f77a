package cmd

import (
	"fmt"

	"github.com/warp/finance-ledger/accounts"
	"github.com/warp/finance-ledger/logger"
	"github.com/warp/finance-ledger/recurrence"
	"github.com/warp/finance-ledger/store/sqlite"
)

// app is the wired engine shared by every subcommand.
type app struct {
	store     *sqlite.Store
	rules     *recurrence.Service
	balances  *accounts.BalanceUpdater
	scheduler *recurrence.Scheduler
}

func openApp() (*app, error) {
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}

	m := recurrence.NewMaterializer(store)
	m.Logger = logger.Component(log, "materializer")

	rules := recurrence.NewService(store, m)
	rules.InitialBatch = cfg.Sweep.InitialBatch

	balances := accounts.NewBalanceUpdater(store)
	balances.Logger = logger.Component(log, "balances")

	sched := recurrence.NewScheduler(store, m, recurrence.SystemClock{})
	sched.Logger = logger.Component(log, "scheduler")
	sched.Interval = cfg.Sweep.Interval
	sched.HorizonDays = cfg.Sweep.HorizonDays
	sched.MaxPerRule = cfg.Sweep.MaxOccurrences
	sched.Workers = cfg.Sweep.Workers
	sched.Enabled = cfg.Sweep.Enabled

	return &app{store: store, rules: rules, balances: balances, scheduler: sched}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
