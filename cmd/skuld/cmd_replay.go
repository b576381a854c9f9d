/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/skuld/internal/chain"
	"github.com/friendsincode/skuld/internal/db"
	"github.com/friendsincode/skuld/internal/events"
	"github.com/friendsincode/skuld/internal/scheduler"
	"github.com/friendsincode/skuld/internal/scheduling"
	"github.com/friendsincode/skuld/internal/store"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay the event log and report the rebuilt state",
	Long: `Replay reads the full transition log from the database, rebuilds the
in-memory request registry and discovery index from it, and prints a
summary. Nothing is written back; use this to verify a log before
starting the server against it.`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() { _ = db.Close(database) }()

	st, err := store.New(database, logger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	blockTime := time.Duration(cfg.Network.BlockTime) * time.Second
	clock := chain.NewSystemClock(cfg.Network.Genesis, blockTime, cfg.Network.GasPrice)
	validator := scheduling.NewValidator(clock, cfg.Network.GasCeiling, cfg.Network.ConfirmationBlocks, logger)

	// No persister or cache: replay must not write anything back.
	svc := scheduler.New(validator, clock, chain.NewLocalDispatcher(logger), events.NewBus(), nil, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	applied, err := st.Replay(ctx, svc)
	if err != nil {
		return fmt.Errorf("replay event log: %w", err)
	}

	fmt.Printf("events applied:  %d\n", applied)
	fmt.Printf("known requests:  %d\n", svc.Known())
	fmt.Printf("discoverable:    %d\n", svc.Indexed())
	return nil
}
