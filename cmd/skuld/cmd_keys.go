/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/skuld/internal/auth"
	"github.com/friendsincode/skuld/internal/db"
	"github.com/friendsincode/skuld/internal/models"
)

var (
	keySubject    string
	keyName       string
	keyExpireDays int
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key",
	Long: `Create an API key bound to an account address. The plaintext key is
printed exactly once; only a hash is stored. Use this to bootstrap the
first credential before the HTTP API is reachable.`,
	RunE: runKeysCreate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE:  runKeysList,
}

func init() {
	keysCreateCmd.Flags().StringVar(&keySubject, "subject", "", "Account address the key acts for (required)")
	keysCreateCmd.Flags().StringVar(&keyName, "name", "", "Human-readable key name (required)")
	keysCreateCmd.Flags().IntVar(&keyExpireDays, "expires-days", 0, "Days until expiry (0 = never)")
	_ = keysCreateCmd.MarkFlagRequired("subject")
	_ = keysCreateCmd.MarkFlagRequired("name")

	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysListCmd)
	rootCmd.AddCommand(keysCmd)
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() { _ = db.Close(database) }()

	if err := database.AutoMigrate(&models.APIKey{}); err != nil {
		return fmt.Errorf("migrate api keys: %w", err)
	}

	expiresIn := time.Duration(keyExpireDays) * 24 * time.Hour
	plaintext, key, err := auth.GenerateAPIKey(keySubject, keyName, expiresIn)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := database.Create(key).Error; err != nil {
		return fmt.Errorf("store key: %w", err)
	}

	fmt.Printf("key id:  %s\n", key.ID)
	fmt.Printf("subject: %s\n", key.Subject)
	fmt.Printf("api key: %s\n", plaintext)
	fmt.Println("\nStore the api key now; it cannot be recovered later.")
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() { _ = db.Close(database) }()

	keys, err := auth.ListAPIKeys(database)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	for _, k := range keys {
		status := "active"
		if k.Revoked {
			status = "revoked"
		} else if k.IsExpired() {
			status = "expired"
		}
		fmt.Printf("%s  %-8s  %-24s  %s\n", k.ID, status, k.Name, k.Subject)
	}
	return nil
}
