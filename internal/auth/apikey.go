/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/friendsincode/skuld/internal/models"
)

// API key constants.
const (
	APIKeyPrefix      = "sk_"
	APIKeyRandomBytes = 24
	// APIKeyPrefixLen covers "sk_" plus eight hex characters, enough to
	// narrow the bcrypt comparison to a handful of candidate rows.
	APIKeyPrefixLen = 11
)

// ErrAPIKeyNotFound is returned when an API key doesn't exist.
var ErrAPIKeyNotFound = errors.New("api key not found")

// ErrAPIKeyExpired is returned when an API key has expired.
var ErrAPIKeyExpired = errors.New("api key expired")

// ErrAPIKeyRevoked is returned when an API key has been revoked.
var ErrAPIKeyRevoked = errors.New("api key revoked")

// GenerateAPIKey creates a new API key acting for subject. Returns the
// plaintext key (shown to the operator once) and the model to store;
// only the bcrypt hash is persisted.
func GenerateAPIKey(subject, name string, expiresIn time.Duration) (string, *models.APIKey, error) {
	randomBytes := make([]byte, APIKeyRandomBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", nil, err
	}

	plaintextKey := APIKeyPrefix + hex.EncodeToString(randomBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintextKey), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}

	apiKey := &models.APIKey{
		ID:        uuid.NewString(),
		Name:      name,
		Subject:   subject,
		KeyHash:   string(hash),
		KeyPrefix: plaintextKey[:APIKeyPrefixLen],
	}
	if expiresIn > 0 {
		expiry := time.Now().Add(expiresIn)
		apiKey.ExpiresAt = &expiry
	}

	return plaintextKey, apiKey, nil
}

// ValidateAPIKey validates an API key and returns claims if valid. Also
// updates the LastUsedAt timestamp.
func ValidateAPIKey(db *gorm.DB, plaintextKey string) (*Claims, error) {
	if len(plaintextKey) < APIKeyPrefixLen {
		return nil, ErrAPIKeyNotFound
	}

	// bcrypt hashes are not lookup keys; narrow by prefix, then compare.
	var candidates []models.APIKey
	err := db.Where("key_prefix = ?", plaintextKey[:APIKeyPrefixLen]).Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		key := &candidates[i]
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(plaintextKey)) != nil {
			continue
		}
		if key.Revoked {
			return nil, ErrAPIKeyRevoked
		}
		if key.IsExpired() {
			return nil, ErrAPIKeyExpired
		}

		now := time.Now()
		go db.Model(key).Update("last_used_at", now)

		return &Claims{Subject: key.Subject, Roles: []string{"operator"}}, nil
	}

	return nil, ErrAPIKeyNotFound
}

// RevokeAPIKey revokes an API key.
func RevokeAPIKey(db *gorm.DB, keyID string) error {
	result := db.Model(&models.APIKey{}).
		Where("id = ?", keyID).
		Update("revoked", true)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}

// ListAPIKeys returns all stored API keys, newest first. Hashes ride
// along but are useless without the plaintext.
func ListAPIKeys(db *gorm.DB) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := db.Order("created_at DESC").Find(&keys).Error
	return keys, err
}
