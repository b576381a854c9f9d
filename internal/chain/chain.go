/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package chain abstracts the ledger-facing collaborators: the temporal
// oracle (block height or timestamp) and the dispatcher that carries out
// a scheduled call against its target.
package chain

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TemporalUnit selects how schedule points are measured.
type TemporalUnit uint8

const (
	// UnitBlockCount measures schedule points in block heights.
	UnitBlockCount TemporalUnit = 1
	// UnitTimestamp measures schedule points in unix seconds.
	UnitTimestamp TemporalUnit = 2
)

// Valid reports whether the unit is one of the two supported encodings.
func (u TemporalUnit) Valid() bool {
	return u == UnitBlockCount || u == UnitTimestamp
}

func (u TemporalUnit) String() string {
	switch u {
	case UnitBlockCount:
		return "blocks"
	case UnitTimestamp:
		return "timestamp"
	default:
		return "invalid"
	}
}

// Address identifies a party or call target on the ledger.
type Address string

// NullAddress is the zero-value target no call may be scheduled against.
const NullAddress Address = ""

// IsNull reports whether the address is the null sentinel.
func (a Address) IsNull() bool {
	return a == NullAddress
}

// Clock exposes the current schedule point in a chosen temporal unit and
// the current base gas price used for collateral sufficiency checks.
type Clock interface {
	Now(unit TemporalUnit) uint64
	GasPrice() uint64
}

// Dispatcher invokes the target of a scheduled call. Implementations must
// report the gas actually consumed and must never propagate a failure of
// the target call as an error: the outcome is data, not a fault.
type Dispatcher interface {
	Dispatch(ctx context.Context, target Address, payload []byte, value, gasLimit uint64) (ok bool, gasUsed uint64)
}

// SystemClock derives block heights from wall time against a fixed genesis
// and cadence. Gas price is a configured constant unless updated.
type SystemClock struct {
	genesis   time.Time
	blockTime time.Duration

	mu       sync.RWMutex
	gasPrice uint64
}

// NewSystemClock creates a wall-time backed clock.
func NewSystemClock(genesis time.Time, blockTime time.Duration, gasPrice uint64) *SystemClock {
	if blockTime <= 0 {
		blockTime = 12 * time.Second
	}
	return &SystemClock{genesis: genesis, blockTime: blockTime, gasPrice: gasPrice}
}

// Now returns the current height or timestamp depending on unit.
func (c *SystemClock) Now(unit TemporalUnit) uint64 {
	switch unit {
	case UnitBlockCount:
		elapsed := time.Since(c.genesis)
		if elapsed < 0 {
			return 0
		}
		return uint64(elapsed / c.blockTime)
	default:
		return uint64(time.Now().Unix())
	}
}

// GasPrice returns the current base gas price.
func (c *SystemClock) GasPrice() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gasPrice
}

// SetGasPrice updates the base gas price.
func (c *SystemClock) SetGasPrice(price uint64) {
	c.mu.Lock()
	c.gasPrice = price
	c.mu.Unlock()
}

// ManualClock is a hand-advanced clock for deterministic tests and replay.
type ManualClock struct {
	mu     sync.RWMutex
	height uint64
	stamp  uint64
	price  uint64
}

// NewManualClock creates a manual clock at the given height and timestamp.
func NewManualClock(height, stamp, gasPrice uint64) *ManualClock {
	return &ManualClock{height: height, stamp: stamp, price: gasPrice}
}

func (c *ManualClock) Now(unit TemporalUnit) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if unit == UnitBlockCount {
		return c.height
	}
	return c.stamp
}

func (c *ManualClock) GasPrice() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.price
}

// Advance moves both height and timestamp forward by delta units.
func (c *ManualClock) Advance(delta uint64) {
	c.mu.Lock()
	c.height += delta
	c.stamp += delta
	c.mu.Unlock()
}

// SetGasPrice updates the reported base gas price.
func (c *ManualClock) SetGasPrice(price uint64) {
	c.mu.Lock()
	c.price = price
	c.mu.Unlock()
}

// LocalDispatcher is the default dispatcher used when no ledger adapter is
// configured. It does not reach a real target; it accounts a deterministic
// gas figure from the payload size and logs the call for operators.
type LocalDispatcher struct {
	logger zerolog.Logger
}

// NewLocalDispatcher creates a logging dispatcher.
func NewLocalDispatcher(logger zerolog.Logger) *LocalDispatcher {
	return &LocalDispatcher{logger: logger.With().Str("component", "dispatcher").Logger()}
}

// Base and per-byte gas accounting for the local dispatcher.
const (
	localDispatchBaseGas    = 21_000
	localDispatchPerByteGas = 68
)

// Dispatch logs the call and reports success with the accounted gas. A
// payload whose accounted gas exceeds the limit is reported as a failed
// call with the full limit consumed.
func (d *LocalDispatcher) Dispatch(ctx context.Context, target Address, payload []byte, value, gasLimit uint64) (bool, uint64) {
	gasUsed := uint64(localDispatchBaseGas) + uint64(len(payload))*localDispatchPerByteGas
	ok := gasUsed <= gasLimit
	if !ok {
		gasUsed = gasLimit
	}
	d.logger.Info().
		Str("target", string(target)).
		Int("payload_bytes", len(payload)).
		Uint64("value", value).
		Uint64("gas_limit", gasLimit).
		Uint64("gas_used", gasUsed).
		Bool("ok", ok).
		Msg("dispatched scheduled call")
	return ok, gasUsed
}
