/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/friendsincode/skuld/internal/events"
	"github.com/friendsincode/skuld/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.AuditEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestStartLogsEventsAndReleasesTapOnCancel(t *testing.T) {
	db := testDB(t)
	bus := events.NewBus()
	svc := NewService(db, bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond) // let Start register its tap

	id := uuid.New()
	bus.Publish(events.EventRequestClaimed, id, events.Payload{"collateral": uint64(1200)})

	deadline := time.Now().Add(2 * time.Second)
	for {
		var count int64
		db.Model(&models.AuditEntry{}).Where("request_id = ?", id.String()).Count(&count)
		if count == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit entry not written, count = %d", count)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	// The stopped service's tap must be gone from the bus: a later
	// publish would panic on a send to its closed channel otherwise,
	// and must not produce further entries.
	bus.Publish(events.EventRequestExecuted, uuid.New(), nil)
	time.Sleep(50 * time.Millisecond)

	var total int64
	db.Model(&models.AuditEntry{}).Count(&total)
	if total != 1 {
		t.Fatalf("audit entries after stop = %d, want 1", total)
	}
}
