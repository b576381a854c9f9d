/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
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
	if err := db.AutoMigrate(&models.WebhookTarget{}, &models.WebhookLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type capturedDelivery struct {
	body      []byte
	signature string
	eventType string
}

func TestDeliveryCarriesEventAndSignature(t *testing.T) {
	received := make(chan capturedDelivery, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- capturedDelivery{
			body:      body,
			signature: r.Header.Get("X-Skuld-Signature"),
			eventType: r.Header.Get("X-Skuld-Event"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	db := testDB(t)
	target := models.WebhookTarget{
		ID:     uuid.NewString(),
		Name:   "test",
		URL:    ts.URL,
		Secret: "hunter2",
		Active: true,
	}
	if err := db.Create(&target).Error; err != nil {
		t.Fatalf("create target: %v", err)
	}

	bus := events.NewBus()
	svc := NewService(db, bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx)
	time.Sleep(50 * time.Millisecond) // let Start register its tap

	requestID := uuid.New()
	bus.Publish(events.EventRequestExecuted, requestID, events.Payload{"gas_used": 21000})

	var got capturedDelivery
	select {
	case got = <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("no webhook delivery received")
	}

	if got.eventType != string(events.EventRequestExecuted) {
		t.Errorf("event header = %q, want %q", got.eventType, events.EventRequestExecuted)
	}

	mac := hmac.New(sha256.New, []byte("hunter2"))
	mac.Write(got.body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if got.signature != want {
		t.Errorf("signature = %q, want %q", got.signature, want)
	}

	var payload DeliveryPayload
	if err := json.Unmarshal(got.body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Event != string(events.EventRequestExecuted) {
		t.Errorf("payload event = %q", payload.Event)
	}
	if payload.RequestID != requestID.String() {
		t.Errorf("payload request id = %q, want %q", payload.RequestID, requestID)
	}

	// Delivery should be logged.
	deadline := time.Now().Add(2 * time.Second)
	for {
		var count int64
		db.Model(&models.WebhookLog{}).Where("target_id = ?", target.ID).Count(&count)
		if count == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("delivery log not written, count = %d", count)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestEventFilterSkipsUnsubscribed(t *testing.T) {
	svc := NewService(nil, events.NewBus(), zerolog.Nop())

	target := models.WebhookTarget{Events: "request.executed,request.cancelled"}
	if svc.targetHandlesEvent(target, "request.claimed") {
		t.Error("claimed should not match executed/cancelled filter")
	}
	if !svc.targetHandlesEvent(target, "request.executed") {
		t.Error("executed should match filter")
	}

	all := models.WebhookTarget{}
	if !svc.targetHandlesEvent(all, "request.claimed") {
		t.Error("empty filter should match everything")
	}
}

func TestTestTargetRejectsErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	svc := NewService(nil, events.NewBus(), zerolog.Nop())
	err := svc.TestTarget(&models.WebhookTarget{URL: ts.URL})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}
