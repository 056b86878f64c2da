package repo

import (
	"context"
	"testing"
	"time"

	"github.com/promptwatch/go-safety-backend/internal/domain"
)

func TestIdempotency_CreateGetAndExpiry(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "u1", "reports", "k1", "r1", 201, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || rec.ReportID != "r1" || rec.Status != 201 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "u1", "reports", "k1", time.Now().UTC())
	if err != nil || got.ReportID != "r1" {
		t.Fatalf("GetIdempotency: got=%+v err=%v", got, err)
	}

	// Expired records are invisible.
	if _, err := GetIdempotency(ctx, db, "u1", "reports", "k1", time.Now().UTC().Add(2*time.Hour)); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for expired record, got %v", err)
	}
}

func TestIdempotency_DuplicateTuple(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "reports", "k1", "r1", 201, time.Hour); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "reports", "k1", "r2", 201, time.Hour); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Different resource or key is a distinct tuple.
	if _, err := CreateIdempotency(ctx, db, "u1", "reports", "k2", "r2", 201, time.Hour); err != nil {
		t.Fatalf("distinct key: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u2", "reports", "k1", "r3", 201, time.Hour); err != nil {
		t.Fatalf("distinct user: %v", err)
	}
}

func TestGetIdempotency_BlankResourceAndMissing(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	if _, err := GetIdempotency(ctx, db, "u1", "  ", "k1", time.Now().UTC()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for blank resource, got %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", "reports", "nope", time.Now().UTC()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}
}
