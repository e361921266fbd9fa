package events

import (
	"context"
	"errors"
	"testing"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func TestProcessedStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProcessedStoreWithExec(mock)
	ctx := context.Background()

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("stripe", "evt").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	processed, err := store.AlreadyProcessed(ctx, "stripe", "evt")
	if err != nil || !processed {
		t.Fatalf("expected existing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("stripe", "evt-miss").WillReturnError(pgx.ErrNoRows)
	processed, err = store.AlreadyProcessed(ctx, "stripe", "evt-miss")
	if err != nil || processed {
		t.Fatalf("expected missing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("stripe", "evt-new").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := store.Claim(ctx, "stripe", "evt-new")
	if err != nil || !ok {
		t.Fatalf("expected claim success, got %v %v", ok, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("stripe", "evt-new").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	ok, err = store.Claim(ctx, "stripe", "evt-new")
	if err != nil || ok {
		t.Fatalf("expected duplicate claim to be rejected, got %v %v", ok, err)
	}

	mock.ExpectExec("DELETE FROM processed_events").WithArgs("stripe", "evt-new").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := store.Release(ctx, "stripe", "evt-new"); err != nil {
		t.Fatalf("release: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProcessedStoreClaimError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProcessedStoreWithExec(mock)
	mock.ExpectExec("INSERT INTO processed_events").WithArgs("stripe", "evt").WillReturnError(errors.New("boom"))
	if _, err := store.Claim(context.Background(), "stripe", "evt"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMemoryProcessedStore(t *testing.T) {
	store := NewMemoryProcessedStore()
	ctx := context.Background()

	first, _ := store.Claim(ctx, "stripe", "evt-1")
	second, _ := store.Claim(ctx, "stripe", "evt-1")
	if !first || second {
		t.Fatalf("expected only first claim to win, got %v %v", first, second)
	}
	if seen, _ := store.AlreadyProcessed(ctx, "stripe", "evt-1"); !seen {
		t.Fatalf("expected event to be processed")
	}
	other, _ := store.Claim(ctx, "fake", "evt-1")
	if !other {
		t.Fatalf("providers must be independent")
	}

	_ = store.Release(ctx, "stripe", "evt-1")
	again, _ := store.Claim(ctx, "stripe", "evt-1")
	if !again {
		t.Fatalf("expected claim after release to win")
	}
}
