package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"vaxsched/internal/domain"
	"vaxsched/internal/store"
	"vaxsched/internal/store/bunstore"
)

func openIntegrationDB(t *testing.T) *bun.DB {
	t.Helper()

	databaseURL := strings.TrimSpace(os.Getenv("VAXSCHED_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("VAXSCHED_TEST_DATABASE_URL not set")
	}

	db, err := Open(databaseURL, PoolConfig{MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "vaxsched_test_" + randomHex(t, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	// Every pooled connection must resolve tables in the test schema.
	db.SetMaxOpenConns(1)
	if _, err := db.NewRaw("SET search_path TO " + schema).Exec(ctx); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if err := bunstore.Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	return db
}

func TestPostgresIntegration_LedgerConstraintsAndDates(t *testing.T) {
	db := openIntegrationDB(t)
	ledger := bunstore.NewLedgerRepo(db)
	date := domain.NewDate(2024, time.January, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := ledger.InTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		if _, err := tx.CreateVaccine(ctx, "Pfizer", 1); err != nil {
			return err
		}
		if err := tx.PublishAvailability(ctx, "alice", date); err != nil {
			return err
		}
		picked, err := tx.PickAvailableCaregiver(ctx, date)
		if err != nil {
			return err
		}
		if picked != "alice" {
			return fmt.Errorf("picked = %q, want alice", picked)
		}
		if _, err := tx.CreateAppointment(ctx, domain.Appointment{
			ID: 1, VaccineName: "Pfizer", PatientUsername: "pat", CaregiverUsername: "alice", Date: date,
		}); err != nil {
			return err
		}
		got, err := tx.GetAppointment(ctx, 1)
		if err != nil {
			return err
		}
		if got.Date != date {
			return fmt.Errorf("date = %s, want %s", got.Date, date)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx error: %v", err)
	}

	err = ledger.InTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		return tx.PublishAvailability(ctx, "alice", date)
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate publish err = %v, want %v", err, store.ErrConflict)
	}

	err = ledger.InTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		if err := tx.DecreaseDoses(ctx, "Pfizer", 1); err != nil {
			return err
		}
		return tx.DecreaseDoses(ctx, "Pfizer", 1)
	})
	if !errors.Is(err, store.ErrInsufficientSupply) {
		t.Fatalf("decrease err = %v, want %v", err, store.ErrInsufficientSupply)
	}
}

func TestPostgresIntegration_AdvisoryLockSerializesIDs(t *testing.T) {
	db := openIntegrationDB(t)
	ledger := bunstore.NewLedgerRepo(db)
	date := domain.NewDate(2024, time.March, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool, workers)
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := ledger.InTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
				id, err := tx.NextAppointmentID(ctx)
				if err != nil {
					return err
				}
				_, err = tx.CreateAppointment(ctx, domain.Appointment{
					ID: id, VaccineName: "Pfizer", PatientUsername: fmt.Sprintf("p%d", i), CaregiverUsername: "c", Date: date,
				})
				if err != nil {
					return err
				}
				mu.Lock()
				seen[id] = true
				mu.Unlock()
				return nil
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("concurrent units failed: %v", errs)
	}
	for id := int64(1); id <= workers; id++ {
		if !seen[id] {
			t.Fatalf("id %d never assigned; seen=%v", id, seen)
		}
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}
