package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"triarb/internal/models"
)

// ============================================================
// RunRepository Tests
// ============================================================

var runColumns = []string{"id", "pairs", "prices", "amount", "status", "final_amount", "error_message", "started_at", "finished_at"}

var legColumns = []string{"id", "run_id", "leg", "symbol", "side", "order_id", "quantity", "price", "filled_qty", "status", "created_at"}

func newTestRun(now time.Time) *models.RunRecord {
	return &models.RunRecord{
		ID:          "run-1",
		Pairs:       []string{"ETHUSDT", "ETHBTC", "BTCUSDT"},
		Prices:      []float64{3000, 0.05, 60000},
		Amount:      1000,
		Status:      models.RunStatusCompleted,
		FinalAmount: 999.6,
		StartedAt:   now.Add(-time.Second),
		FinishedAt:  now,
		Legs: []models.LegRecord{
			{Leg: 1, Symbol: "ETHUSDT", Side: "BUY", OrderID: "1", Quantity: 0.3333, Price: 3000, FilledQty: 0.3333, Status: "FILLED", CreatedAt: now},
			{Leg: 2, Symbol: "ETHBTC", Side: "SELL", OrderID: "2", Quantity: 0.3333, Price: 0.05, FilledQty: 0.3333, Status: "FILLED", CreatedAt: now},
		},
	}
}

func TestNewRunRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewRunRepository(db)
	if repo == nil {
		t.Fatal("NewRunRepository returned nil")
	}
	if repo.db != db {
		t.Error("db not set correctly")
	}
}

func TestRunRepositoryMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := NewRunRepository(db).Migrate(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRunRepositorySaveRun(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock, run *models.RunRecord)
		expectError bool
	}{
		{
			name: "success",
			mockSetup: func(mock sqlmock.Sqlmock, run *models.RunRecord) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO runs`).
					WithArgs("run-1", pq.Array(run.Pairs), pq.Array(run.Prices), 1000.0, "COMPLETED", 999.6, "", run.StartedAt, run.FinishedAt).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`DELETE FROM run_legs WHERE run_id = \$1`).
					WithArgs("run-1").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`INSERT INTO run_legs`).
					WithArgs("run-1", 1, "ETHUSDT", "BUY", "1", 0.3333, 3000.0, 0.3333, "FILLED", now).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
				mock.ExpectQuery(`INSERT INTO run_legs`).
					WithArgs("run-1", 2, "ETHBTC", "SELL", "2", 0.3333, 0.05, 0.3333, "FILLED", now).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
				mock.ExpectCommit()
			},
			expectError: false,
		},
		{
			name: "run insert fails",
			mockSetup: func(mock sqlmock.Sqlmock, run *models.RunRecord) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO runs`).WillReturnError(errors.New("database error"))
				mock.ExpectRollback()
			},
			expectError: true,
		},
		{
			name: "leg insert fails",
			mockSetup: func(mock sqlmock.Sqlmock, run *models.RunRecord) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO runs`).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`DELETE FROM run_legs`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`INSERT INTO run_legs`).WillReturnError(errors.New("constraint violation"))
				mock.ExpectRollback()
			},
			expectError: true,
		},
		{
			name: "begin fails",
			mockSetup: func(mock sqlmock.Sqlmock, run *models.RunRecord) {
				mock.ExpectBegin().WillReturnError(errors.New("connection refused"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			run := newTestRun(now)
			tt.mockSetup(mock, run)

			repo := NewRunRepository(db)
			err = repo.SaveRun(context.Background(), run)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if run.Legs[0].ID != 10 || run.Legs[1].ID != 11 {
					t.Errorf("leg IDs = %d/%d, want 10/11", run.Legs[0].ID, run.Legs[1].ID)
				}
				if run.Legs[1].RunID != "run-1" {
					t.Errorf("leg RunID = %q", run.Legs[1].RunID)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestRunRepositoryGetByID(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		id          string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "success",
			id:   "run-1",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(runColumns).
					AddRow("run-1", "{ETHUSDT,ETHBTC,BTCUSDT}", "{3000,0.05,60000}", 1000.0, "ABORTED_PARTIAL", 0.0, "leg 3 not filled", now, now)
				mock.ExpectQuery(`SELECT .+ FROM runs WHERE id = \$1`).
					WithArgs("run-1").
					WillReturnRows(rows)

				legs := sqlmock.NewRows(legColumns).
					AddRow(1, "run-1", 1, "ETHUSDT", "BUY", "1", 0.3333, 3000.0, 0.3333, "FILLED", now).
					AddRow(2, "run-1", 2, "ETHBTC", "SELL", "2", 0.3333, 0.05, 0.3333, "FILLED", now).
					AddRow(3, "run-1", 3, "BTCUSDT", "SELL", "3", 0.01666, 60000.0, 0.0, "EXPIRED", now)
				mock.ExpectQuery(`SELECT .+ FROM run_legs WHERE run_id = \$1`).
					WithArgs("run-1").
					WillReturnRows(legs)
			},
			expectError: nil,
		},
		{
			name: "not found",
			id:   "missing",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM runs WHERE id = \$1`).
					WithArgs("missing").
					WillReturnError(sql.ErrNoRows)
			},
			expectError: ErrRunNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewRunRepository(db)
			result, err := repo.GetByID(context.Background(), tt.id)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected error %v, got %v", tt.expectError, err)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if result.Status != models.RunStatusAbortedPartial {
					t.Errorf("expected status ABORTED_PARTIAL, got %s", result.Status)
				}
				if len(result.Pairs) != 3 || result.Pairs[1] != "ETHBTC" {
					t.Errorf("pairs = %v", result.Pairs)
				}
				if len(result.Prices) != 3 || result.Prices[1] != 0.05 {
					t.Errorf("prices = %v", result.Prices)
				}
				if len(result.Legs) != 3 || result.Legs[2].Status != "EXPIRED" {
					t.Errorf("legs = %+v", result.Legs)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestRunRepositoryGetRecent(t *testing.T) {
	now := time.Now()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(runColumns).
		AddRow("run-2", "{ETHUSDT,ETHBTC,BTCUSDT}", "{3000,0.05,60000}", 500.0, "COMPLETED", 499.8, "", now, now).
		AddRow("run-1", "{ETHUSDT,ETHBTC,BTCUSDT}", "{3000,0.05,60000}", 1000.0, "ABORTED", 0.0, "canceled", now.Add(-time.Hour), now.Add(-time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM runs ORDER BY started_at DESC LIMIT \$1`).
		WithArgs(DefaultRecentLimit).
		WillReturnRows(rows)

	repo := NewRunRepository(db)
	result, err := repo.GetRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(result))
	}
	if result[0].ID != "run-2" || result[1].Status != models.RunStatusAborted {
		t.Errorf("unexpected order or status: %s/%s", result[0].ID, result[1].Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRunRepositoryGetRecentQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM runs`).
		WithArgs(5).
		WillReturnError(errors.New("database error"))

	if _, err := NewRunRepository(db).GetRecent(context.Background(), 5); err == nil {
		t.Error("expected error, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
