package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"triarb/internal/models"
)

// Ошибки репозитория запусков
var (
	ErrRunNotFound = errors.New("run not found")
)

// DefaultRecentLimit - размер выборки истории по умолчанию
const DefaultRecentLimit = 20

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	pairs         TEXT[] NOT NULL,
	prices        DOUBLE PRECISION[] NOT NULL,
	amount        DOUBLE PRECISION NOT NULL,
	status        TEXT NOT NULL,
	final_amount  DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS run_legs (
	id         BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	leg        SMALLINT NOT NULL,
	symbol     TEXT NOT NULL,
	side       TEXT NOT NULL,
	order_id   TEXT NOT NULL DEFAULT '',
	quantity   DOUBLE PRECISION NOT NULL,
	price      DOUBLE PRECISION NOT NULL,
	filled_qty DOUBLE PRECISION NOT NULL DEFAULT 0,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_legs_run_id ON run_legs (run_id);
`

// RunRepository - журнал завершённых запусков (таблицы runs и run_legs)
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository создает новый экземпляр репозитория
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Migrate создает таблицы журнала, если их еще нет
func (r *RunRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate runs: %w", err)
	}
	return nil
}

// SaveRun сохраняет запуск вместе с ногами в одной транзакции.
// Повторное сохранение того же ID перезаписывает итог и ноги.
func (r *RunRepository) SaveRun(ctx context.Context, run *models.RunRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, pairs, prices, amount, status, final_amount, error_message, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			final_amount = EXCLUDED.final_amount,
			error_message = EXCLUDED.error_message,
			finished_at = EXCLUDED.finished_at`,
		run.ID,
		pq.Array(run.Pairs),
		pq.Array(run.Prices),
		run.Amount,
		string(run.Status),
		run.FinalAmount,
		run.ErrorMessage,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_legs WHERE run_id = $1`, run.ID); err != nil {
		return fmt.Errorf("clear legs: %w", err)
	}

	for i := range run.Legs {
		leg := &run.Legs[i]
		leg.RunID = run.ID
		err := tx.QueryRowContext(ctx, `
			INSERT INTO run_legs (run_id, leg, symbol, side, order_id, quantity, price, filled_qty, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			leg.RunID,
			leg.Leg,
			leg.Symbol,
			leg.Side,
			leg.OrderID,
			leg.Quantity,
			leg.Price,
			leg.FilledQty,
			leg.Status,
			leg.CreatedAt,
		).Scan(&leg.ID)
		if err != nil {
			return fmt.Errorf("insert leg %d: %w", leg.Leg, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByID возвращает запуск с ногами
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.RunRecord, error) {
	query := `
		SELECT id, pairs, prices, amount, status, final_amount, error_message, started_at, finished_at
		FROM runs
		WHERE id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	legs, err := r.getLegs(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Legs = legs

	return run, nil
}

// GetRecent возвращает последние N запусков без ног, новые первыми
func (r *RunRepository) GetRecent(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `
		SELECT id, pairs, prices, amount, status, final_amount, error_message, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*models.RunRecord, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

func (r *RunRepository) getLegs(ctx context.Context, runID string) ([]models.LegRecord, error) {
	query := `
		SELECT id, run_id, leg, symbol, side, order_id, quantity, price, filled_qty, status, created_at
		FROM run_legs
		WHERE run_id = $1
		ORDER BY leg`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var legs []models.LegRecord
	for rows.Next() {
		var leg models.LegRecord
		err := rows.Scan(
			&leg.ID,
			&leg.RunID,
			&leg.Leg,
			&leg.Symbol,
			&leg.Side,
			&leg.OrderID,
			&leg.Quantity,
			&leg.Price,
			&leg.FilledQty,
			&leg.Status,
			&leg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return legs, nil
}

// rowScanner - общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*models.RunRecord, error) {
	run := &models.RunRecord{}
	var status string
	err := s.Scan(
		&run.ID,
		pq.Array(&run.Pairs),
		pq.Array(&run.Prices),
		&run.Amount,
		&status,
		&run.FinalAmount,
		&run.ErrorMessage,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	return run, nil
}
