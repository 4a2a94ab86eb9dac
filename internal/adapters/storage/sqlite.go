package storage

// sqlite.go — almacenamiento de trades clasificados y del journal de swaps.
//
// Estrategia:
//   - `trades`: UNA fila por trade (tx hash con logIndex + pool). Re-sincronizar
//     el mismo rango no duplica: ON CONFLICT DO NOTHING y se cuentan solo los nuevos.
//   - `executions`: una fila por intento de swap, UPSERT por id a medida que
//     el intento avanza (RUNNING → COMPLETED / FAILED / ...).
//   - Timestamps como enteros unix para ordenar y filtrar sin parseo.
//   - Prune automático al arrancar: trades > 90d.

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id             TEXT PRIMARY KEY,
    pool           TEXT    NOT NULL,
    tx_hash        TEXT    NOT NULL,
    block_number   INTEGER NOT NULL DEFAULT 0,
    user_address   TEXT,
    token_in       TEXT    NOT NULL,
    symbol_in      TEXT,
    amount_in      TEXT    NOT NULL,
    token_out      TEXT    NOT NULL,
    symbol_out     TEXT,
    amount_out     TEXT    NOT NULL,
    outcome_side   TEXT    NOT NULL,
    operation_side TEXT    NOT NULL,
    price          TEXT    NOT NULL,
    ts             INTEGER NOT NULL,
    link           TEXT
);

CREATE TABLE IF NOT EXISTS executions (
    id          TEXT PRIMARY KEY,
    token_in    TEXT    NOT NULL,
    token_out   TEXT    NOT NULL,
    amount      TEXT    NOT NULL,
    strategy    TEXT    NOT NULL,
    auto_split  INTEGER NOT NULL DEFAULT 0,
    status      TEXT    NOT NULL,
    failed_step INTEGER NOT NULL DEFAULT -1,
    failed_sub  INTEGER NOT NULL DEFAULT 0,
    error       TEXT,
    tx_hash     TEXT,
    started_at  INTEGER NOT NULL,
    finished_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_trades_ts      ON trades(ts);
CREATE INDEX IF NOT EXISTS idx_trades_pool_ts ON trades(pool, ts DESC);
CREATE INDEX IF NOT EXISTS idx_exec_started   ON executions(started_at DESC);
`

const retentionTrades = 90 * 24 * time.Hour

// SQLiteStorage implementa ports.TradeStorage y ports.ExecutionStorage usando
// SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveTrades inserta los trades que aún no existen y devuelve cuántos eran nuevos.
func (s *SQLiteStorage) SaveTrades(ctx context.Context, trades []domain.ClassifiedTrade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.SaveTrades: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades
			(id, pool, tx_hash, block_number, user_address,
			 token_in, symbol_in, amount_in, token_out, symbol_out, amount_out,
			 outcome_side, operation_side, price, ts, link)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("storage.SaveTrades: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range trades {
		res, err := stmt.ExecContext(ctx,
			t.ID,
			domain.NormalizeAddress(t.PoolAddress),
			t.TxHash,
			int64(t.BlockNumber),
			t.UserAddress,
			t.TokenIn.Address,
			t.TokenIn.Symbol,
			t.TokenIn.Amount.String(),
			t.TokenOut.Address,
			t.TokenOut.Symbol,
			t.TokenOut.Amount.String(),
			string(t.OutcomeSide),
			string(t.OperationSide),
			t.Price.String(),
			t.Timestamp.Unix(),
			t.TransactionLink,
		)
		if err != nil {
			return 0, fmt.Errorf("storage.SaveTrades: insert %s: %w", t.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.SaveTrades: commit: %w", err)
	}
	return inserted, nil
}

// GetTrades devuelve los trades con timestamp en [from, to], más antiguos primero.
func (s *SQLiteStorage) GetTrades(ctx context.Context, from, to time.Time) ([]domain.ClassifiedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pool, tx_hash, block_number, user_address,
		       token_in, symbol_in, amount_in, token_out, symbol_out, amount_out,
		       outcome_side, operation_side, price, ts, link
		FROM trades
		WHERE ts BETWEEN ? AND ?
		ORDER BY ts ASC, id ASC
	`, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("storage.GetTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.ClassifiedTrade
	for rows.Next() {
		var (
			t                         domain.ClassifiedTrade
			block, ts                 int64
			user, symIn, symOut, link sql.NullString
			amtIn, amtOut, price      string
			outcome, operation        string
		)
		if err := rows.Scan(
			&t.ID, &t.PoolAddress, &t.TxHash, &block, &user,
			&t.TokenIn.Address, &symIn, &amtIn,
			&t.TokenOut.Address, &symOut, &amtOut,
			&outcome, &operation, &price, &ts, &link,
		); err != nil {
			return nil, fmt.Errorf("storage.GetTrades: scan row: %w", err)
		}

		t.BlockNumber = uint64(block)
		t.UserAddress = user.String
		t.TokenIn.Symbol = symIn.String
		t.TokenOut.Symbol = symOut.String
		t.TokenIn.Amount = parseDecimal(amtIn)
		t.TokenOut.Amount = parseDecimal(amtOut)
		t.Price = parseDecimal(price)
		t.OutcomeSide = domain.OutcomeSide(outcome)
		t.OperationSide = domain.OperationSide(operation)
		t.Timestamp = time.Unix(ts, 0).UTC()
		t.TransactionLink = link.String
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// LastTradeTime devuelve el timestamp del trade más reciente del pool (zero si no hay).
func (s *SQLiteStorage) LastTradeTime(ctx context.Context, pool string) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM trades WHERE pool = ?`, domain.NormalizeAddress(pool),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage.LastTradeTime: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

// SaveExecution hace upsert del registro del intento.
func (s *SQLiteStorage) SaveExecution(ctx context.Context, rec domain.ExecutionRecord) error {
	var finished *int64
	if rec.FinishedAt != nil {
		ms := rec.FinishedAt.UnixMilli()
		finished = &ms
	}
	autoSplit := 0
	if rec.AutoSplit {
		autoSplit = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions
			(id, token_in, token_out, amount, strategy, auto_split, status,
			 failed_step, failed_sub, error, tx_hash, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status      = excluded.status,
			failed_step = excluded.failed_step,
			failed_sub  = excluded.failed_sub,
			error       = excluded.error,
			tx_hash     = COALESCE(NULLIF(excluded.tx_hash, ''), executions.tx_hash),
			finished_at = excluded.finished_at
	`,
		rec.ID, rec.TokenIn, rec.TokenOut, rec.Amount.String(), rec.Strategy, autoSplit,
		string(rec.Status), rec.FailedStep, rec.FailedSub, rec.Error, rec.TxHash,
		rec.StartedAt.UnixMilli(), finished,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveExecution: upsert %s: %w", rec.ID, err)
	}
	return nil
}

// GetExecutions devuelve los últimos intentos, más recientes primero.
func (s *SQLiteStorage) GetExecutions(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, token_in, token_out, amount, strategy, auto_split, status,
		       failed_step, failed_sub, error, tx_hash, started_at, finished_at
		FROM executions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetExecutions: query: %w", err)
	}
	defer rows.Close()

	var recs []domain.ExecutionRecord
	for rows.Next() {
		var (
			rec        domain.ExecutionRecord
			amount     string
			status     string
			autoSplit  int
			errMsg, tx sql.NullString
			started    int64
			finished   sql.NullInt64
		)
		if err := rows.Scan(
			&rec.ID, &rec.TokenIn, &rec.TokenOut, &amount, &rec.Strategy, &autoSplit, &status,
			&rec.FailedStep, &rec.FailedSub, &errMsg, &tx, &started, &finished,
		); err != nil {
			return nil, fmt.Errorf("storage.GetExecutions: scan row: %w", err)
		}
		rec.Amount = parseDecimal(amount)
		rec.AutoSplit = autoSplit == 1
		rec.Status = domain.ExecutionStatus(status)
		rec.Error = errMsg.String
		rec.TxHash = tx.String
		rec.StartedAt = time.UnixMilli(started).UTC()
		if finished.Valid {
			f := time.UnixMilli(finished.Int64).UTC()
			rec.FinishedAt = &f
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina trades antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionTrades).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM trades WHERE ts < ?`, cutoff)
	if err != nil {
		slog.Warn("storage: prune failed", "err", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Debug("storage: pruned old trades", "rows", n)
	}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
