package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-trades-must-flow/internal/dedupe"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/service"
)

// authoritativeHash recomputes the unique hash from the row itself. A
// caller-supplied hash that disagrees is logged and replaced.
func authoritativeHash(e *model.Execution) string {
	hash := dedupe.HashExecution(e)
	if e.UniqueHash != "" && e.UniqueHash != hash {
		slog.Warn("Execution hash mismatch",
			"execution_id", e.ID,
			"line", e.LineNumber,
			"supplied", e.UniqueHash,
			"computed", hash)
	}
	return hash
}

func nullDecimal(d decimal.Decimal) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

// InsertExecutions writes executions in a single transaction. Rows whose
// (user, unique hash) already exists are skipped and counted as duplicates.
// Any other failure rolls back the whole call.
func (s *SQLiteStorage) InsertExecutions(ctx context.Context, executions []model.Execution) (service.InsertOutcome, error) {
	var outcome service.InsertOutcome
	if err := validateContext(ctx); err != nil {
		return outcome, err
	}
	if len(executions) == 0 {
		return outcome, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return outcome, fmt.Errorf("failed to begin transaction: %w", classifySQLite(err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO executions (
			id, user_id, broker_account_id, import_run_id, instrument_id, timestamp, symbol,
			side, effect, quantity, price, fees, currency, venue, order_id, exec_id,
			instrument_type, expiry, strike, option_type, multiplier, underlying,
			line_number, unique_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, unique_hash) DO NOTHING`)
	if err != nil {
		return outcome, fmt.Errorf("failed to prepare statement: %w", classifySQLite(err))
	}
	defer func() { _ = stmt.Close() }()

	created := formatTime(time.Now())
	for i := range executions {
		e := &executions[i]
		if err := validateExecution(e); err != nil {
			return service.InsertOutcome{}, fmt.Errorf("execution at line %d: %w", e.LineNumber, err)
		}

		var strike sql.NullString
		if e.Strike.Valid {
			strike = sql.NullString{String: e.Strike.Decimal.String(), Valid: true}
		}

		res, execErr := stmt.ExecContext(ctx,
			e.ID, e.UserID, nullString(e.BrokerAccountID), nullString(e.ImportRunID),
			nullString(e.InstrumentID), formatTime(e.Timestamp), e.Symbol,
			string(e.Side), string(e.Effect), e.Quantity.String(), e.Price.String(), e.Fees.String(),
			nullString(e.Currency), nullString(e.Venue), nullString(e.OrderID), nullString(e.ExecID),
			string(e.InstrumentType), nullString(e.Expiry), strike, nullString(string(e.OptionType)),
			nullDecimal(e.Multiplier), nullString(e.Underlying),
			e.LineNumber, authoritativeHash(e), created,
		)
		if execErr != nil {
			return service.InsertOutcome{}, fmt.Errorf("failed to insert execution at line %d: %w", e.LineNumber, classifySQLite(execErr))
		}

		n, execErr := res.RowsAffected()
		if execErr != nil {
			return service.InsertOutcome{}, fmt.Errorf("failed to read insert result: %w", execErr)
		}
		if n == 0 {
			outcome.Duplicates++
		} else {
			outcome.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return service.InsertOutcome{}, fmt.Errorf("failed to commit executions: %w", classifySQLite(err))
	}
	return outcome, nil
}

// CountExecutions returns how many executions a user has stored.
func (s *SQLiteStorage) CountExecutions(ctx context.Context, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM executions WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", classifySQLite(err))
	}
	return count, nil
}

// ListExecutionsByRun returns the executions a run added, in file order.
func (s *SQLiteStorage) ListExecutionsByRun(ctx context.Context, runID string) ([]model.Execution, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, broker_account_id, import_run_id, instrument_id, timestamp, symbol,
			side, effect, quantity, price, fees, currency, venue, order_id, exec_id,
			instrument_type, expiry, strike, option_type, multiplier, underlying,
			line_number, unique_hash
		FROM executions WHERE import_run_id = ? ORDER BY line_number, timestamp`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", classifySQLite(err))
	}
	defer func() { _ = rows.Close() }()

	var out []model.Execution
	for rows.Next() {
		var (
			e                                        model.Execution
			broker, run, instrument, ts              sql.NullString
			side, effect, kind                       string
			quantity, price, fees                    string
			currency, venue, orderID, execID, expiry sql.NullString
			strike, optionType, mult, underlying     sql.NullString
			line                                     sql.NullInt64
		)
		if err := rows.Scan(
			&e.ID, &e.UserID, &broker, &run, &instrument, &ts, &e.Symbol,
			&side, &effect, &quantity, &price, &fees, &currency, &venue, &orderID, &execID,
			&kind, &expiry, &strike, &optionType, &mult, &underlying,
			&line, &e.UniqueHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if e.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("stored quantity %q: %w", quantity, err)
		}
		if e.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("stored price %q: %w", price, err)
		}
		if e.Fees, err = decimal.NewFromString(fees); err != nil {
			return nil, fmt.Errorf("stored fees %q: %w", fees, err)
		}
		if strike.Valid {
			d, parseErr := decimal.NewFromString(strike.String)
			if parseErr != nil {
				return nil, fmt.Errorf("stored strike %q: %w", strike.String, parseErr)
			}
			e.Strike = decimal.NewNullDecimal(d)
		}
		if mult.Valid {
			if e.Multiplier, err = decimal.NewFromString(mult.String); err != nil {
				return nil, fmt.Errorf("stored multiplier %q: %w", mult.String, err)
			}
		}

		e.BrokerAccountID = broker.String
		e.ImportRunID = run.String
		e.InstrumentID = instrument.String
		e.Side = model.Side(side)
		e.Effect = model.Effect(effect)
		e.InstrumentType = model.InstrumentType(kind)
		e.Currency = currency.String
		e.Venue = venue.String
		e.OrderID = orderID.String
		e.ExecID = execID.String
		e.Expiry = expiry.String
		e.OptionType = model.OptionType(optionType.String)
		e.Underlying = underlying.String
		e.LineNumber = int(line.Int64)
		out = append(out, e)
	}
	return out, rows.Err()
}
