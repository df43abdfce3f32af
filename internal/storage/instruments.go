package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

// FindOrCreateInstrument returns the instrument for symbol and kind,
// creating it on first sight.
func (s *SQLiteStorage) FindOrCreateInstrument(ctx context.Context, symbol string, kind model.InstrumentType) (*model.Instrument, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if err := validateString(symbol, "symbol"); err != nil {
		return nil, err
	}
	if kind == "" {
		kind = model.InstrumentEquity
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instruments (id, symbol, type, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (symbol, type) DO NOTHING`,
		uuid.NewString(), symbol, string(kind), formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to create instrument: %w", classifySQLite(err))
	}

	inst := &model.Instrument{Symbol: symbol, Type: kind}
	var created string
	err = s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM instruments WHERE symbol = ? AND type = ?`,
		symbol, string(kind)).Scan(&inst.ID, &created)
	if err != nil {
		return nil, fmt.Errorf("failed to load instrument: %w", classifySQLite(err))
	}
	if inst.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("failed to parse instrument time: %w", err)
	}
	return inst, nil
}
