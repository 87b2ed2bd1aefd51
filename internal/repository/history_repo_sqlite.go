package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mverdun/farewatch/internal/domain"
)

type HistoryRepository interface {
	RecordPricePoint(ctx context.Context, p domain.PricePoint) error
	RoutePriceHistory(ctx context.Context, origin, destination string, days int) ([]domain.PricePoint, error)
	PruneHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SQLiteHistoryRepository struct {
	db *sqlx.DB
}

func NewHistoryRepository(db *sqlx.DB) HistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

func (r *SQLiteHistoryRepository) RecordPricePoint(ctx context.Context, p domain.PricePoint) error {
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO price_history (origin, destination, date, price, source, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.Origin, p.Destination, p.Date, p.Price, p.Source, p.RecordedAt.UTC(),
	)
	return err
}

func (r *SQLiteHistoryRepository) RoutePriceHistory(ctx context.Context, origin, destination string, days int) ([]domain.PricePoint, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := r.db.QueryxContext(ctx, `
		SELECT origin, destination, date, price, source, recorded_at
		FROM price_history
		WHERE origin = ? AND destination = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC`, origin, destination, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.PricePoint, 0)
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Origin, &p.Destination, &p.Date, &p.Price, &p.Source, &p.RecordedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *SQLiteHistoryRepository) PruneHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM price_history WHERE recorded_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ HistoryRepository = (*SQLiteHistoryRepository)(nil)
