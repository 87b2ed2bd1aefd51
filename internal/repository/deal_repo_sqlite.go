package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mverdun/farewatch/internal/domain"
)

type DealRepository interface {
	SaveDeals(ctx context.Context, deals []domain.Deal) ([]domain.StoredDeal, error)
	UnnotifiedSince(ctx context.Context, window time.Duration) ([]domain.StoredDeal, error)
	MarkNotified(ctx context.Context, ids []int64) error
	RecentDeals(ctx context.Context, limit int) ([]domain.StoredDeal, error)
}

type SQLiteDealRepository struct {
	db *sqlx.DB
}

func NewDealRepository(db *sqlx.DB) DealRepository {
	return &SQLiteDealRepository{db: db}
}

// SaveDeals appends each deal as a new row and returns the stored rows with
// their assigned ids. Duplicate itineraries across runs get duplicate rows;
// dedup happens at notification time via the notified flag.
func (r *SQLiteDealRepository) SaveDeals(ctx context.Context, deals []domain.Deal) ([]domain.StoredDeal, error) {
	if len(deals) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO flight_deals (
			origin, destination, departure_date, return_date,
			price, airline, source, url, found_at, notified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	stored := make([]domain.StoredDeal, 0, len(deals))
	for _, d := range deals {
		if d.FoundAt.IsZero() {
			d.FoundAt = now
		}
		res, err := stmt.ExecContext(ctx,
			d.Origin, d.Destination, d.DepartureDate, d.ReturnDate,
			d.Price, d.Airline, d.Source, d.URL, d.FoundAt.UTC(),
		)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		stored = append(stored, domain.StoredDeal{Deal: d, ID: id})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

// UnnotifiedSince returns not-yet-notified deals found within the trailing
// window, cheapest first.
func (r *SQLiteDealRepository) UnnotifiedSince(ctx context.Context, window time.Duration) ([]domain.StoredDeal, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, origin, destination, departure_date, return_date,
		       price, airline, source, url, found_at, notified
		FROM flight_deals
		WHERE notified = 0 AND found_at >= ?
		ORDER BY price ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDeals(rows)
}

// MarkNotified flips notified to 1 for the given row ids. Re-applying it to
// already-notified rows is a no-op.
func (r *SQLiteDealRepository) MarkNotified(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In("UPDATE flight_deals SET notified = 1 WHERE id IN (?)", ids)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

// RecentDeals returns the newest deals first, for the dashboard listing.
func (r *SQLiteDealRepository) RecentDeals(ctx context.Context, limit int) ([]domain.StoredDeal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, origin, destination, departure_date, return_date,
		       price, airline, source, url, found_at, notified
		FROM flight_deals
		ORDER BY found_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDeals(rows)
}

func scanDeals(rows *sqlx.Rows) ([]domain.StoredDeal, error) {
	deals := make([]domain.StoredDeal, 0)
	for rows.Next() {
		var (
			d        domain.StoredDeal
			foundAt  time.Time
			notified int
		)
		if err := rows.Scan(
			&d.ID, &d.Origin, &d.Destination, &d.DepartureDate, &d.ReturnDate,
			&d.Price, &d.Airline, &d.Source, &d.URL, &foundAt, &notified,
		); err != nil {
			return nil, err
		}
		d.FoundAt = foundAt
		d.Notified = notified != 0
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

var _ DealRepository = (*SQLiteDealRepository)(nil)
