package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/lesson-scheduler/internal/persistence"
)

// CreatePaymentLink records a payment against one occurrence key.
func (s *Store) CreatePaymentLink(ctx context.Context, link persistence.PaymentLink) error {
	if link.SeriesID == "" || link.Date == "" || link.PaymentID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := s.pool.DB().ExecContext(ctx,
		`INSERT INTO payment_links (series_id, date, payment_id, amount_cents, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		link.SeriesID,
		link.Date,
		link.PaymentID,
		link.AmountCents,
		formatTime(time.Now().UTC()),
	)
	return mapError(err)
}

// PaidExists reports whether any payment link exists for the occurrence key.
func (s *Store) PaidExists(ctx context.Context, seriesID, date string) (bool, error) {
	var count int
	err := s.pool.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payment_links WHERE series_id = ? AND date = ?",
		seriesID, date,
	).Scan(&count)
	if err != nil {
		return false, mapError(err)
	}
	return count > 0, nil
}

// ListPaymentLinks returns all payment links for the given series.
func (s *Store) ListPaymentLinks(ctx context.Context, seriesIDs []string) ([]persistence.PaymentLink, error) {
	if len(seriesIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT series_id, date, payment_id, amount_cents, created_at
		 FROM payment_links
		 WHERE series_id IN (%s)
		 ORDER BY series_id ASC, date ASC, payment_id ASC`,
		placeholders(len(seriesIDs)),
	)

	rows, err := s.pool.DB().QueryContext(ctx, query, stringArgs(seriesIDs)...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []persistence.PaymentLink
	for rows.Next() {
		var link persistence.PaymentLink
		var createdAtStr string

		if err := rows.Scan(&link.SeriesID, &link.Date, &link.PaymentID, &link.AmountCents, &createdAtStr); err != nil {
			return nil, mapError(err)
		}
		if link.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		result = append(result, link)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func movePaymentLinksTx(tx *sql.Tx, seriesID, date, newSeriesID, newDate string) error {
	_, err := tx.Exec(
		"UPDATE payment_links SET series_id = ?, date = ? WHERE series_id = ? AND date = ?",
		newSeriesID, newDate, seriesID, date,
	)
	return mapError(err)
}
