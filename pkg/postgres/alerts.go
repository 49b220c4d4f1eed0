package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

const alertColumns = "id, user_id, role, blood_type, location, message, created_at"

// AlertFilter narrows ListAlertsFiltered. Zero values mean no restriction.
type AlertFilter struct {
	BloodType string
	AuthorID  model.Identity
	Limit     uint64
}

func alertsQuery(f AlertFilter) sq.SelectBuilder {
	q := psql.Select(alertColumns).
		From("alerts").
		OrderBy("created_at DESC", "id")
	if f.BloodType != "" {
		q = q.Where(sq.Eq{"blood_type": f.BloodType})
	}
	if f.AuthorID != "" {
		q = q.Where(sq.Eq{"user_id": string(f.AuthorID)})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q
}

// ListAlerts returns every alert, newest first
func (d *DB) ListAlerts(ctx context.Context) ([]model.Alert, error) {
	return d.ListAlertsFiltered(ctx, AlertFilter{})
}

// ListAlertsFiltered returns alerts matching f, newest first
func (d *DB) ListAlertsFiltered(ctx context.Context, f AlertFilter) ([]model.Alert, error) {
	statement, args, err := alertsQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build alerts query: %w", err)
	}

	rows, err := d.pool.Query(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", classify(err))
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", classify(err))
	}

	return alerts, nil
}

// GetAlert returns one alert by id
func (d *DB) GetAlert(ctx context.Context, id string) (model.Alert, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	a, err := scanAlert(row)
	if err != nil {
		return model.Alert{}, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	return a, nil
}

// CreateAlert inserts an alert authored by author. The author's current
// profile role is recorded alongside it, or "unknown" when they have none.
func (d *DB) CreateAlert(ctx context.Context, author model.Identity, fields model.AlertFields) (model.Alert, error) {
	if author == "" {
		return model.Alert{}, gateway.ErrAuthenticationRequired
	}

	row := d.pool.QueryRow(ctx, `
		INSERT INTO alerts (id, user_id, role, blood_type, location, message)
		VALUES ($1, $2, COALESCE((SELECT role FROM profiles WHERE id = $2), 'unknown'), $3, $4, $5)
		RETURNING `+alertColumns,
		uuid.New().String(), string(author), fields.BloodType, fields.Location, fields.Message)

	a, err := scanAlert(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.Alert{}, fmt.Errorf("failed to insert alert: %w", gateway.ErrAuthenticationRequired)
		}
		return model.Alert{}, fmt.Errorf("failed to insert alert: %w", err)
	}
	return a, nil
}

// DeleteAlert removes an alert. Only its author may do so.
func (d *DB) DeleteAlert(ctx context.Context, id string, acting model.Identity) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	var author string
	err = tx.QueryRow(ctx, `SELECT user_id FROM alerts WHERE id = $1 FOR UPDATE`, id).Scan(&author)
	if err != nil {
		return fmt.Errorf("failed to load alert %s: %w", id, classify(err))
	}

	if author != string(acting) {
		return fmt.Errorf("%w: alert %s belongs to another user", gateway.ErrPermissionDenied, id)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM alerts WHERE id = $1 AND user_id = $2`, id, string(acting)); err != nil {
		return fmt.Errorf("failed to delete alert %s: %w", id, classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit alert deletion: %w", classify(err))
	}
	return nil
}

func scanAlert(row pgx.Row) (model.Alert, error) {
	var rec gateway.AlertRecord
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Role, &rec.BloodType, &rec.Location, &rec.Message, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Alert{}, gateway.ErrNotFound
		}
		return model.Alert{}, classify(err)
	}
	return rec.ToAlert()
}
