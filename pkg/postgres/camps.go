package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

const campColumns = "id, name, location, date, organization_id"

func campsQuery(f model.CampFilter) sq.SelectBuilder {
	q := psql.Select(campColumns).From("donation_camps").OrderBy("date", "name", "id")
	if f.OrganizationID != "" {
		q = q.Where(sq.Eq{"organization_id": string(f.OrganizationID)})
	}
	if !f.From.IsZero() {
		q = q.Where(sq.GtOrEq{"date": dateOnly(f.From)})
	}
	return q
}

// ListCamps returns camps matching f, earliest first
func (d *DB) ListCamps(ctx context.Context, f model.CampFilter) ([]model.DonationCamp, error) {
	statement, args, err := campsQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build camps query: %w", err)
	}

	rows, err := d.pool.Query(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query camps: %w", classify(err))
	}
	defer rows.Close()

	var camps []model.DonationCamp
	for rows.Next() {
		c, err := scanCamp(rows)
		if err != nil {
			return nil, err
		}
		camps = append(camps, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating camps: %w", classify(err))
	}
	return camps, nil
}

// GetCamp returns one camp by id
func (d *DB) GetCamp(ctx context.Context, id string) (model.DonationCamp, error) {
	c, err := scanCamp(d.pool.QueryRow(ctx, `SELECT `+campColumns+` FROM donation_camps WHERE id = $1`, id))
	if err != nil {
		return model.DonationCamp{}, fmt.Errorf("failed to get camp %s: %w", id, err)
	}
	return c, nil
}

// InsertCamps inserts camps in a single transaction
func (d *DB) InsertCamps(ctx context.Context, camps []model.DonationCamp) error {
	if len(camps) == 0 {
		return nil
	}

	insert := psql.Insert("donation_camps").Columns("id", "name", "location", "date", "organization_id")
	for _, c := range camps {
		insert = insert.Values(c.ID, c.Name, c.Location, dateOnly(c.Date), string(c.OrganizationID))
	}
	statement, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build camp insert: %w", err)
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, statement, args...); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("failed to insert camps: %w: organization %s is not registered", gateway.ErrPermissionDenied, camps[0].OrganizationID)
		}
		return fmt.Errorf("failed to insert camps: %w", classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit camps: %w", classify(err))
	}
	return nil
}

func campUpdate(id string, owner model.Identity, f model.CampFields) (sq.UpdateBuilder, error) {
	if f.Empty() {
		return sq.UpdateBuilder{}, fmt.Errorf("%w: nothing to update", gateway.ErrInvalidInput)
	}

	u := psql.Update("donation_camps").
		Where(sq.Eq{"id": id, "organization_id": string(owner)}).
		Suffix("RETURNING " + campColumns)
	if f.Name != nil {
		u = u.Set("name", *f.Name)
	}
	if f.Location != nil {
		u = u.Set("location", *f.Location)
	}
	if f.Date != nil {
		u = u.Set("date", dateOnly(*f.Date))
	}
	return u, nil
}

// UpdateCamp applies the set fields to a camp owned by owner
func (d *DB) UpdateCamp(ctx context.Context, id string, owner model.Identity, f model.CampFields) (model.DonationCamp, error) {
	u, err := campUpdate(id, owner, f)
	if err != nil {
		return model.DonationCamp{}, err
	}
	statement, args, err := u.ToSql()
	if err != nil {
		return model.DonationCamp{}, fmt.Errorf("failed to build camp update: %w", err)
	}

	c, err := scanCamp(d.pool.QueryRow(ctx, statement, args...))
	if err != nil {
		return model.DonationCamp{}, fmt.Errorf("failed to update camp %s: %w", id, err)
	}
	return c, nil
}

// DeleteCamp removes a camp owned by owner
func (d *DB) DeleteCamp(ctx context.Context, id string, owner model.Identity) error {
	tag, err := d.pool.Exec(ctx, `
		DELETE FROM donation_camps WHERE id = $1 AND organization_id = $2
	`, id, string(owner))
	if err != nil {
		return fmt.Errorf("failed to delete camp %s: %w", id, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to delete camp %s: %w", id, gateway.ErrNotFound)
	}
	return nil
}

func scanCamp(row pgx.Row) (model.DonationCamp, error) {
	var c model.DonationCamp
	var org string
	if err := row.Scan(&c.ID, &c.Name, &c.Location, &c.Date, &org); err != nil {
		return model.DonationCamp{}, classify(err)
	}
	c.OrganizationID = model.Identity(org)
	return c, nil
}

// dateOnly truncates t to its calendar date in UTC
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
