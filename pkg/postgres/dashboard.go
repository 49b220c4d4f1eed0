package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// ListDonations returns a donor's donations, newest first, with camp names
func (d *DB) ListDonations(ctx context.Context, donor model.Identity) ([]model.Donation, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT dn.id, dn.donor_id, COALESCE(dn.camp_id, ''), COALESCE(c.name, ''),
		       dn.donation_date, dn.units_donated, dn.notes
		FROM donations dn
		LEFT JOIN donation_camps c ON c.id = dn.camp_id
		WHERE dn.donor_id = $1
		ORDER BY dn.donation_date DESC, dn.id
	`, string(donor))
	if err != nil {
		return nil, fmt.Errorf("failed to query donations: %w", classify(err))
	}
	defer rows.Close()

	var donations []model.Donation
	for rows.Next() {
		var dn model.Donation
		var donorID string
		if err := rows.Scan(&dn.ID, &donorID, &dn.CampID, &dn.CampName, &dn.DonationDate, &dn.UnitsDonated, &dn.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan donation: %w", err)
		}
		dn.DonorID = model.Identity(donorID)
		donations = append(donations, dn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating donations: %w", classify(err))
	}
	return donations, nil
}

// InsertDonation records a donation
func (d *DB) InsertDonation(ctx context.Context, dn model.Donation) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO donations (id, donor_id, camp_id, donation_date, units_donated, notes)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
	`, dn.ID, string(dn.DonorID), dn.CampID, dn.DonationDate, dn.UnitsDonated, dn.Notes)
	if err != nil {
		return fmt.Errorf("failed to insert donation: %w", classify(err))
	}
	return nil
}

func donorsQuery(f model.DonorFilter) sq.SelectBuilder {
	q := psql.Select(
		"dn.id",
		"COALESCE(p.full_name, '')",
		"dn.blood_group",
		"a.email",
		"COALESCE(dn.volunteer_id, '')",
		"COALESCE(vp.full_name, '')",
	).
		From("donors dn").
		Join("accounts a ON a.id = dn.id").
		LeftJoin("profiles p ON p.id = dn.id").
		LeftJoin("profiles vp ON vp.id = dn.volunteer_id").
		OrderBy("p.full_name", "dn.id")
	if f.VolunteerID != "" {
		q = q.Where(sq.Eq{"dn.volunteer_id": string(f.VolunteerID)})
	}
	if f.BloodGroup != "" {
		q = q.Where(sq.Eq{"dn.blood_group": f.BloodGroup})
	}
	return q
}

// ListDonors returns donors matching f with their assigned volunteer's name
func (d *DB) ListDonors(ctx context.Context, f model.DonorFilter) ([]model.DonorSummary, error) {
	statement, args, err := donorsQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build donors query: %w", err)
	}

	rows, err := d.pool.Query(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query donors: %w", classify(err))
	}
	defer rows.Close()

	var donors []model.DonorSummary
	for rows.Next() {
		var s model.DonorSummary
		var id, volunteerID string
		if err := rows.Scan(&id, &s.FullName, &s.BloodGroup, &s.Email, &volunteerID, &s.VolunteerName); err != nil {
			return nil, fmt.Errorf("failed to scan donor: %w", err)
		}
		s.ID = model.Identity(id)
		s.VolunteerID = model.Identity(volunteerID)
		donors = append(donors, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating donors: %w", classify(err))
	}
	return donors, nil
}

// ListVolunteers returns the volunteers of an organization
func (d *DB) ListVolunteers(ctx context.Context, organization model.Identity) ([]model.Person, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT v.id, COALESCE(p.full_name, '')
		FROM volunteers v
		LEFT JOIN profiles p ON p.id = v.id
		WHERE v.organization_id = $1
		ORDER BY p.full_name, v.id
	`, string(organization))
	if err != nil {
		return nil, fmt.Errorf("failed to query volunteers: %w", classify(err))
	}
	defer rows.Close()

	var volunteers []model.Person
	for rows.Next() {
		var id string
		var p model.Person
		if err := rows.Scan(&id, &p.FullName); err != nil {
			return nil, fmt.Errorf("failed to scan volunteer: %w", err)
		}
		p.ID = model.Identity(id)
		volunteers = append(volunteers, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating volunteers: %w", classify(err))
	}
	return volunteers, nil
}

// AssignVolunteer links a donor to a volunteer, or clears the link when volunteer is empty
func (d *DB) AssignVolunteer(ctx context.Context, donor, volunteer model.Identity) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE donors SET volunteer_id = NULLIF($2, '') WHERE id = $1
	`, string(donor), string(volunteer))
	if err != nil {
		return fmt.Errorf("failed to assign volunteer: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to assign volunteer: donor %s: %w", donor, gateway.ErrNotFound)
	}
	return nil
}
