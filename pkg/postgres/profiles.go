package postgres

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// GetRole returns the role on the identity's profile. A missing profile is
// ErrNotFound; a NULL or unrecognised role comes back unset.
func (d *DB) GetRole(ctx context.Context, identity model.Identity) (model.Role, error) {
	var raw *string
	err := d.pool.QueryRow(ctx, `SELECT role FROM profiles WHERE id = $1`, string(identity)).Scan(&raw)
	if err != nil {
		return "", fmt.Errorf("failed to get role: %w", classify(err))
	}
	if raw == nil {
		return "", nil
	}
	role, _ := model.ParseRole(*raw)
	return role, nil
}

// GetProfile returns the account, profile and role-specific details of identity.
// Accounts without a profile row come back with only ID and Email set.
func (d *DB) GetProfile(ctx context.Context, identity model.Identity) (model.Profile, error) {
	var (
		p                            model.Profile
		fullName, role, bloodGroup   *string
		volunteerID, organizationID  *string
		volunteerOrgName, ownOrgName *string
	)

	err := d.pool.QueryRow(ctx, `
		SELECT a.email, p.full_name, p.role,
		       dn.blood_group, dn.volunteer_id,
		       v.organization_id, vo.name,
		       o.name
		FROM accounts a
		LEFT JOIN profiles p ON p.id = a.id
		LEFT JOIN donors dn ON dn.id = a.id
		LEFT JOIN volunteers v ON v.id = a.id
		LEFT JOIN organizations vo ON vo.id = v.organization_id
		LEFT JOIN organizations o ON o.id = a.id
		WHERE a.id = $1
	`, string(identity)).Scan(
		&p.Email, &fullName, &role,
		&bloodGroup, &volunteerID,
		&organizationID, &volunteerOrgName,
		&ownOrgName,
	)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to get profile: %w", classify(err))
	}

	p.ID = identity
	p.FullName = deref(fullName)
	if role != nil {
		p.Role, _ = model.ParseRole(*role)
	}

	switch p.Role {
	case model.RoleDonor:
		p.BloodGroup = deref(bloodGroup)
		p.VolunteerID = model.Identity(deref(volunteerID))
	case model.RoleVolunteer:
		p.OrganizationID = model.Identity(deref(organizationID))
		p.OrganizationName = deref(volunteerOrgName)
	case model.RoleOrganization:
		p.OrganizationName = deref(ownOrgName)
	}

	return p, nil
}

// SaveProfile upserts the profile and the row for its role in one transaction
func (d *DB) SaveProfile(ctx context.Context, u model.ProfileUpdate) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO profiles (id, full_name, role, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET full_name = EXCLUDED.full_name, role = EXCLUDED.role, updated_at = NOW()
	`, string(u.ID), u.FullName, string(u.Role))
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", classify(err))
	}

	switch u.Role {
	case model.RoleDonor:
		_, err = tx.Exec(ctx, `
			INSERT INTO donors (id, blood_group) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET blood_group = EXCLUDED.blood_group
		`, string(u.ID), u.BloodGroup)
	case model.RoleVolunteer:
		_, err = tx.Exec(ctx, `
			INSERT INTO volunteers (id, organization_id) VALUES ($1, NULLIF($2, ''))
			ON CONFLICT (id) DO UPDATE SET organization_id = EXCLUDED.organization_id
		`, string(u.ID), string(u.OrganizationID))
	case model.RoleOrganization:
		_, err = tx.Exec(ctx, `
			INSERT INTO organizations (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		`, string(u.ID), u.OrganizationName)
	}
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("failed to save %s details: %w: unknown organization %s", u.Role, gateway.ErrInvalidInput, u.OrganizationID)
		}
		return fmt.Errorf("failed to save %s details: %w", u.Role, classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit profile: %w", classify(err))
	}
	return nil
}

func organizationsQuery(nameContains string) sq.SelectBuilder {
	q := psql.Select("id", "name").From("organizations").OrderBy("name", "id")
	if s := strings.TrimSpace(nameContains); s != "" {
		q = q.Where(sq.ILike{"name": "%" + escapeLike(s) + "%"})
	}
	return q
}

// SearchOrganizations lists organizations whose name contains the given text, case-insensitively
func (d *DB) SearchOrganizations(ctx context.Context, nameContains string) ([]model.Organization, error) {
	statement, args, err := organizationsQuery(nameContains).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build organizations query: %w", err)
	}

	rows, err := d.pool.Query(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query organizations: %w", classify(err))
	}
	defer rows.Close()

	var orgs []model.Organization
	for rows.Next() {
		var id string
		var o model.Organization
		if err := rows.Scan(&id, &o.Name); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		o.ID = model.Identity(id)
		orgs = append(orgs, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating organizations: %w", classify(err))
	}
	return orgs, nil
}

// GetOrganization returns one organization by id
func (d *DB) GetOrganization(ctx context.Context, id model.Identity) (model.Organization, error) {
	var o model.Organization
	err := d.pool.QueryRow(ctx, `SELECT name FROM organizations WHERE id = $1`, string(id)).Scan(&o.Name)
	if err != nil {
		return model.Organization{}, fmt.Errorf("failed to get organization: %w", classify(err))
	}
	o.ID = id
	return o, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
