package model

import (
	"slices"
	"strings"
	"time"
)

// Identity is the opaque subject of an authenticated session
type Identity string

// Role is the capability class attached to an identity. The zero value means unset.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDonor        Role = "donor"
	RoleVolunteer    Role = "volunteer"
	RoleOrganization Role = "organization"
)

// Roles lists every defined role
var Roles = []Role{RoleAdmin, RoleDonor, RoleVolunteer, RoleOrganization}

// SelectableRoles are the roles a user may pick for themselves
var SelectableRoles = []Role{RoleDonor, RoleVolunteer, RoleOrganization}

// IsValid reports whether r is one of the defined roles
func (r Role) IsValid() bool {
	return slices.Contains(Roles, r)
}

// ParseRole normalises s and reports whether it names a defined role.
// Unknown values come back as the unset role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", false
	}
	return r, true
}

// BloodGroups are the accepted ABO/Rh groups
var BloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// IsBloodGroup reports whether s is an accepted blood group
func IsBloodGroup(s string) bool {
	return slices.Contains(BloodGroups, strings.ToUpper(strings.TrimSpace(s)))
}

// Alert is an emergency blood request
type Alert struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	AuthorID   Identity  `json:"authorId"`
	AuthorRole string    `json:"authorRole"`
	BloodType  string    `json:"bloodType"`
	Location   string    `json:"location"`
	Message    string    `json:"message"`
}

// DeletableBy reports whether identity may delete the alert
func (a Alert) DeletableBy(identity Identity) bool {
	return identity != "" && a.AuthorID == identity
}

// AlertFields are the user-supplied parts of a new alert
type AlertFields struct {
	BloodType string
	Location  string
	Message   string
}

// Missing returns the names of empty fields, in display order
func (f AlertFields) Missing() []string {
	var missing []string
	if strings.TrimSpace(f.BloodType) == "" {
		missing = append(missing, "blood type")
	}
	if strings.TrimSpace(f.Location) == "" {
		missing = append(missing, "location")
	}
	if strings.TrimSpace(f.Message) == "" {
		missing = append(missing, "message")
	}
	return missing
}

// Trimmed returns a copy with surrounding whitespace removed
func (f AlertFields) Trimmed() AlertFields {
	return AlertFields{
		BloodType: strings.TrimSpace(f.BloodType),
		Location:  strings.TrimSpace(f.Location),
		Message:   strings.TrimSpace(f.Message),
	}
}

// DonationCamp is a scheduled donation event owned by one organization
type DonationCamp struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Location       string    `json:"location"`
	Date           time.Time `json:"date"`
	OrganizationID Identity  `json:"organizationId"`
}

// CampFields are the editable parts of a camp. Nil fields are left unchanged on edit.
type CampFields struct {
	Name     *string
	Location *string
	Date     *time.Time
}

// Empty reports whether no field is set
func (f CampFields) Empty() bool {
	return f.Name == nil && f.Location == nil && f.Date == nil
}

// Donation is one recorded donation by a donor
type Donation struct {
	ID           string    `json:"id"`
	DonorID      Identity  `json:"donorId"`
	CampID       string    `json:"campId,omitempty"`
	CampName     string    `json:"campName,omitempty"`
	DonationDate time.Time `json:"donationDate"`
	UnitsDonated int       `json:"unitsDonated"`
	Notes        string    `json:"notes,omitempty"`
}

// Profile is the role-independent account view plus the role-specific field
type Profile struct {
	ID       Identity `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"fullName"`
	Role     Role     `json:"role"`

	BloodGroup       string   `json:"bloodGroup,omitempty"`       // donor
	VolunteerID      Identity `json:"volunteerId,omitempty"`      // donor
	OrganizationID   Identity `json:"organizationId,omitempty"`   // volunteer
	OrganizationName string   `json:"organizationName,omitempty"` // volunteer (their organization) or organization (itself)
}

// ProfileUpdate is what a user submits on the profile screen
type ProfileUpdate struct {
	ID               Identity
	FullName         string
	Role             Role
	BloodGroup       string
	OrganizationID   Identity
	OrganizationName string
}

// Person is a display reference to another account
type Person struct {
	ID       Identity `json:"id"`
	FullName string   `json:"fullName"`
}

// DonorSummary is a donor as listed to volunteers
type DonorSummary struct {
	ID            Identity `json:"id"`
	FullName      string   `json:"fullName"`
	BloodGroup    string   `json:"bloodGroup"`
	Email         string   `json:"email,omitempty"`
	VolunteerID   Identity `json:"volunteerId,omitempty"`
	VolunteerName string   `json:"volunteerName,omitempty"`
}

// Organization is a registered organization
type Organization struct {
	ID   Identity `json:"id"`
	Name string   `json:"name"`
}

// Account is a sign-in record. PasswordHash is empty for accounts created through an external provider.
type Account struct {
	ID           Identity
	Email        string
	PasswordHash string
	Provider     string
	CreatedAt    time.Time
}

// CampFilter narrows a camp listing. Zero values mean no restriction.
type CampFilter struct {
	OrganizationID Identity
	From           time.Time // inclusive, compared by date
}

// DonorFilter narrows a donor listing. Zero values mean no restriction.
type DonorFilter struct {
	VolunteerID Identity
	BloodGroup  string
}
