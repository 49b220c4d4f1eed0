package model

// Destination is where a visitor should be sent on entering a protected area
type Destination string

const (
	DestinationLogin                 Destination = "login"
	DestinationProfileCompletion     Destination = "profile-completion"
	DestinationAdminDashboard        Destination = "admin-dashboard"
	DestinationDonorDashboard        Destination = "donor-dashboard"
	DestinationVolunteerDashboard    Destination = "volunteer-dashboard"
	DestinationOrganizationDashboard Destination = "organization-dashboard"
)

var dashboards = map[Role]Destination{
	RoleAdmin:        DestinationAdminDashboard,
	RoleDonor:        DestinationDonorDashboard,
	RoleVolunteer:    DestinationVolunteerDashboard,
	RoleOrganization: DestinationOrganizationDashboard,
}

var paths = map[Destination]string{
	DestinationLogin:                 "/",
	DestinationProfileCompletion:     "/profile",
	DestinationAdminDashboard:        "/admin-dashboard",
	DestinationDonorDashboard:        "/donor-profile",
	DestinationVolunteerDashboard:    "/volunteer-tools",
	DestinationOrganizationDashboard: "/organization-panel",
}

// DashboardFor maps a role to its dashboard. ok is false for unset or unknown roles.
func DashboardFor(r Role) (Destination, bool) {
	d, ok := dashboards[r]
	return d, ok
}

// Path returns the URL path of the destination
func (d Destination) Path() string {
	return paths[d]
}

// IsDashboard reports whether d is one of the role dashboards
func (d Destination) IsDashboard() bool {
	for _, dash := range dashboards {
		if dash == d {
			return true
		}
	}
	return false
}
