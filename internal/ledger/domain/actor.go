package domain

type Role string

const (
	RoleAdmin           Role = "ADMIN"
	RoleSubAdmin        Role = "SUB_ADMIN"
	RoleDonationManager Role = "DONATION_MANAGER"
)

type AccountType string

const AccountTypeManagement AccountType = "MANAGEMENT"

// Actor is the authenticated caller. It is built once per session from the access
// token and passed explicitly into every capability check and ledger query.
type Actor struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	AccountType AccountType `json:"account_type"`
	Roles       []Role      `json:"roles"`
}

func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) IsManagementAccount() bool {
	return a.AccountType == AccountTypeManagement
}

func (a Actor) IsAdmin() bool {
	return a.IsManagementAccount() && (a.HasRole(RoleAdmin) || a.HasRole(RoleSubAdmin))
}
