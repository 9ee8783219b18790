package operator

import "time"

// Role gates what an operator may do at the POS.
type Role string

const (
	RoleCashier Role = "cashier"
	RoleManager Role = "manager"
)

// Operator is a till user identified by username and PIN.
type Operator struct {
	ID       string
	Username string
	// PINHash is a bcrypt hash; the raw PIN is never stored.
	PINHash   string
	Role      Role
	CreatedAt time.Time
}
