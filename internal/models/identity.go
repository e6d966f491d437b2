package models

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the verified caller handed over by the auth gate.
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
