package model

// Role of an authenticated user.
type Role string

const (
	RoleBoss     Role = "BOSS"
	RoleEmployee Role = "EMPLOYEE"
)

// User is an entry in the fixed identity allowlist.
type User struct {
	Name  string `mapstructure:"name" yaml:"name" json:"name"`
	Email string `mapstructure:"email" yaml:"email" json:"email"`
	Role  Role   `mapstructure:"role" yaml:"role" json:"role"`
}

// Session is the authenticated identity for one logged-in actor.
type Session struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Profile is a persisted credential record for an allowlisted user.
// Passwords are stored as bcrypt hashes, never in plaintext.
type Profile struct {
	Email        string `db:"email"`
	Name         string `db:"name"`
	Role         Role   `db:"role"`
	PasswordHash string `db:"password_hash"`
}

// Directory resolves allowlisted users by email or display name.
// The identity universe is configuration data: exactly one BOSS and a
// fixed set of EMPLOYEEs.
type Directory struct {
	users []User
}

// NewDirectory builds a directory from the configured allowlist.
func NewDirectory(users []User) *Directory {
	return &Directory{users: append([]User(nil), users...)}
}

// ByEmail looks up a user by email.
func (d *Directory) ByEmail(email string) (User, bool) {
	for _, u := range d.users {
		if u.Email == email {
			return u, true
		}
	}
	return User{}, false
}

// ByName looks up a user by display name.
func (d *Directory) ByName(name string) (User, bool) {
	for _, u := range d.users {
		if u.Name == name {
			return u, true
		}
	}
	return User{}, false
}

// Boss returns the single BOSS entry.
func (d *Directory) Boss() (User, bool) {
	for _, u := range d.users {
		if u.Role == RoleBoss {
			return u, true
		}
	}
	return User{}, false
}

// Employees returns all EMPLOYEE entries in allowlist order.
func (d *Directory) Employees() []User {
	var out []User
	for _, u := range d.users {
		if u.Role == RoleEmployee {
			out = append(out, u)
		}
	}
	return out
}

// All returns every allowlisted user.
func (d *Directory) All() []User {
	return append([]User(nil), d.users...)
}
