package domain

import "time"

// Role is the closed set of account roles.
type Role string

const (
	RolePatient    Role = "patient"
	RoleClient     Role = "client"
	RoleDoctor     Role = "doctor"
	RoleConsultant Role = "consultant"
	RoleAdmin      Role = "admin"
	RoleVendor     Role = "vendor"
)

// ParseRole returns the role named by s and whether it is known.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RolePatient, RoleClient, RoleDoctor, RoleConsultant, RoleAdmin, RoleVendor:
		return r, true
	}
	return "", false
}

// SelfService reports whether the role may be chosen at registration.
func (r Role) SelfService() bool {
	return r != RoleAdmin
}

type User struct {
	ID                      int64     `json:"id" db:"id"`
	Name                    string    `json:"name" db:"name"`
	Email                   string    `json:"email" db:"email"`
	Password                string    `json:"-" db:"password"`
	Role                    Role      `json:"role" db:"role"`
	HasUploadedPrescription bool      `json:"has_uploaded_prescription" db:"has_uploaded_prescription"`
	HasAnvisaDocument       bool      `json:"has_anvisa_document" db:"has_anvisa_document"`
	AdminApproved           bool      `json:"admin_approved" db:"admin_approved"`
	CreatedAt               time.Time `json:"created_at" db:"created_at"`
}
