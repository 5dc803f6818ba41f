package models

import "strings"

// Field names a single input on the waitlist form
type Field string

const (
	FieldFirstName Field = "firstName"
	FieldLastName  Field = "lastName"
	FieldEmail     Field = "email"
	FieldRole      Field = "role"
	FieldCountry   Field = "country"
)

// Role is the optional applicant category
type Role string

const (
	RolePatient    Role = "patient"
	RoleResearcher Role = "researcher"
	RoleCaregiver  Role = "caregiver"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleResearcher, RoleCaregiver:
		return true
	}
	return false
}

// Applicant represents the data entered into the waitlist form
type Applicant struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      Role   `json:"role,omitempty"`
	Country   string `json:"country,omitempty"`
}

// Set updates one field. Unknown fields are ignored and reported as false.
func (a *Applicant) Set(field Field, value string) bool {
	switch field {
	case FieldFirstName:
		a.FirstName = value
	case FieldLastName:
		a.LastName = value
	case FieldEmail:
		a.Email = value
	case FieldRole:
		a.Role = Role(value)
	case FieldCountry:
		a.Country = value
	default:
		return false
	}
	return true
}

// Trimmed returns a copy with surrounding whitespace removed from every field
func (a Applicant) Trimmed() Applicant {
	return Applicant{
		FirstName: strings.TrimSpace(a.FirstName),
		LastName:  strings.TrimSpace(a.LastName),
		Email:     strings.TrimSpace(a.Email),
		Role:      Role(strings.TrimSpace(string(a.Role))),
		Country:   strings.TrimSpace(a.Country),
	}
}

// MissingRequired lists the required fields that are empty after trimming
func (a Applicant) MissingRequired() []Field {
	t := a.Trimmed()
	var missing []Field
	if t.FirstName == "" {
		missing = append(missing, FieldFirstName)
	}
	if t.LastName == "" {
		missing = append(missing, FieldLastName)
	}
	if t.Email == "" {
		missing = append(missing, FieldEmail)
	}
	return missing
}
