package domain

// User account as listed by the user management endpoints.
type User struct {
	ID             string  `json:"id"`
	UserName       string  `json:"userName"`
	FirstName      string  `json:"firstName"`
	LastName       string  `json:"lastName"`
	Email          string  `json:"email"`
	IsActive       bool    `json:"isActive"`
	EmailConfirmed bool    `json:"emailConfirmed"`
	PhoneNumber    *string `json:"phoneNumber"`
	ImageURL       *string `json:"imageUrl"`
	KYCCompleted   bool    `json:"kycCompleted"`
	KYBCompleted   bool    `json:"kybCompleted"`
	UserType       int     `json:"userType"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
