// Package domain defines the data structures shared by the cobrand client:
// sessions, wallets, QR codes, onboarding documents and transactions.
package domain

import "time"

// Session authenticated identity plus the bearer token it was issued with.
type Session struct {
	SubjectID        string         `json:"subjectId"`
	Username         string         `json:"username"`
	Name             string         `json:"name"`
	Email            string         `json:"email"`
	Role             string         `json:"role"`
	UserType         string         `json:"userType"`
	KYCCompleted     bool           `json:"kycCompleted"`
	KYBCompleted     bool           `json:"kybCompleted"`
	IsCurrencySuffix bool           `json:"isCurrencySuffix"`
	Tenant           string         `json:"tenant,omitempty"`
	Token            string         `json:"-"`
	TokenClaims      map[string]any `json:"-"`
	ExpiresAt        time.Time      `json:"expiresAt,omitempty"`
}

// UserData is the identity record persisted next to the token.
// Field names follow the shape the dashboard has always stored.
type UserData struct {
	ID               string `json:"_id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	Name             string `json:"name"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
	UserType         string `json:"userType"`
	KYCCompleted     bool   `json:"kycCompleted"`
	KYBCompleted     bool   `json:"kybCompleted"`
	IsCurrencySuffix bool   `json:"isCurrencySuffix"`
}

// NewSession assembles a session from a derived identity and its token.
func NewSession(user UserData, token, tenant string, claims map[string]any, expiresAt time.Time) Session {
	return Session{
		SubjectID:        user.ID,
		Username:         user.Username,
		Name:             user.Name,
		Email:            user.Email,
		Role:             user.Role,
		UserType:         user.UserType,
		KYCCompleted:     user.KYCCompleted,
		KYBCompleted:     user.KYBCompleted,
		IsCurrencySuffix: user.IsCurrencySuffix,
		Tenant:           tenant,
		Token:            token,
		TokenClaims:      claims,
		ExpiresAt:        expiresAt,
	}
}

// Credentials login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate reports missing fields.
func (c Credentials) Validate() []string {
	var problems []string
	if c.Email == "" {
		problems = append(problems, "email is required")
	}
	if c.Password == "" {
		problems = append(problems, "password is required")
	}
	return problems
}

// LoginResponse body returned by the token endpoint.
type LoginResponse struct {
	Token                  string `json:"token"`
	RefreshToken           string `json:"refreshToken"`
	RefreshTokenExpiryTime string `json:"refreshTokenExpiryTime"`
	UserType               string `json:"userType"`
	KYCCompleted           bool   `json:"kycCompleted"`
	KYBCompleted           bool   `json:"kybCompleted"`
	IsCurrencySuffix       bool   `json:"isCurrencySuffix"`
}

// RegisterRequest self-registration body.
type RegisterRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	UserName        string `json:"userName"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	PhoneNumber     string `json:"phoneNumber"`
}

// Validate reports missing or inconsistent fields.
func (r RegisterRequest) Validate() []string {
	var problems []string
	if r.Email == "" {
		problems = append(problems, "email is required")
	}
	if r.UserName == "" {
		problems = append(problems, "userName is required")
	}
	if r.Password == "" {
		problems = append(problems, "password is required")
	}
	if r.Password != r.ConfirmPassword {
		problems = append(problems, "passwords do not match")
	}
	return problems
}
