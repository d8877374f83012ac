package handler

import (
	"time"

	"github.com/waldorf/school-records/internal/core/domain"
	"github.com/waldorf/school-records/internal/core/ports"
)

type loginRequest struct {
	// Username or email.
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password"   validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type provisionCredentialRequest struct {
	Username    string   `json:"username"     validate:"required,min=3,max=64"`
	Email       string   `json:"email"        validate:"required,email"`
	DisplayName string   `json:"display_name" validate:"max=200"`
	Password    string   `json:"password"     validate:"required,min=8,max=72"`
	Roles       []string `json:"roles"        validate:"required,min=1,dive,required"`
	PersonID    string   `json:"person_id"`
}

type userResponse struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	FullName    string   `json:"full_name"`
	PrimaryRole string   `json:"primary_role,omitempty"`
	Roles       []string `json:"roles"`
}

type loginResponse struct {
	Success          bool         `json:"success"`
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	ExpiresIn        int64        `json:"expires_in"`
	RefreshExpiresIn int64        `json:"refresh_expires_in"`
	User             userResponse `json:"user"`
}

type meResponse struct {
	userResponse
	Authorities []domain.Authority `json:"authorities"`
}

type credentialResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	Roles       []string  `json:"roles"`
	PersonID    string    `json:"person_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserResponse(p *domain.Principal) userResponse {
	return userResponse{
		ID:          p.ID,
		Username:    p.Username,
		Email:       p.Email,
		FullName:    p.DisplayName,
		PrimaryRole: string(p.PrimaryRole),
		Roles:       p.RoleNames(),
	}
}

func toLoginResponse(r *ports.LoginResult) loginResponse {
	return loginResponse{
		Success:          true,
		AccessToken:      r.AccessToken,
		RefreshToken:     r.RefreshToken,
		ExpiresIn:        int64(r.ExpiresIn.Seconds()),
		RefreshExpiresIn: int64(r.RefreshExpiresIn.Seconds()),
		User:             toUserResponse(r.Principal),
	}
}

func toCredentialResponse(c *domain.Credential) credentialResponse {
	roles := make([]string, 0, len(c.Roles))
	for _, r := range c.Roles {
		roles = append(roles, string(r))
	}
	return credentialResponse{
		ID:          c.ID,
		Username:    c.Username,
		Email:       c.Email,
		DisplayName: c.DisplayName,
		Active:      c.Active,
		Roles:       roles,
		PersonID:    c.PersonID,
		CreatedAt:   c.CreatedAt,
	}
}
