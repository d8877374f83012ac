package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/waldorf/school-records/internal/api/middleware"
	"github.com/waldorf/school-records/internal/core/domain"
	"github.com/waldorf/school-records/internal/core/ports"
)

type stubAuthService struct {
	loginFn     func(ctx context.Context, identifier, password string) (*ports.LoginResult, error)
	refreshFn   func(ctx context.Context, token string) (*ports.LoginResult, error)
	logoutFn    func(ctx context.Context, token string) error
	provisionFn func(ctx context.Context, in ports.ProvisionCredentialInput) (*domain.Credential, error)
}

func (s *stubAuthService) Authenticate(ctx context.Context, identifier, password string) (*domain.Principal, error) {
	res, err := s.loginFn(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	return res.Principal, nil
}

func (s *stubAuthService) Login(ctx context.Context, identifier, password string) (*ports.LoginResult, error) {
	return s.loginFn(ctx, identifier, password)
}

func (s *stubAuthService) Refresh(ctx context.Context, token string) (*ports.LoginResult, error) {
	return s.refreshFn(ctx, token)
}

func (s *stubAuthService) Logout(ctx context.Context, token string) error {
	return s.logoutFn(ctx, token)
}

func (s *stubAuthService) Provision(ctx context.Context, in ports.ProvisionCredentialInput) (*domain.Credential, error) {
	return s.provisionFn(ctx, in)
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func jsonRequest(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func mariaResult() *ports.LoginResult {
	return &ports.LoginResult{
		Principal: &domain.Principal{
			ID:          "cred-1",
			Username:    "maria",
			DisplayName: "Maria Souza",
			Email:       "maria@school.example",
			Authorities: []domain.Authority{"ROLE_SECRETARY", "PERSON:READ:GLOBAL"},
			PrimaryRole: domain.RoleSecretary,
		},
		AccessToken:      "access.jwt",
		RefreshToken:     "refresh.jwt",
		ExpiresIn:        15 * time.Minute,
		RefreshExpiresIn: 168 * time.Hour,
	}
}

func TestAuthHandler_Login_Success(t *testing.T) {
	e := newTestEcho()
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, identifier, password string) (*ports.LoginResult, error) {
			if identifier != "maria" || password != "s3cret!" {
				t.Fatalf("unexpected args: %s %s", identifier, password)
			}
			return mariaResult(), nil
		},
	}
	c, rec := jsonRequest(e, http.MethodPost, "/v1/auth/login", `{"identifier":"maria","password":"s3cret!"}`)

	if err := NewAuthHandler(stub).Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.Success || resp.AccessToken != "access.jwt" || resp.RefreshToken != "refresh.jwt" {
		t.Fatalf("unexpected tokens: %+v", resp)
	}
	if resp.ExpiresIn != 900 || resp.RefreshExpiresIn != 604800 {
		t.Fatalf("unexpected lifetimes: %d %d", resp.ExpiresIn, resp.RefreshExpiresIn)
	}
	if resp.User.FullName != "Maria Souza" || resp.User.PrimaryRole != "SECRETARY" {
		t.Fatalf("unexpected user: %+v", resp.User)
	}
	if len(resp.User.Roles) != 1 || resp.User.Roles[0] != "SECRETARY" {
		t.Fatalf("roles should list role names only: %v", resp.User.Roles)
	}
}

func TestAuthHandler_Login_PropagatesDomainErrors(t *testing.T) {
	for _, want := range []error{domain.ErrInvalidCredentials, domain.ErrAccountDisabled} {
		e := newTestEcho()
		stub := &stubAuthService{
			loginFn: func(context.Context, string, string) (*ports.LoginResult, error) { return nil, want },
		}
		c, _ := jsonRequest(e, http.MethodPost, "/v1/auth/login", `{"identifier":"maria","password":"nope"}`)

		if err := NewAuthHandler(stub).Login(c); !errors.Is(err, want) {
			t.Fatalf("expected %v, got %v", want, err)
		}
	}
}

func TestAuthHandler_Login_ValidationAndPayload(t *testing.T) {
	stub := &stubAuthService{
		loginFn: func(context.Context, string, string) (*ports.LoginResult, error) {
			t.Fatalf("service must not be called")
			return nil, nil
		},
	}

	e := newTestEcho()
	c, _ := jsonRequest(e, http.MethodPost, "/v1/auth/login", `{"identifier":"maria"}`)
	if code := httpCode(t, NewAuthHandler(stub).Login(c)); code != http.StatusUnprocessableEntity {
		t.Fatalf("missing password: expected 422, got %d", code)
	}

	c, _ = jsonRequest(e, http.MethodPost, "/v1/auth/login", `{"identifier":`)
	if code := httpCode(t, NewAuthHandler(stub).Login(c)); code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", code)
	}
}

func TestAuthHandler_Refresh(t *testing.T) {
	e := newTestEcho()
	stub := &stubAuthService{
		refreshFn: func(ctx context.Context, token string) (*ports.LoginResult, error) {
			if token != "refresh.old" {
				t.Fatalf("unexpected token %q", token)
			}
			return mariaResult(), nil
		},
	}
	c, rec := jsonRequest(e, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"refresh.old"}`)

	if err := NewAuthHandler(stub).Refresh(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"refresh_token":"refresh.jwt"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	e := newTestEcho()
	var revoked string
	stub := &stubAuthService{
		logoutFn: func(ctx context.Context, token string) error {
			revoked = token
			return nil
		},
	}
	c, rec := jsonRequest(e, http.MethodPost, "/v1/auth/logout", `{"refresh_token":"refresh.jwt"}`)

	if err := NewAuthHandler(stub).Logout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent || revoked != "refresh.jwt" {
		t.Fatalf("expected 204 and revocation, got %d %q", rec.Code, revoked)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	e := newTestEcho()
	c, rec := jsonRequest(e, http.MethodGet, "/v1/auth/me", "")
	c.Set(middleware.PrincipalKey, mariaResult().Principal)

	if err := NewAuthHandler(&stubAuthService{}).Me(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["username"] != "maria" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if auths, ok := resp["authorities"].([]any); !ok || len(auths) != 2 {
		t.Fatalf("expected 2 authorities, got %+v", resp["authorities"])
	}
}

func TestAuthHandler_Me_Unauthenticated(t *testing.T) {
	e := newTestEcho()
	c, _ := jsonRequest(e, http.MethodGet, "/v1/auth/me", "")

	if code := httpCode(t, NewAuthHandler(&stubAuthService{}).Me(c)); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestAuthHandler_ProvisionCredential(t *testing.T) {
	e := newTestEcho()
	stub := &stubAuthService{
		provisionFn: func(ctx context.Context, in ports.ProvisionCredentialInput) (*domain.Credential, error) {
			if in.Username != "joao" || len(in.Roles) != 1 || in.Roles[0] != "TEACHER" {
				t.Fatalf("unexpected input: %+v", in)
			}
			return &domain.Credential{
				ID: "cred-7", Username: in.Username, Email: in.Email, PasswordHash: "hash",
				Active: true, Roles: []domain.RoleName{domain.RoleTeacher},
			}, nil
		},
	}
	body := `{"username":"joao","email":"joao@school.example","password":"long-enough","roles":["TEACHER"]}`
	c, rec := jsonRequest(e, http.MethodPost, "/v1/credentials", body)

	if err := NewAuthHandler(stub).ProvisionCredential(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hash") {
		t.Fatalf("password hash leaked: %s", rec.Body.String())
	}
}

func TestAuthHandler_ProvisionCredential_Validation(t *testing.T) {
	e := newTestEcho()
	stub := &stubAuthService{
		provisionFn: func(context.Context, ports.ProvisionCredentialInput) (*domain.Credential, error) {
			t.Fatalf("service must not be called")
			return nil, nil
		},
	}
	cases := map[string]string{
		"no roles":       `{"username":"joao","email":"joao@school.example","password":"long-enough","roles":[]}`,
		"short password": `{"username":"joao","email":"joao@school.example","password":"short","roles":["USER"]}`,
		"bad email":      `{"username":"joao","email":"joao","password":"long-enough","roles":["USER"]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := jsonRequest(e, http.MethodPost, "/v1/credentials", body)
			if code := httpCode(t, NewAuthHandler(stub).ProvisionCredential(c)); code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d", code)
			}
		})
	}
}
