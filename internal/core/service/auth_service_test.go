package service

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/waldorf/school-records/internal/core/domain"
	"github.com/waldorf/school-records/internal/core/ports"
	redisdb "github.com/waldorf/school-records/internal/infrastructure/db/redis"
)

// ----- Stubs -----

type stubCredentialRepo struct {
	mu    sync.Mutex
	creds map[string]*domain.Credential // keyed by ID
	seq   int
}

func newStubCredentialRepo(creds ...*domain.Credential) *stubCredentialRepo {
	r := &stubCredentialRepo{creds: make(map[string]*domain.Credential)}
	for _, c := range creds {
		r.creds[c.ID] = cloneCredential(c)
	}
	return r
}

func cloneCredential(c *domain.Credential) *domain.Credential {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Roles = append([]domain.RoleName(nil), c.Roles...)
	return &clone
}

func (r *stubCredentialRepo) FindByIdentifier(_ context.Context, identifier string) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.creds {
		if strings.EqualFold(c.Username, identifier) || strings.EqualFold(c.Email, identifier) {
			return cloneCredential(c), nil
		}
	}
	return nil, domain.ErrCredentialNotFound
}

func (r *stubCredentialRepo) FindByID(_ context.Context, id string) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[id]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	return cloneCredential(c), nil
}

func (r *stubCredentialRepo) ExistsByIdentifier(ctx context.Context, identifier string) (bool, error) {
	_, err := r.FindByIdentifier(ctx, identifier)
	return err == nil, nil
}

func (r *stubCredentialRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.creds {
		if strings.EqualFold(c.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubCredentialRepo) Create(_ context.Context, cred *domain.Credential) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	c := cloneCredential(cred)
	c.ID = "cred-" + strconv.Itoa(r.seq)
	r.creds[c.ID] = c
	return cloneCredential(c), nil
}

func (r *stubCredentialRepo) set(c *domain.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[c.ID] = cloneCredential(c)
}

// plainHasher stores "hashed:"+plaintext and counts Verify calls.
type plainHasher struct {
	mu       sync.Mutex
	verifies int
	hashErr  error
}

func (h *plainHasher) Hash(plaintext string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "hashed:" + plaintext, nil
}

func (h *plainHasher) Verify(plaintext, hash string) bool {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return hash == "hashed:"+plaintext
}

func (h *plainHasher) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

type memRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func newMemRevocations() *memRevocations {
	return &memRevocations{revoked: make(map[string]time.Time)}
}

func (m *memRevocations) Revoke(_ context.Context, id string, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.revoked[id]; ok {
		return false, nil
	}
	m.revoked[id] = until
	return true, nil
}

type staticKey []byte

func (k staticKey) SigningKey() ([]byte, error) {
	if len(k) == 0 {
		return nil, errors.New("signing key not configured")
	}
	return k, nil
}

var testKey = staticKey("0123456789abcdef0123456789abcdef")

func schoolCatalog() []domain.Role {
	return []domain.Role{
		{Name: domain.RoleAdmin, AccessLevel: 100, Active: true},
		{Name: domain.RoleDirector, AccessLevel: 80, Active: true},
		{Name: domain.RoleSecretary, AccessLevel: 60, Active: true, Permissions: []domain.Permission{
			{Name: "person.create", Resource: domain.ResourcePerson, Action: domain.ActionCreate, Scope: domain.ScopeGlobal},
			{Name: "person.read", Resource: domain.ResourcePerson, Action: domain.ActionRead, Scope: domain.ScopeGlobal},
		}},
		{Name: domain.RoleTeacher, AccessLevel: 40, Active: true, Permissions: []domain.Permission{
			{Name: "person.read", Resource: domain.ResourcePerson, Action: domain.ActionRead, Scope: domain.ScopeGlobal},
			{Name: "observation.create", Resource: domain.ResourceObservation, Action: domain.ActionCreate, Scope: domain.ScopeClass},
		}},
		{Name: domain.RoleGuardian, AccessLevel: 20, Active: false},
		{Name: domain.RoleUser, AccessLevel: 10, Active: true},
	}
}

type authFixture struct {
	svc    *AuthService
	repo   *stubCredentialRepo
	hasher *plainHasher
	tokens *JWTIssuer
	revs   ports.TokenRevocationStore
}

func newAuthFixture(t *testing.T, creds ...*domain.Credential) *authFixture {
	t.Helper()
	return newAuthFixtureWith(t, newMemRevocations(), creds...)
}

func newAuthFixtureWith(t *testing.T, revs ports.TokenRevocationStore, creds ...*domain.Credential) *authFixture {
	t.Helper()
	graph, err := NewRoleGraph(schoolCatalog(), RoleGraphConfig{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRoleGraph: %v", err)
	}
	tokens, err := NewJWTIssuer(testKey, 0, 0)
	if err != nil {
		t.Fatalf("NewJWTIssuer: %v", err)
	}
	f := &authFixture{
		repo:   newStubCredentialRepo(creds...),
		hasher: &plainHasher{},
		tokens: tokens,
		revs:   revs,
	}
	f.svc, err = NewAuthService(f.repo, f.hasher, graph, tokens, f.revs, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return f
}

func maria() *domain.Credential {
	return &domain.Credential{
		ID:           "u-maria",
		Username:     "maria",
		Email:        "maria@school.example",
		DisplayName:  "Maria Souza",
		PasswordHash: "hashed:secret",
		Active:       true,
		Roles:        []domain.RoleName{domain.RoleTeacher},
	}
}

// ----- Authenticate -----

func TestAuthService_Authenticate_Success(t *testing.T) {
	f := newAuthFixture(t, maria())

	p, err := f.svc.Authenticate(context.Background(), "maria", "secret")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if p.ID != "u-maria" || p.DisplayName != "Maria Souza" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	want := []domain.Authority{"ROLE_TEACHER"}
	if !reflect.DeepEqual(p.Authorities, want) {
		t.Fatalf("authorities = %v, want %v", p.Authorities, want)
	}
	if p.PrimaryRole != domain.RoleTeacher {
		t.Fatalf("primary role = %q", p.PrimaryRole)
	}
}

func TestAuthService_Authenticate_CaseInsensitiveIdentifier(t *testing.T) {
	f := newAuthFixture(t, maria())

	if _, err := f.svc.Authenticate(context.Background(), "  MARIA ", "secret"); err != nil {
		t.Fatalf("username lookup should ignore case: %v", err)
	}
	if _, err := f.svc.Authenticate(context.Background(), "Maria@School.Example", "secret"); err != nil {
		t.Fatalf("email lookup should ignore case: %v", err)
	}
}

func TestAuthService_Authenticate_WrongPasswordAndUnknownAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t, maria())
	ctx := context.Background()

	_, wrongErr := f.svc.Authenticate(ctx, "maria", "wrong")
	afterWrong := f.hasher.calls()
	_, unknownErr := f.svc.Authenticate(ctx, "nobody", "wrong")
	afterUnknown := f.hasher.calls()

	if !errors.Is(wrongErr, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongErr)
	}
	if !errors.Is(unknownErr, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown identifier: expected ErrInvalidCredentials, got %v", unknownErr)
	}
	if wrongErr.Error() != unknownErr.Error() {
		t.Fatalf("errors must be identical: %q vs %q", wrongErr, unknownErr)
	}
	if afterWrong != 1 || afterUnknown-afterWrong != 1 {
		t.Fatalf("both paths must run exactly one hash comparison, got %d and %d", afterWrong, afterUnknown-afterWrong)
	}
}

func TestAuthService_Authenticate_DisabledOnlyAfterPasswordMatch(t *testing.T) {
	inactive := maria()
	inactive.Active = false
	locked := maria()
	locked.ID, locked.Username, locked.Email = "u-locked", "locked", "locked@school.example"
	locked.Locked = true

	f := newAuthFixture(t, inactive, locked)
	ctx := context.Background()

	for _, id := range []string{"maria", "locked"} {
		if _, err := f.svc.Authenticate(ctx, id, "secret"); !errors.Is(err, domain.ErrAccountDisabled) {
			t.Fatalf("%s with correct password: expected ErrAccountDisabled, got %v", id, err)
		}
		if _, err := f.svc.Authenticate(ctx, id, "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("%s with wrong password: expected ErrInvalidCredentials, got %v", id, err)
		}
	}
}

func TestAuthService_Authenticate_EmptyInput(t *testing.T) {
	f := newAuthFixture(t, maria())
	cases := [][2]string{{"", "secret"}, {"maria", ""}, {"   ", "x"}}
	for _, c := range cases {
		if _, err := f.svc.Authenticate(context.Background(), c[0], c[1]); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("%q/%q: expected ErrInvalidCredentials, got %v", c[0], c[1], err)
		}
	}
}

func TestAuthService_Authenticate_NoRolesFailsClosed(t *testing.T) {
	c := maria()
	c.Roles = nil
	f := newAuthFixture(t, c)

	p, err := f.svc.Authenticate(context.Background(), "maria", "secret")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if len(p.Authorities) != 0 {
		t.Fatalf("expected no authorities, got %v", p.Authorities)
	}
}

// ----- Login / Refresh / Logout -----

func TestAuthService_Login_IssuesPair(t *testing.T) {
	f := newAuthFixture(t, maria())

	res, err := f.svc.Login(context.Background(), "maria", "secret")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if res.ExpiresIn != 900*time.Second || res.RefreshExpiresIn != 604800*time.Second {
		t.Fatalf("unexpected TTLs: %v / %v", res.ExpiresIn, res.RefreshExpiresIn)
	}

	claims, err := f.tokens.ParseAccessToken(res.AccessToken)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.Subject != "u-maria" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if !reflect.DeepEqual(claims.Authorities, []domain.Authority{"ROLE_TEACHER"}) {
		t.Fatalf("authorities = %v", claims.Authorities)
	}
	if _, err := f.tokens.ParseRefreshToken(res.RefreshToken); err != nil {
		t.Fatalf("refresh token does not verify: %v", err)
	}
}

func TestAuthService_Refresh_RotatesAndReResolves(t *testing.T) {
	f := newAuthFixture(t, maria())
	ctx := context.Background()

	first, err := f.svc.Login(ctx, "maria", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	promoted := maria()
	promoted.Roles = []domain.RoleName{domain.RoleTeacher, domain.RoleDirector}
	f.repo.set(promoted)

	second, err := f.svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	want := []domain.Authority{"ROLE_DIRECTOR", "ROLE_TEACHER"}
	if !reflect.DeepEqual(second.Principal.Authorities, want) {
		t.Fatalf("authorities = %v, want %v", second.Principal.Authorities, want)
	}
	if second.Principal.PrimaryRole != domain.RoleDirector {
		t.Fatalf("primary role = %q", second.Principal.PrimaryRole)
	}

	if _, err := f.svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatalf("reusing a rotated refresh token: expected ErrTokenRevoked, got %v", err)
	}
}

func TestAuthService_Refresh_ConcurrentReuseSucceedsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newAuthFixtureWith(t, redisdb.NewRevocationStore(client), maria())
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "maria", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		revoked   int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Refresh(ctx, res.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrTokenRevoked):
				revoked++
			default:
				t.Errorf("unexpected refresh error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if succeeded != 1 || revoked != attempts-1 {
		t.Fatalf("one refresh token must renew exactly once: %d succeeded, %d revoked", succeeded, revoked)
	}
}

func TestAuthService_Refresh_DisabledAccount(t *testing.T) {
	f := newAuthFixture(t, maria())
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "maria", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	locked := maria()
	locked.Locked = true
	f.repo.set(locked)

	if _, err := f.svc.Refresh(ctx, res.RefreshToken); !errors.Is(err, domain.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestAuthService_Refresh_RejectsAccessToken(t *testing.T) {
	f := newAuthFixture(t, maria())

	res, err := f.svc.Login(context.Background(), "maria", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), res.AccessToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthService_Logout_RevokesRefreshToken(t *testing.T) {
	f := newAuthFixture(t, maria())
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "maria", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := f.svc.Logout(ctx, res.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, res.RefreshToken); !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked after logout, got %v", err)
	}
	if err := f.svc.Logout(ctx, "garbage"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestNewAuthService_FailsWhenDummyHashFails(t *testing.T) {
	graph, err := NewRoleGraph(schoolCatalog(), RoleGraphConfig{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRoleGraph: %v", err)
	}
	tokens, err := NewJWTIssuer(testKey, 0, 0)
	if err != nil {
		t.Fatalf("NewJWTIssuer: %v", err)
	}
	hasher := &plainHasher{hashErr: errors.New("cost out of range")}

	svc, err := NewAuthService(newStubCredentialRepo(), hasher, graph, tokens, newMemRevocations(), zerolog.Nop())
	if err == nil || svc != nil {
		t.Fatalf("expected construction to fail, got %v / %v", svc, err)
	}
}

func TestAuthService_UnknownIdentifierComparesAgainstDummyHash(t *testing.T) {
	f := newAuthFixture(t)
	if f.svc.dummyHash != "hashed:"+dummyPassword {
		t.Fatalf("dummy hash not prepared at construction: %q", f.svc.dummyHash)
	}
	if _, err := f.svc.Authenticate(context.Background(), "nobody", "x"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if f.hasher.calls() != 1 {
		t.Fatalf("unknown identifier must still run one comparison, got %d", f.hasher.calls())
	}
}

// ----- Provision -----

func TestAuthService_Provision_Success(t *testing.T) {
	f := newAuthFixture(t, maria())

	cred, err := f.svc.Provision(context.Background(), ports.ProvisionCredentialInput{
		Username: "Joao",
		Email:    "JOAO@school.example",
		Password: "pass123",
		Roles:    []string{"secretary"},
	})
	if err != nil {
		t.Fatalf("Provision returned error: %v", err)
	}
	if cred.Username != "joao" || cred.Email != "joao@school.example" {
		t.Fatalf("identifiers not normalised: %+v", cred)
	}
	if cred.PasswordHash == "pass123" {
		t.Fatalf("expected password to be hashed")
	}
	if !cred.Active || cred.DisplayName != "joao" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
	if !reflect.DeepEqual(cred.Roles, []domain.RoleName{domain.RoleSecretary}) {
		t.Fatalf("roles = %v", cred.Roles)
	}

	if _, err := f.svc.Login(context.Background(), "joao", "pass123"); err != nil {
		t.Fatalf("provisioned credential cannot log in: %v", err)
	}
}

func TestAuthService_Provision_Duplicates(t *testing.T) {
	f := newAuthFixture(t, maria())
	ctx := context.Background()

	_, err := f.svc.Provision(ctx, ports.ProvisionCredentialInput{Username: "MARIA", Email: "other@school.example", Password: "x"})
	de, ok := domain.IsDuplicateIdentifier(err)
	if !ok || de.Field != domain.FieldUsername {
		t.Fatalf("expected duplicate username, got %v", err)
	}

	_, err = f.svc.Provision(ctx, ports.ProvisionCredentialInput{Username: "newbie", Email: "maria@school.example", Password: "x"})
	de, ok = domain.IsDuplicateIdentifier(err)
	if !ok || de.Field != domain.FieldEmail {
		t.Fatalf("expected duplicate email, got %v", err)
	}
}

func TestAuthService_Provision_UnknownRole(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Provision(context.Background(), ports.ProvisionCredentialInput{
		Username: "x", Email: "x@school.example", Password: "x", Roles: []string{"JANITOR"},
	})
	if !errors.Is(err, domain.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestAuthService_Provision_MissingFields(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Provision(context.Background(), ports.ProvisionCredentialInput{Username: "x", Email: " "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
