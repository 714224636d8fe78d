package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"medcanna/m/domain"
)

const userColumns = `id, name, email, password, role, has_uploaded_prescription, has_anvisa_document, admin_approved, created_at`

// Service stores accounts and checks credentials.
type Service struct {
	db  *sqlx.DB
	now func() time.Time
}

func New(db *sqlx.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Register creates a self-service account. Admin accounts can only be made
// with CreateAdmin.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	role, ok := domain.ParseRole(req.Role)
	if !ok || !role.SelfService() {
		return nil, fmt.Errorf("%w: role must be one of patient, client, doctor, consultant or vendor", domain.ErrInvalidInput)
	}
	return s.create(ctx, req.Name, req.Email, req.Password, role)
}

// CreateAdmin creates an administrator account.
func (s *Service) CreateAdmin(ctx context.Context, name, email, password string) (*domain.User, error) {
	return s.create(ctx, name, email, password, domain.RoleAdmin)
}

func (s *Service) create(ctx context.Context, name, email, password string, role domain.Role) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", domain.ErrInvalidInput)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("unable to secure password: %w", err)
	}

	var exists int
	if err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT COUNT(*) FROM users WHERE email = ?`), email); err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("%w: email already exists", domain.ErrConflict)
	}

	u := &domain.User{Name: name, Email: email, Role: role, CreatedAt: s.now()}
	err = s.db.QueryRowxContext(ctx, s.db.Rebind(`INSERT INTO users (name, email, password, role, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`),
		u.Name, u.Email, string(hashed), u.Role, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Authenticate returns the account for a valid email and password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthenticated)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthenticated)
	}
	u.Password = ""
	return &u, nil
}

// Get loads an account with its current document flags.
func (s *Service) Get(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	u.Password = ""
	return &u, nil
}

func (s *Service) ResetPassword(ctx context.Context, id int64, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new_password is required", domain.ErrInvalidInput)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("unable to secure password: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET password = ? WHERE id = ?`), string(hashed), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	return nil
}
