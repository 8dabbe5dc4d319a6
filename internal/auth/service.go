package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
	ErrRateLimited        = errors.New("too many requests")
	ErrUserNotFound       = errors.New("user not found")
)

const (
	RoleAdmin       = "admin"
	RoleParticipant = "participant"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type Service struct {
	db                *sql.DB
	tokens            *TokenIssuer
	bcryptCost        int
	loginMaxFailures  int
	loginLockDuration time.Duration
}

type ServiceConfig struct {
	Tokens            *TokenIssuer
	BcryptCost        int
	LoginMaxFailures  int
	LoginLockDuration time.Duration
}

type RegisterInput struct {
	FullName string
	Email    string
	Password string
}

type BootstrapInput struct {
	Email    string
	Password string
	FullName string
}

func NewService(db *sql.DB, cfg ServiceConfig) *Service {
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.LoginMaxFailures <= 0 {
		cfg.LoginMaxFailures = 5
	}
	if cfg.LoginLockDuration <= 0 {
		cfg.LoginLockDuration = 15 * time.Minute
	}
	return &Service{
		db:                db,
		tokens:            cfg.Tokens,
		bcryptCost:        cfg.BcryptCost,
		loginMaxFailures:  cfg.LoginMaxFailures,
		loginLockDuration: cfg.LoginLockDuration,
	}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	fullName := strings.TrimSpace(in.FullName)
	email := normalizeEmail(in.Email)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full_name is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, full_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, full_name, role, created_at
	`, email, string(hash), fullName, RoleParticipant)
	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	locked, err := s.isGuardLocked(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check login guard: %w", err)
	}
	if locked {
		return nil, ErrRateLimited
	}

	var (
		u            User
		passwordHash string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, role, created_at, password_hash
		FROM users
		WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.CreatedAt, &passwordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = s.registerFailure(ctx, email)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		_ = s.registerFailure(ctx, email)
		return nil, ErrInvalidCredentials
	}

	_ = s.clearGuard(ctx, email)
	return &u, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, email, full_name, role, created_at FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

func (s *Service) IssueToken(user *User) (string, time.Time, error) {
	return s.tokens.Issue(user)
}

func (s *Service) ParseToken(token string) (*User, error) {
	return s.tokens.Parse(token)
}

// BootstrapAdmin creates the operator account on first start, or resets its
// password and role when the account already exists.
func (s *Service) BootstrapAdmin(ctx context.Context, in BootstrapInput) error {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid admin email", ErrInvalidInput)
	}
	if len(in.Password) < 8 {
		return fmt.Errorf("%w: admin password must be at least 8 characters", ErrInvalidInput)
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		fullName = "Administrator"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, full_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			updated_at = now()
	`, email, string(hash), fullName, RoleAdmin)
	if err != nil {
		return fmt.Errorf("upsert admin: %w", err)
	}
	return nil
}

func (s *Service) isGuardLocked(ctx context.Context, subjectKey string) (bool, error) {
	var lockedUntil sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT locked_until
		FROM auth_guard_states
		WHERE subject_key = $1
	`, subjectKey).Scan(&lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return lockedUntil.Valid && time.Now().Before(lockedUntil.Time), nil
}

func (s *Service) registerFailure(ctx context.Context, subjectKey string) error {
	var failedCount int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO auth_guard_states (subject_key, failed_count, updated_at)
		VALUES ($1, 1, now())
		ON CONFLICT (subject_key)
		DO UPDATE SET
			failed_count = auth_guard_states.failed_count + 1,
			updated_at = now()
		RETURNING failed_count
	`, subjectKey).Scan(&failedCount)
	if err != nil {
		return err
	}
	if failedCount < s.loginMaxFailures {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE auth_guard_states
		SET locked_until = now() + make_interval(secs => $2),
		    failed_count = 0,
		    updated_at = now()
		WHERE subject_key = $1
	`, subjectKey, s.loginLockDuration.Seconds())
	return err
}

func (s *Service) clearGuard(ctx context.Context, subjectKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_guard_states WHERE subject_key = $1`, subjectKey)
	return err
}

func scanUser(scanner interface{ Scan(dest ...any) error }) (*User, error) {
	var u User
	if err := scanner.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
