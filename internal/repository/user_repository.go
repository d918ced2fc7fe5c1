package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/synthara/forge-api/internal/models"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type UserRepository interface {
	CreateUser(ctx context.Context, email, password string) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	Get(ctx context.Context, userID string) (models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) CreateUser(ctx context.Context, email, password string) (models.User, error) {
	var user models.User
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return user, errors.New("email is required")
	}
	if len(password) < 8 {
		return user, errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user, err
	}

	query := `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, email, is_admin, is_active, created_at
	`
	err = r.db.QueryRowContext(ctx, query, email, string(hash)).
		Scan(&user.ID, &user.Email, &user.IsAdmin, &user.IsActive, &user.CreatedAt)
	return user, err
}

func (r *userRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	var user models.User
	email = strings.ToLower(strings.TrimSpace(email))

	query := `
		SELECT id, email, password_hash, is_admin, is_active, created_at
		FROM users
		WHERE email = $1 AND is_active
	`
	err := r.db.QueryRowContext(ctx, query, email).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.IsAdmin, &user.IsActive, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return user, ErrInvalidCredentials
		}
		return user, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return user, ErrInvalidCredentials
	}
	return user, nil
}

func (r *userRepository) Get(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	query := `
		SELECT id, email, password_hash, is_admin, is_active, created_at
		FROM users
		WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.IsAdmin, &user.IsActive, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return user, ErrUserNotFound
		}
		return user, err
	}
	return user, nil
}
