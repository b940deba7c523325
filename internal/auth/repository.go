package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
)

type User struct {
	ID           string
	Email        string
	Name         string
	Phone        string
	PasswordHash string
	TokenHash    string
	AccountType  string
	Roles        []string
}

func (u *User) Actor() domain.Actor {
	roles := make([]domain.Role, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = domain.Role(r)
	}
	return domain.Actor{ID: u.ID, Name: u.Name, AccountType: domain.AccountType(u.AccountType), Roles: roles}
}

type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, name, phone, password_hash, token_hash, account_type, array_to_string(roles, ',')`

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.scan(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.scan(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *userRepository) scan(row *sql.Row) (*User, error) {
	var (
		user  User
		roles string
	)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Phone, &user.PasswordHash, &user.TokenHash, &user.AccountType, &roles)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if roles != "" {
		user.Roles = strings.Split(roles, ",")
	}
	return &user, nil
}
