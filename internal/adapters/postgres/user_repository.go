package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
)

const userColumns = `id, name, email, phone, is_active, is_verified, created_at, updated_at`

type UserRepository struct {
	BaseRepository
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{
		BaseRepository: NewBaseRepository(pool),
	}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO counsel_users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.conn(ctx).Exec(ctx, query,
		user.ID,
		user.Name,
		nullString(user.Email),
		nullString(user.Phone),
		user.IsActive,
		user.IsVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError(domain.ErrInvalidContact, "contact already registered")
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.getBy(ctx, "phone", phone)
}

func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE counsel_users
		SET name = $2,
			email = $3,
			phone = $4,
			is_active = $5,
			is_verified = $6,
			updated_at = $7
		WHERE id = $1`

	tag, err := r.conn(ctx).Exec(ctx, query,
		user.ID,
		user.Name,
		nullString(user.Email),
		nullString(user.Phone),
		user.IsActive,
		user.IsVerified,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// getBy looks a user up by one of the unique columns. column is never client input.
func (r *UserRepository) getBy(ctx context.Context, column, value string) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM counsel_users WHERE ` + column + ` = $1`

	user, err := scanUserRow(r.conn(ctx).QueryRow(ctx, query, value))
	if err != nil {
		if checkNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func scanUserRow(row pgx.Row) (*models.User, error) {
	var u models.User
	var email, phone sql.NullString

	err := row.Scan(
		&u.ID,
		&u.Name,
		&email,
		&phone,
		&u.IsActive,
		&u.IsVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Email = getString(email)
	u.Phone = getString(phone)
	return &u, nil
}
