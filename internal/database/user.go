package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quangdm/xizach/internal/auth"
	"github.com/quangdm/xizach/internal/models"
)

// StartingBalance is granted to every new account.
const StartingBalance int64 = 10000

func CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}

	hash, err := auth.CreateHash(user.Password, auth.Params)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash
	user.Balance = StartingBalance
	user.IsActive = true

	q := `INSERT INTO users (id, username, password, balance, is_active)
	      VALUES ($1, $2, $3, $4, $5)`

	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			user.ID, user.Username, user.Password, user.Balance, user.IsActive,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	var roomID *string
	q := `
	SELECT id, username, password, balance, is_active, is_online, current_room_id
	FROM users
	WHERE username=$1
	`
	err := DB.QueryRow(ctx, q, username).Scan(
		&u.ID, &u.Username, &u.Password, &u.Balance,
		&u.IsActive, &u.IsOnline, &roomID,
	)
	if err != nil {
		return nil, err
	}
	if roomID != nil {
		u.CurrentRoomID = *roomID
	}
	return &u, nil
}

func GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	var roomID *string
	q := `
	SELECT id, username, password, balance, is_active, is_online, current_room_id
	FROM users
	WHERE id=$1
	`
	err := DB.QueryRow(ctx, q, id).Scan(
		&u.ID, &u.Username, &u.Password, &u.Balance,
		&u.IsActive, &u.IsOnline, &roomID,
	)
	if err != nil {
		return nil, err
	}
	if roomID != nil {
		u.CurrentRoomID = *roomID
	}
	return &u, nil
}

// AuthenticateUser verifies the credentials and returns a signed session
// token. Deactivated accounts cannot log in.
func AuthenticateUser(ctx context.Context, username, password string) (string, error) {
	user, err := GetUserByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("user not found or db error: %w", err)
	}
	if !user.IsActive {
		return "", fmt.Errorf("account is deactivated")
	}

	match, err := auth.ComparePasswordAndHash(password, user.Password)
	if err != nil || !match {
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := auth.CreateJWT(user.ID.String())
	if err != nil {
		return "", fmt.Errorf("failed to create jwt: %w", err)
	}

	return token, nil
}

// SetUserOnline flips the presence flag.
func SetUserOnline(ctx context.Context, id uuid.UUID, online bool) error {
	q := `UPDATE users SET is_online=$1 WHERE id=$2`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, online, id)
		return err
	})
}
