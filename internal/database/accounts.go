package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quangdm/xizach/internal/game"
	"github.com/quangdm/xizach/internal/models"
)

// Accounts adapts the users/game_history tables to the room engine's
// AccountStore interface. Every balance mutation runs in its own transaction
// so concurrent settlement and transfers serialize per row.
type Accounts struct{}

func (Accounts) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return GetUserByID(ctx, id)
}

// ApplyRoundResult credits or debits the round delta. There is no floor: a
// loss may push the balance negative. The history row itself is written by
// the historian worker, not here. Returns the balance after the update.
func (Accounts) ApplyRoundResult(ctx context.Context, rec models.HistoryRecord) (int64, error) {
	var newBalance int64
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`UPDATE users SET balance = balance + $1 WHERE id = $2 RETURNING balance`,
			rec.Amount, rec.UserID,
		).Scan(&newBalance)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to apply round result for %s: %w", rec.UserID, err)
	}
	return newBalance, nil
}

// Transfer moves amount between two users, locking the sender row first and
// refusing to overdraw it.
func (Accounts) Transfer(ctx context.Context, from, to uuid.UUID, amount int64) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var balance int64
		err := tx.QueryRow(ctx,
			`SELECT balance FROM users WHERE id = $1 FOR UPDATE`, from,
		).Scan(&balance)
		if err != nil {
			return err
		}
		if balance < amount {
			return game.ErrInsufficientBalance
		}
		if _, err := tx.Exec(ctx,
			`UPDATE users SET balance = balance - $1 WHERE id = $2`, amount, from,
		); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE users SET balance = balance + $1 WHERE id = $2`, amount, to,
		)
		return err
	})
	if err == game.ErrInsufficientBalance {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to transfer %d from %s to %s: %w", amount, from, to, err)
	}
	return nil
}

func (Accounts) SetCurrentRoom(ctx context.Context, id uuid.UUID, roomID string) error {
	var room *string
	if roomID != "" {
		room = &roomID
	}
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE users SET current_room_id = $1 WHERE id = $2`, room, id)
		return err
	})
}

// InsertHistoryRecords writes a batch of history rows in one transaction.
// The historian worker calls this when flushing its queue batch.
func InsertHistoryRecords(ctx context.Context, recs []models.HistoryRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO game_history (user_id, game_type, result, amount, created_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				rec.UserID, rec.GameType, rec.Result, rec.Amount, rec.Timestamp,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetHistory returns the user's most recent rounds, newest first.
func GetHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := DB.Query(ctx,
		`SELECT user_id, game_type, result, amount, created_at
		 FROM game_history
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HistoryRecord
	for rows.Next() {
		var rec models.HistoryRecord
		if err := rows.Scan(&rec.UserID, &rec.GameType, &rec.Result, &rec.Amount, &rec.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
