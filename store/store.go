// Package store holds the typed persistence operations shared by both bots.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"musubi/database"
)

// ErrNotEnoughMembers is returned by CoupleOfDay when a chat has fewer than
// two recorded members to draw from.
var ErrNotEnoughMembers = errors.New("not enough active members")

// Store runs the SQL behind warns, notes, xp, settings and couples.
type Store struct {
	db database.Database
}

// New creates a Store on top of a database connection
func New(db database.Database) *Store {
	return &Store{db: db}
}

// MarkKnownChat records a chat so broadcasts and jobs can find it later.
func (s *Store) MarkKnownChat(ctx context.Context, chatID int64) error {
	_, err := s.db.Exec(ctx, `INSERT INTO known_chats (chat_id) VALUES ($1) ON CONFLICT (chat_id) DO NOTHING`, chatID)
	return err
}

// KnownChats returns up to limit known chat ids
func (s *Store) KnownChats(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT chat_id FROM known_chats ORDER BY first_seen LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		chats = append(chats, id)
	}
	return chats, rows.Err()
}

// AddWarn increments a user's warning counter and returns the new count.
func (s *Store) AddWarn(ctx context.Context, chatID, userID int64) (int, error) {
	var warns int
	err := s.db.QueryRow(ctx, `
		INSERT INTO warns (chat_id, user_id, warns) VALUES ($1, $2, 1)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET warns = warns.warns + 1
		RETURNING warns
	`, chatID, userID).Scan(&warns)
	if err != nil {
		return 0, fmt.Errorf("add warn: %w", err)
	}
	return warns, nil
}

// ResetWarns zeroes a user's warning counter
func (s *Store) ResetWarns(ctx context.Context, chatID, userID int64) error {
	_, err := s.db.Exec(ctx, `UPDATE warns SET warns = 0 WHERE chat_id = $1 AND user_id = $2`, chatID, userID)
	return err
}

// SetNote saves or replaces a named note for a chat
func (s *Store) SetNote(ctx context.Context, chatID int64, name, body string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO chat_notes (chat_id, name, body) VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, name) DO UPDATE SET body = EXCLUDED.body
	`, chatID, name, body)
	return err
}

// GetNote returns a note body and whether it exists
func (s *Store) GetNote(ctx context.Context, chatID int64, name string) (string, bool, error) {
	var body string
	err := s.db.QueryRow(ctx, `SELECT body FROM chat_notes WHERE chat_id = $1 AND name = $2`, chatID, name).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return body, true, nil
}

// AddXP adds message activity points for a chat member
func (s *Store) AddXP(ctx context.Context, chatID, userID int64, amount int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO xp (chat_id, user_id, xp) VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET xp = xp.xp + EXCLUDED.xp
	`, chatID, userID, amount)
	return err
}

// GetXP returns a member's points, zero when unrecorded
func (s *Store) GetXP(ctx context.Context, chatID, userID int64) (int64, error) {
	var xp int64
	err := s.db.QueryRow(ctx, `SELECT xp FROM xp WHERE chat_id = $1 AND user_id = $2`, chatID, userID).Scan(&xp)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return xp, nil
}

// AntiLinkEnabled reports the anti-link toggle for a chat, seeding the
// default (enabled) row on first sight.
func (s *Store) AntiLinkEnabled(ctx context.Context, chatID int64) (bool, error) {
	if _, err := s.db.Exec(ctx, `INSERT INTO chat_settings (chat_id) VALUES ($1) ON CONFLICT (chat_id) DO NOTHING`, chatID); err != nil {
		return false, err
	}
	var enabled bool
	if err := s.db.QueryRow(ctx, `SELECT anti_link FROM chat_settings WHERE chat_id = $1`, chatID).Scan(&enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// SetAntiLink flips the anti-link toggle for a chat
func (s *Store) SetAntiLink(ctx context.Context, chatID int64, enabled bool) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO chat_settings (chat_id, anti_link) VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE SET anti_link = EXCLUDED.anti_link
	`, chatID, enabled)
	return err
}

// CoupleOfDay returns the chat's couple for the given UTC day (YYYY-MM-DD),
// drawing a fresh random pair from the xp rows when none exists yet.
func (s *Store) CoupleOfDay(ctx context.Context, chatID int64, day string) (int64, int64, error) {
	var user1, user2 int64
	err := s.db.QueryRow(ctx, `SELECT user1_id, user2_id FROM couples WHERE chat_id = $1 AND day = $2`, chatID, day).Scan(&user1, &user2)
	if err == nil {
		return user1, user2, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, err
	}

	rows, err := s.db.Query(ctx, `SELECT user_id FROM xp WHERE chat_id = $1 ORDER BY RANDOM() LIMIT 2`, chatID)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	var picked []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, 0, err
		}
		picked = append(picked, id)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	if len(picked) < 2 {
		return 0, 0, ErrNotEnoughMembers
	}

	user1, user2 = picked[0], picked[1]
	if _, err := s.db.Exec(ctx, `
		INSERT INTO couples (chat_id, day, user1_id, user2_id) VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id, day) DO NOTHING
	`, chatID, day, user1, user2); err != nil {
		return 0, 0, err
	}
	return user1, user2, nil
}

// Stats returns the number of known chats and recorded member rows
func (s *Store) Stats(ctx context.Context) (int64, int64, error) {
	var chats, members int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM known_chats`).Scan(&chats); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM xp`).Scan(&members); err != nil {
		return 0, 0, err
	}
	return chats, members, nil
}
