package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow implements pgx.Row over literal values.
type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan: expected %d destinations, got %d", len(r.vals), len(dest))
	}
	for i, v := range r.vals {
		switch d := dest[i].(type) {
		case *int:
			*d = v.(int)
		case *int64:
			*d = v.(int64)
		case *string:
			*d = v.(string)
		case *bool:
			*d = v.(bool)
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}

// fakeRows implements pgx.Rows over a slice of literal rows.
type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	return fakeRow{vals: r.rows[r.idx-1]}.Scan(dest...)
}

// fakeDB routes statements to scripted results by SQL substring.
type fakeDB struct {
	rowResults   map[string]fakeRow
	queryResults map[string][][]any
	execLog      []string
	execErr      error
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	for key, row := range db.rowResults {
		if strings.Contains(sql, key) {
			return row
		}
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func (db *fakeDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	for key, rows := range db.queryResults {
		if strings.Contains(sql, key) {
			return &fakeRows{rows: rows}, nil
		}
	}
	return &fakeRows{}, nil
}

func (db *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	db.execLog = append(db.execLog, sql)
	return pgconn.CommandTag{}, db.execErr
}

func (db *fakeDB) Begin(_ context.Context) (pgx.Tx, error) {
	return nil, errors.New("transactions not supported by fakeDB")
}

func (db *fakeDB) executed(substr string) bool {
	for _, sql := range db.execLog {
		if strings.Contains(sql, substr) {
			return true
		}
	}
	return false
}

func TestAddWarnReturnsNewCount(t *testing.T) {
	db := &fakeDB{rowResults: map[string]fakeRow{
		"INSERT INTO warns": {vals: []any{3}},
	}}
	s := New(db)

	warns, err := s.AddWarn(context.Background(), -100, 42)
	require.NoError(t, err)
	assert.Equal(t, 3, warns)
}

func TestGetNoteMissing(t *testing.T) {
	s := New(&fakeDB{})

	body, ok, err := s.GetNote(context.Background(), -100, "rules")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, body)
}

func TestGetNoteFound(t *testing.T) {
	db := &fakeDB{rowResults: map[string]fakeRow{
		"FROM chat_notes": {vals: []any{"be nice"}},
	}}
	s := New(db)

	body, ok, err := s.GetNote(context.Background(), -100, "rules")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "be nice", body)
}

func TestGetXPDefaultsToZero(t *testing.T) {
	s := New(&fakeDB{})

	xp, err := s.GetXP(context.Background(), -100, 42)
	require.NoError(t, err)
	assert.Zero(t, xp)
}

func TestAntiLinkEnabledSeedsDefaultRow(t *testing.T) {
	db := &fakeDB{rowResults: map[string]fakeRow{
		"SELECT anti_link": {vals: []any{true}},
	}}
	s := New(db)

	enabled, err := s.AntiLinkEnabled(context.Background(), -100)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.True(t, db.executed("INSERT INTO chat_settings"), "expected the default row to be seeded")
}

func TestKnownChats(t *testing.T) {
	db := &fakeDB{queryResults: map[string][][]any{
		"FROM known_chats": {{int64(-100)}, {int64(-200)}},
	}}
	s := New(db)

	chats, err := s.KnownChats(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{-100, -200}, chats)
}

func TestMarkKnownChatIsUpsert(t *testing.T) {
	db := &fakeDB{}
	s := New(db)

	require.NoError(t, s.MarkKnownChat(context.Background(), -100))
	assert.True(t, db.executed("ON CONFLICT (chat_id) DO NOTHING"))
}

func TestCoupleOfDayReturnsExistingPair(t *testing.T) {
	db := &fakeDB{rowResults: map[string]fakeRow{
		"FROM couples": {vals: []any{int64(10), int64(20)}},
	}}
	s := New(db)

	user1, user2, err := s.CoupleOfDay(context.Background(), -100, "2026-08-23")
	require.NoError(t, err)
	assert.Equal(t, int64(10), user1)
	assert.Equal(t, int64(20), user2)
	assert.False(t, db.executed("INSERT INTO couples"), "existing pair must not be replaced")
}

func TestCoupleOfDayDrawsAndStoresNewPair(t *testing.T) {
	db := &fakeDB{
		queryResults: map[string][][]any{
			"ORDER BY RANDOM()": {{int64(1)}, {int64(2)}},
		},
	}
	s := New(db)

	user1, user2, err := s.CoupleOfDay(context.Background(), -100, "2026-08-23")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user1)
	assert.Equal(t, int64(2), user2)
	assert.True(t, db.executed("INSERT INTO couples"), "new pair must be persisted")
}

func TestCoupleOfDayNotEnoughMembers(t *testing.T) {
	db := &fakeDB{
		queryResults: map[string][][]any{
			"ORDER BY RANDOM()": {{int64(1)}},
		},
	}
	s := New(db)

	_, _, err := s.CoupleOfDay(context.Background(), -100, "2026-08-23")
	assert.ErrorIs(t, err, ErrNotEnoughMembers)
}

func TestStats(t *testing.T) {
	db := &fakeDB{rowResults: map[string]fakeRow{
		"FROM known_chats": {vals: []any{int64(7)}},
		"FROM xp":          {vals: []any{int64(99)}},
	}}
	s := New(db)

	chats, members, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), chats)
	assert.Equal(t, int64(99), members)
}
