package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tarottracker/internal/models"
)

// ErrSessionNotFound indicates a lookup matched no row.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository handles persistence of reading sessions. The readings of
// a session live in a jsonb column, so every write replaces the whole array.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_name, COALESCE(location, ''), COALESCE(session_date, ''), COALESCE(reading_price, 0), COALESCE(readings, '[]'::jsonb), created_at`

// Insert creates a new session row and fills in its id and created_at.
func (r *SessionRepository) Insert(ctx context.Context, session *models.Session) (*models.Session, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	readings, err := marshalReadings(session.Readings)
	if err != nil {
		return nil, err
	}
	const query = `
		INSERT INTO reading_sessions (id, user_name, location, session_date, reading_price, readings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		session.ID,
		session.UserName,
		session.Location,
		session.SessionDate,
		session.ReadingPrice,
		readings,
	).Scan(&session.CreatedAt)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Update rewrites a session row by id. An empty session date is left out of
// the statement so a blank in-memory value never clobbers a valid stored one.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		return errors.New("repository: session id is required")
	}
	readings, err := marshalReadings(session.Readings)
	if err != nil {
		return err
	}

	sets := []string{"user_name = $2", "location = $3", "reading_price = $4", "readings = $5"}
	args := []interface{}{session.ID, session.UserName, session.Location, session.ReadingPrice, readings}
	if strings.TrimSpace(session.SessionDate) != "" {
		sets = append(sets, fmt.Sprintf("session_date = $%d", len(args)+1))
		args = append(args, session.SessionDate)
	}

	query := fmt.Sprintf("UPDATE reading_sessions SET %s WHERE id = $1", strings.Join(sets, ", "))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetByID fetches one session row.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM reading_sessions WHERE id = $1`, sessionColumns)
	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

// FindByKey looks up the row matching a (user, location, date) tuple.
func (r *SessionRepository) FindByKey(ctx context.Context, user, location, date string) (*models.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM reading_sessions
		WHERE user_name = $1 AND location = $2 AND session_date = $3
		LIMIT 1
	`, sessionColumns)
	session, err := scanSession(r.db.QueryRowContext(ctx, query, user, location, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

// ListByUser returns all of a user's sessions, newest date first.
func (r *SessionRepository) ListByUser(ctx context.Context, user string) ([]models.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM reading_sessions
		WHERE user_name = $1
		ORDER BY session_date DESC, created_at DESC
	`, sessionColumns)
	return r.querySessions(ctx, query, user)
}

// Filter narrows a session fetch. UserName matches case-insensitively but
// exactly; Location is a case-insensitive substring; the date bounds are
// inclusive and compared as stored text (ISO dates sort correctly).
type Filter struct {
	UserName  string
	StartDate string
	EndDate   string
	Location  string
	Limit     int
}

// ListFiltered returns sessions matching the filter, newest date first.
func (r *SessionRepository) ListFiltered(ctx context.Context, filter Filter) ([]models.Session, error) {
	if strings.TrimSpace(filter.UserName) == "" {
		return nil, errors.New("repository: user name is required")
	}

	conditions := []string{"LOWER(user_name) = LOWER($1)"}
	args := []interface{}{filter.UserName}
	if filter.StartDate != "" {
		args = append(args, filter.StartDate)
		conditions = append(conditions, fmt.Sprintf("session_date >= $%d", len(args)))
	}
	if filter.EndDate != "" {
		args = append(args, filter.EndDate)
		conditions = append(conditions, fmt.Sprintf("session_date <= $%d", len(args)))
	}
	if filter.Location != "" {
		args = append(args, "%"+filter.Location+"%")
		conditions = append(conditions, fmt.Sprintf("location ILIKE $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s FROM reading_sessions
		WHERE %s
		ORDER BY session_date DESC, created_at DESC
	`, sessionColumns, strings.Join(conditions, " AND "))
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return r.querySessions(ctx, query, args...)
}

// ListSince returns every user's sessions dated on or after the given ISO
// date, newest first. Used by the notification heuristics window.
func (r *SessionRepository) ListSince(ctx context.Context, sinceDate string) ([]models.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM reading_sessions
		WHERE session_date >= $1
		ORDER BY session_date DESC, created_at DESC
	`, sessionColumns)
	return r.querySessions(ctx, query, sinceDate)
}

// DistinctLocations returns distinct location values for a user, optionally
// narrowed to a case-insensitive substring match.
func (r *SessionRepository) DistinctLocations(ctx context.Context, user, match string) ([]string, error) {
	conditions := []string{"LOWER(user_name) = LOWER($1)", "location IS NOT NULL", "location <> ''"}
	args := []interface{}{user}
	if match != "" {
		args = append(args, "%"+match+"%")
		conditions = append(conditions, fmt.Sprintf("location ILIKE $%d", len(args)))
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT location FROM reading_sessions
		WHERE %s
		ORDER BY location
	`, strings.Join(conditions, " AND "))
	return r.queryStrings(ctx, query, args...)
}

// DistinctUsers returns every user name present in the store.
func (r *SessionRepository) DistinctUsers(ctx context.Context) ([]string, error) {
	const query = `
		SELECT DISTINCT user_name FROM reading_sessions
		WHERE user_name IS NOT NULL AND user_name <> ''
		ORDER BY user_name
	`
	return r.queryStrings(ctx, query)
}

func (r *SessionRepository) querySessions(ctx context.Context, query string, args ...interface{}) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepository) queryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var readings []byte
	if err := row.Scan(
		&s.ID,
		&s.UserName,
		&s.Location,
		&s.SessionDate,
		&s.ReadingPrice,
		&readings,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(readings, &s.Readings); err != nil {
		return nil, fmt.Errorf("repository: decode readings: %w", err)
	}
	return &s, nil
}

func marshalReadings(readings []models.Reading) ([]byte, error) {
	if readings == nil {
		readings = []models.Reading{}
	}
	data, err := json.Marshal(readings)
	if err != nil {
		return nil, fmt.Errorf("repository: encode readings: %w", err)
	}
	return data, nil
}
