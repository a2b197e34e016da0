package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"collabhub/platform/internal/models"
	"collabhub/platform/internal/server/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateAuthUser(ctx context.Context, user store.AuthUser) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_users (id, email, password_hash, meta_name, meta_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Email, user.PasswordHash, user.Metadata.Name, user.Metadata.Role, user.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrEmailTaken
	}
	return err
}

func (s *Store) GetAuthUserByEmail(ctx context.Context, email string) (store.AuthUser, error) {
	var user store.AuthUser
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, meta_name, meta_role, created_at
		FROM auth_users
		WHERE email = $1
	`, email)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Metadata.Name, &user.Metadata.Role, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.AuthUser{}, store.ErrNotFound
	}
	return user, err
}

func (s *Store) GetAuthUserByID(ctx context.Context, userID string) (store.AuthUser, error) {
	var user store.AuthUser
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, meta_name, meta_role, created_at
		FROM auth_users
		WHERE id = $1
	`, userID)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Metadata.Name, &user.Metadata.Role, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.AuthUser{}, store.ErrNotFound
	}
	return user, err
}

func (s *Store) GetProfile(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, name, bio, avatar_url, role, university, major, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, userID)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Bio,
		&user.AvatarURL,
		&user.Role,
		&user.University,
		&user.Major,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, store.ErrNotFound
	}
	return user, err
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, update store.ProfileUpdate) (models.User, error) {
	_, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET name = COALESCE($2, name),
		    bio = COALESCE($3, bio),
		    avatar_url = COALESCE($4, avatar_url),
		    university = COALESCE($5, university),
		    major = COALESCE($6, major),
		    updated_at = now()
		WHERE id = $1
	`, userID, update.Name, update.Bio, update.AvatarURL, update.University, update.Major)
	if err != nil {
		return models.User{}, err
	}
	return s.GetProfile(ctx, userID)
}

func (s *Store) ProvisionProfiles(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, email, name, role, created_at, updated_at)
		SELECT u.id, u.email, u.meta_name, u.meta_role, $1, $1
		FROM auth_users u
		LEFT JOIN profiles p ON p.id = u.id
		WHERE p.id IS NULL
	`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) CreateRefreshSession(ctx context.Context, session store.RefreshSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_sessions (id, user_id, token_hash, created_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, session.ID, session.UserID, session.TokenHash, session.CreatedAt, session.ExpiresAt, session.RevokedAt)
	return err
}

func (s *Store) GetRefreshSession(ctx context.Context, tokenHash string) (store.RefreshSession, error) {
	var session store.RefreshSession
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at, revoked_at
		FROM refresh_sessions
		WHERE token_hash = $1
	`, tokenHash)
	err := row.Scan(&session.ID, &session.UserID, &session.TokenHash, &session.CreatedAt, &session.ExpiresAt, &session.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.RefreshSession{}, store.ErrSessionNotFound
	}
	return session, err
}

func (s *Store) RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE refresh_sessions SET revoked_at = $1 WHERE id = $2`, revokedAt, sessionID)
	return err
}

func (s *Store) RevokeRefreshSessionsByUser(ctx context.Context, userID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_sessions
		SET revoked_at = $1
		WHERE user_id = $2 AND revoked_at IS NULL
	`, revokedAt, userID)
	return err
}

func (s *Store) InsertRow(ctx context.Context, row store.Row) (store.Row, error) {
	if !store.KnownTable(row.Table) {
		return store.Row{}, store.ErrUnknownTable
	}
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO entity_rows (id, table_name, project_id, doc, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, row.ID, row.Table, row.ProjectID, row.Doc, row.CreatedAt, row.UpdatedAt)
		if err != nil {
			return err
		}
		return appendChangeEvent(ctx, tx, row, models.ChangeInsert)
	})
	return row, err
}

func (s *Store) UpdateRow(ctx context.Context, table, id string, doc json.RawMessage) (store.Row, error) {
	var updated store.Row
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE entity_rows
			SET doc = $3, updated_at = now()
			WHERE table_name = $1 AND id = $2
			RETURNING id, table_name, project_id, doc, created_at, updated_at
		`, table, id, doc)
		if err := scanRow(row, &updated); err != nil {
			return err
		}
		return appendChangeEvent(ctx, tx, updated, models.ChangeUpdate)
	})
	return updated, err
}

func (s *Store) DeleteRow(ctx context.Context, table, id string) (store.Row, error) {
	var deleted store.Row
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			DELETE FROM entity_rows
			WHERE table_name = $1 AND id = $2
			RETURNING id, table_name, project_id, doc, created_at, updated_at
		`, table, id)
		if err := scanRow(row, &deleted); err != nil {
			return err
		}
		return appendChangeEvent(ctx, tx, deleted, models.ChangeDelete)
	})
	return deleted, err
}

func (s *Store) ListRows(ctx context.Context, table, projectID string, limit int) ([]store.Row, error) {
	if !store.KnownTable(table) {
		return nil, store.ErrUnknownTable
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, table_name, project_id, doc, created_at, updated_at
		FROM entity_rows
		WHERE table_name = $1 AND ($2 = '' OR project_id = $2)
		ORDER BY created_at
		LIMIT $3
	`, table, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Row
	for rows.Next() {
		var r store.Row
		if err := rows.Scan(&r.ID, &r.Table, &r.ProjectID, &r.Doc, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ProjectSummary(ctx context.Context, projectID string) (models.ProjectSummary, error) {
	summary := models.ProjectSummary{ProjectID: projectID}
	row := s.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE table_name = 'tasks'),
			count(*) FILTER (WHERE table_name = 'tasks' AND doc->>'status' = 'done'),
			count(*) FILTER (WHERE table_name = 'notes'),
			count(*) FILTER (WHERE table_name = 'messages'),
			count(*) FILTER (WHERE table_name = 'files')
		FROM entity_rows
		WHERE project_id = $1
	`, projectID)
	err := row.Scan(
		&summary.TaskCount,
		&summary.DoneTaskCount,
		&summary.NoteCount,
		&summary.MessageCount,
		&summary.FileCount,
	)
	return summary, err
}

func (s *Store) ListChangeEvents(ctx context.Context, offset store.Offset, limit int) ([]models.ChangeEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, table_name, event_type, project_id, record, commit_time
		FROM change_events
		WHERE (commit_time, id) > ($1, $2)
		ORDER BY commit_time, id
		LIMIT $3
	`, offset.LastEventTime, offset.LastEventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChangeEvent
	for rows.Next() {
		var event models.ChangeEvent
		if err := rows.Scan(&event.ID, &event.Table, &event.Type, &event.ProjectID, &event.Record, &event.CommitTime); err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func appendChangeEvent(ctx context.Context, tx pgx.Tx, row store.Row, changeType models.ChangeType) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO change_events (id, table_name, event_type, project_id, record, commit_time)
		VALUES ($1, $2, $3, $4, $5, now())
	`, uuid.NewString(), row.Table, string(changeType), row.ProjectID, row.Doc)
	return err
}

func scanRow(row pgx.Row, out *store.Row) error {
	err := row.Scan(&out.ID, &out.Table, &out.ProjectID, &out.Doc, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
