package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateName reports a named create that collided with an
// existing active document for the same project.
var ErrDuplicateName = errors.New("an active timeline with that name already exists")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, password_hash)
		VALUES ($1, $2, $3)
	`, user.ID, user.Name, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByName(ctx context.Context, name string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, password_hash, created_at, updated_at
		FROM users
		WHERE name=$1
	`, name).Scan(&user.ID, &user.Name, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, password_hash, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.Name, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Projects and memberships

func (s *PostgresStore) GetProject(ctx context.Context, projectID int64) (Project, error) {
	var project Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, identifier, name, created_at
		FROM projects
		WHERE id=$1
	`, projectID).Scan(&project.ID, &project.Identifier, &project.Name, &project.CreatedAt)
	if err != nil {
		return Project{}, err
	}
	return project, nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, identifier, name string) (Project, error) {
	var project Project
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO projects (identifier, name)
		VALUES ($1, $2)
		RETURNING id, identifier, name, created_at
	`, identifier, name).Scan(&project.ID, &project.Identifier, &project.Name, &project.CreatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("create project: %w", err)
	}
	return project, nil
}

func (s *PostgresStore) CountProjects(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) AddProjectMember(ctx context.Context, projectID int64, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_memberships (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, projectID, userID, role)
	if err != nil {
		return fmt.Errorf("add project member: %w", err)
	}
	return nil
}

// GetProjectRole returns the member's role for a project, or "" for
// non-members (which maps to no permissions at all).
func (s *PostgresStore) GetProjectRole(ctx context.Context, userID string, projectID int64) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM project_memberships WHERE project_id=$1 AND user_id=$2
	`, projectID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read project role: %w", err)
	}
	return role, nil
}

// Timeline documents

const timelineColumns = `id, project_id, name, description, data, is_active, created_at, updated_at`

func scanTimeline(row *sql.Row) (Timeline, error) {
	var t Timeline
	err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.Data, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// FindActiveTimeline returns the most recently updated active document
// for (projectID, name), or nil when none exists. Should the active
// invariant ever be violated, recency decides deterministically.
func (s *PostgresStore) FindActiveTimeline(ctx context.Context, projectID int64, name string) (*Timeline, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+timelineColumns+`
		FROM timeline_documents
		WHERE project_id=$1 AND name=$2 AND is_active
		ORDER BY updated_at DESC
		LIMIT 1
	`, projectID, name)
	t, err := scanTimeline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active timeline: %w", err)
	}
	return &t, nil
}

// UpsertActiveTimeline replaces the active document's payload for
// (projectID, name), creating the row when none exists. The existing
// row is locked for the duration of the transaction so concurrent
// writers to the same key serialize; first-writes race through to the
// partial unique index on (project_id, name) WHERE is_active, where the
// conditional insert converges them onto a single row.
func (s *PostgresStore) UpsertActiveTimeline(ctx context.Context, projectID int64, name, data string) (Timeline, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Timeline{}, false, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+timelineColumns+`
		FROM timeline_documents
		WHERE project_id=$1 AND name=$2 AND is_active
		ORDER BY updated_at DESC
		LIMIT 1
		FOR UPDATE
	`, projectID, name)
	existing, err := scanTimeline(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Timeline{}, false, fmt.Errorf("lock active timeline: %w", err)
	}

	var result Timeline
	created := false
	if err == nil {
		result = existing
		result.Data = data
		if err := tx.QueryRowContext(ctx, `
			UPDATE timeline_documents
			SET data=$2, updated_at=NOW()
			WHERE id=$1
			RETURNING updated_at
		`, existing.ID, data).Scan(&result.UpdatedAt); err != nil {
			return Timeline{}, false, fmt.Errorf("update timeline: %w", err)
		}
	} else {
		var inserted bool
		row := tx.QueryRowContext(ctx, `
			INSERT INTO timeline_documents (project_id, name, data, is_active)
			VALUES ($1, $2, $3, TRUE)
			ON CONFLICT (project_id, name) WHERE is_active
			DO UPDATE SET data=EXCLUDED.data, updated_at=NOW()
			RETURNING `+timelineColumns+`, (xmax = 0)
		`, projectID, name, data)
		if err := row.Scan(
			&result.ID, &result.ProjectID, &result.Name, &result.Description,
			&result.Data, &result.IsActive, &result.CreatedAt, &result.UpdatedAt,
			&inserted,
		); err != nil {
			return Timeline{}, false, fmt.Errorf("insert timeline: %w", err)
		}
		created = inserted
	}

	if err := tx.Commit(); err != nil {
		return Timeline{}, false, fmt.Errorf("commit upsert tx: %w", err)
	}
	return result, created, nil
}

// CreateTimeline inserts a new active document under name, failing with
// ErrDuplicateName when one already exists. The conditional insert
// rides the same partial unique index as the upsert, so concurrent
// creates cannot both succeed.
func (s *PostgresStore) CreateTimeline(ctx context.Context, projectID int64, name, description, data string) (Timeline, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO timeline_documents (project_id, name, description, data, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (project_id, name) WHERE is_active DO NOTHING
		RETURNING `+timelineColumns+`
	`, projectID, name, description, data)
	t, err := scanTimeline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Timeline{}, ErrDuplicateName
	}
	if err != nil {
		return Timeline{}, fmt.Errorf("create timeline: %w", err)
	}
	return t, nil
}

// ListTimelineNames returns the distinct document names a project has
// ever used, active or not, matching the overview listing.
func (s *PostgresStore) ListTimelineNames(ctx context.Context, projectID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT name
		FROM timeline_documents
		WHERE project_id=$1
		ORDER BY name ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list timeline names: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan timeline name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline names: %w", err)
	}
	return names, nil
}

// Work-item progress source

// DoneRatios resolves completion percentages for the given issue ids in
// a single query. Unknown ids are simply absent from the result.
func (s *PostgresStore) DoneRatios(ctx context.Context, ids []int64) (map[int64]int, error) {
	ratios := make(map[int64]int, len(ids))
	if len(ids) == 0 {
		return ratios, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, done_ratio FROM issues WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("load done ratios: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var issue Issue
		if err := rows.Scan(&issue.ID, &issue.DoneRatio); err != nil {
			return nil, fmt.Errorf("scan done ratio: %w", err)
		}
		ratios[issue.ID] = issue.DoneRatio
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate done ratios: %w", err)
	}
	return ratios, nil
}

// Refresh sessions (Postgres fallback when Redis is not configured)

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM refresh_sessions
		WHERE token_hash=$1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}
