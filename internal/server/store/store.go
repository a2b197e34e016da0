package store

import (
	"context"
	"encoding/json"
	"time"

	"collabhub/platform/internal/models"
)

// AuthUser is the credential row. The profile row is created separately
// by the provisioner, so a freshly signed-up user exists here before it
// exists in profiles.
type AuthUser struct {
	ID           string
	Email        string
	PasswordHash string
	Metadata     models.SessionMetadata
	CreatedAt    time.Time
}

type RefreshSession struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

type ProfileUpdate struct {
	Name       *string
	Bio        *string
	AvatarURL  *string
	University *string
	Major      *string
}

// Row is one entity record: the typed payload is kept as the JSON
// document the client submitted, the envelope fields are what the REST
// filters and the outbox need.
type Row struct {
	ID        string
	Table     string
	ProjectID string
	Doc       json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Offset marks how far the outbox poller has read.
type Offset struct {
	LastEventTime time.Time
	LastEventID   string
}

type Store interface {
	// Credentials and profiles.
	CreateAuthUser(ctx context.Context, user AuthUser) error
	GetAuthUserByEmail(ctx context.Context, email string) (AuthUser, error)
	GetAuthUserByID(ctx context.Context, userID string) (AuthUser, error)
	GetProfile(ctx context.Context, userID string) (models.User, error)
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (models.User, error)
	// ProvisionProfiles creates profile rows for auth users that do not
	// have one yet and returns how many it created.
	ProvisionProfiles(ctx context.Context, now time.Time) (int, error)

	// Refresh sessions.
	CreateRefreshSession(ctx context.Context, session RefreshSession) error
	GetRefreshSession(ctx context.Context, tokenHash string) (RefreshSession, error)
	RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error
	RevokeRefreshSessionsByUser(ctx context.Context, userID string, revokedAt time.Time) error

	// Entity rows. Every mutation appends a change event in the same
	// transaction.
	InsertRow(ctx context.Context, row Row) (Row, error)
	UpdateRow(ctx context.Context, table, id string, doc json.RawMessage) (Row, error)
	DeleteRow(ctx context.Context, table, id string) (Row, error)
	ListRows(ctx context.Context, table, projectID string, limit int) ([]Row, error)

	// Aggregates and the outbox.
	ProjectSummary(ctx context.Context, projectID string) (models.ProjectSummary, error)
	ListChangeEvents(ctx context.Context, offset Offset, limit int) ([]models.ChangeEvent, error)
}

// KnownTable reports whether the REST surface serves the table.
func KnownTable(table string) bool {
	switch table {
	case models.TableProjects, models.TableTasks, models.TableNotes,
		models.TableMessages, models.TableFiles, models.TablePortfolioItems,
		models.TableMentorRequests, models.TableReports:
		return true
	default:
		return false
	}
}
