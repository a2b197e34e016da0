// Package memory holds an in-memory Store used by tests and by local
// development runs that have no database configured.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"collabhub/platform/internal/models"
	"collabhub/platform/internal/server/store"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]store.AuthUser // by id
	byEmail  map[string]string
	profiles map[string]models.User
	sessions map[string]store.RefreshSession // by token hash
	rows     map[string]store.Row            // by id
	events   []models.ChangeEvent
	now      func() time.Time
}

func New() *Store {
	return &Store{
		users:    make(map[string]store.AuthUser),
		byEmail:  make(map[string]string),
		profiles: make(map[string]models.User),
		sessions: make(map[string]store.RefreshSession),
		rows:     make(map[string]store.Row),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) CreateAuthUser(_ context.Context, user store.AuthUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[user.Email]; ok {
		return store.ErrEmailTaken
	}
	s.users[user.ID] = user
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *Store) GetAuthUserByEmail(_ context.Context, email string) (store.AuthUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return store.AuthUser{}, store.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetAuthUserByID(_ context.Context, userID string) (store.AuthUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return store.AuthUser{}, store.ErrNotFound
	}
	return user, nil
}

func (s *Store) GetProfile(_ context.Context, userID string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return profile, nil
}

func (s *Store) UpdateProfile(_ context.Context, userID string, update store.ProfileUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	if update.Name != nil {
		profile.Name = *update.Name
	}
	if update.Bio != nil {
		profile.Bio = update.Bio
	}
	if update.AvatarURL != nil {
		profile.AvatarURL = update.AvatarURL
	}
	if update.University != nil {
		profile.University = update.University
	}
	if update.Major != nil {
		profile.Major = update.Major
	}
	profile.UpdatedAt = s.now()
	s.profiles[userID] = profile
	return profile, nil
}

func (s *Store) ProvisionProfiles(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := 0
	for id, user := range s.users {
		if _, ok := s.profiles[id]; ok {
			continue
		}
		s.profiles[id] = models.User{
			ID:        id,
			Email:     user.Email,
			Name:      user.Metadata.Name,
			Role:      user.Metadata.Role,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created++
	}
	return created, nil
}

func (s *Store) CreateRefreshSession(_ context.Context, session store.RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.TokenHash] = session
	return nil
}

func (s *Store) GetRefreshSession(_ context.Context, tokenHash string) (store.RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[tokenHash]
	if !ok {
		return store.RefreshSession{}, store.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) RevokeRefreshSession(_ context.Context, sessionID string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, session := range s.sessions {
		if session.ID == sessionID {
			session.RevokedAt = &revokedAt
			s.sessions[hash] = session
		}
	}
	return nil
}

func (s *Store) RevokeRefreshSessionsByUser(_ context.Context, userID string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, session := range s.sessions {
		if session.UserID == userID && session.RevokedAt == nil {
			session.RevokedAt = &revokedAt
			s.sessions[hash] = session
		}
	}
	return nil
}

func (s *Store) InsertRow(_ context.Context, row store.Row) (store.Row, error) {
	if !store.KnownTable(row.Table) {
		return store.Row{}, store.ErrUnknownTable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.ID] = row
	s.appendEvent(row, models.ChangeInsert)
	return row, nil
}

func (s *Store) UpdateRow(_ context.Context, table, id string, doc json.RawMessage) (store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Table != table {
		return store.Row{}, store.ErrNotFound
	}
	row.Doc = doc
	row.UpdatedAt = s.now()
	s.rows[id] = row
	s.appendEvent(row, models.ChangeUpdate)
	return row, nil
}

func (s *Store) DeleteRow(_ context.Context, table, id string) (store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Table != table {
		return store.Row{}, store.ErrNotFound
	}
	delete(s.rows, id)
	s.appendEvent(row, models.ChangeDelete)
	return row, nil
}

func (s *Store) ListRows(_ context.Context, table, projectID string, limit int) ([]store.Row, error) {
	if !store.KnownTable(table) {
		return nil, store.ErrUnknownTable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Row
	for _, row := range s.rows {
		if row.Table != table {
			continue
		}
		if projectID != "" && row.ProjectID != projectID {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ProjectSummary(_ context.Context, projectID string) (models.ProjectSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := models.ProjectSummary{ProjectID: projectID}
	for _, row := range s.rows {
		if row.ProjectID != projectID {
			continue
		}
		switch row.Table {
		case models.TableTasks:
			summary.TaskCount++
			var task models.Task
			if err := json.Unmarshal(row.Doc, &task); err == nil && task.Status == models.TaskDone {
				summary.DoneTaskCount++
			}
		case models.TableNotes:
			summary.NoteCount++
		case models.TableMessages:
			summary.MessageCount++
		case models.TableFiles:
			summary.FileCount++
		}
	}
	return summary, nil
}

func (s *Store) ListChangeEvents(_ context.Context, offset store.Offset, limit int) ([]models.ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChangeEvent
	for _, event := range s.events {
		if !after(event, offset) {
			continue
		}
		out = append(out, event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) appendEvent(row store.Row, changeType models.ChangeType) {
	s.events = append(s.events, models.ChangeEvent{
		ID:         uuid.NewString(),
		Table:      row.Table,
		Type:       changeType,
		ProjectID:  row.ProjectID,
		Record:     row.Doc,
		CommitTime: s.now(),
	})
}

func after(event models.ChangeEvent, offset store.Offset) bool {
	if event.CommitTime.After(offset.LastEventTime) {
		return true
	}
	return event.CommitTime.Equal(offset.LastEventTime) && event.ID > offset.LastEventID
}
