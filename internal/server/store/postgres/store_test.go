package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"collabhub/platform/internal/models"
	"collabhub/platform/internal/server/store"
)

// Integration tests run against a real database with the schema from
// schema.sql applied. They skip when no database is reachable.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("COLLABHUB_TEST_DB")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("COLLABHUB_TEST_DB or DATABASE_URL not set")
	}
	pool, err := NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func TestAuthUserAndProfileRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	email := id + "@example.com"
	user := store.AuthUser{
		ID:           id,
		Email:        email,
		PasswordHash: "hash",
		Metadata:     models.SessionMetadata{Name: "Ada", Role: models.RoleStudent},
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.CreateAuthUser(ctx, user); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateAuthUser(ctx, user); !errors.Is(err, store.ErrEmailTaken) {
		t.Fatalf("duplicate err = %v, want ErrEmailTaken", err)
	}

	got, err := s.GetAuthUserByEmail(ctx, email)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != id || got.Metadata.Name != "Ada" {
		t.Fatalf("user = %+v", got)
	}

	if _, err := s.GetProfile(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("profile before provisioning err = %v, want ErrNotFound", err)
	}
	if _, err := s.ProvisionProfiles(ctx, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	profile, err := s.GetProfile(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if profile.Email != email || profile.Role != models.RoleStudent {
		t.Fatalf("profile = %+v", profile)
	}

	bio := "integration test"
	updated, err := s.UpdateProfile(ctx, id, store.ProfileUpdate{Bio: &bio})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Bio == nil || *updated.Bio != bio {
		t.Fatalf("bio = %v", updated.Bio)
	}
}

func TestRowCRUDWritesOutbox(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	projectID := uuid.NewString()
	rowID := uuid.NewString()
	doc, _ := json.Marshal(map[string]string{"id": rowID, "project_id": projectID, "status": models.TaskTodo})

	before := time.Now().UTC()
	now := time.Now().UTC()
	if _, err := s.InsertRow(ctx, store.Row{
		ID:        rowID,
		Table:     models.TableTasks,
		ProjectID: projectID,
		Doc:       doc,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}

	updatedDoc, _ := json.Marshal(map[string]string{"id": rowID, "project_id": projectID, "status": models.TaskDone})
	if _, err := s.UpdateRow(ctx, models.TableTasks, rowID, updatedDoc); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DeleteRow(ctx, models.TableTasks, rowID); err != nil {
		t.Fatal(err)
	}

	events, err := s.ListChangeEvents(ctx, store.Offset{LastEventTime: before.Add(-time.Second)}, 100)
	if err != nil {
		t.Fatal(err)
	}
	var mine []models.ChangeEvent
	for _, ev := range events {
		if ev.ProjectID == projectID {
			mine = append(mine, ev)
		}
	}
	if len(mine) != 3 {
		t.Fatalf("events = %d, want 3", len(mine))
	}
	want := []models.ChangeType{models.ChangeInsert, models.ChangeUpdate, models.ChangeDelete}
	for i, ev := range mine {
		if ev.Type != want[i] {
			t.Fatalf("event %d = %s, want %s", i, ev.Type, want[i])
		}
	}
}
