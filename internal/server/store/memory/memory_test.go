package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"collabhub/platform/internal/models"
	"collabhub/platform/internal/server/store"
)

func authUser(id, email string) store.AuthUser {
	return store.AuthUser{
		ID:           id,
		Email:        email,
		PasswordHash: "hash",
		Metadata:     models.SessionMetadata{Name: "Ada", Role: models.RoleStudent},
		CreatedAt:    time.Now().UTC(),
	}
}

func TestCreateAuthUserRejectsDuplicateEmail(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateAuthUser(ctx, authUser("u1", "ada@example.com")); err != nil {
		t.Fatal(err)
	}
	err := s.CreateAuthUser(ctx, authUser("u2", "ada@example.com"))
	if !errors.Is(err, store.ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestProvisionProfilesIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	s.CreateAuthUser(ctx, authUser("u1", "ada@example.com"))
	s.CreateAuthUser(ctx, authUser("u2", "eve@example.com"))

	created, err := s.ProvisionProfiles(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if created != 2 {
		t.Fatalf("created = %d, want 2", created)
	}

	created, err = s.ProvisionProfiles(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if created != 0 {
		t.Fatalf("second run created = %d, want 0", created)
	}

	profile, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if profile.Email != "ada@example.com" || profile.Name != "Ada" {
		t.Fatalf("profile = %+v", profile)
	}
}

func TestRowLifecycleAppendsEvents(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	row := store.Row{
		ID:        "t1",
		Table:     models.TableTasks,
		ProjectID: "p1",
		Doc:       json.RawMessage(`{"id":"t1","project_id":"p1","status":"todo"}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.InsertRow(ctx, row); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateRow(ctx, models.TableTasks, "t1", json.RawMessage(`{"id":"t1","project_id":"p1","status":"done"}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DeleteRow(ctx, models.TableTasks, "t1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DeleteRow(ctx, models.TableTasks, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}

	events, err := s.ListChangeEvents(ctx, store.Offset{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	want := []models.ChangeType{models.ChangeInsert, models.ChangeUpdate, models.ChangeDelete}
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Fatalf("event %d = %s, want %s", i, ev.Type, want[i])
		}
	}
}

func TestListChangeEventsRespectsOffset(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"a", "b", "c"} {
		s.InsertRow(ctx, store.Row{
			ID:        id,
			Table:     models.TableNotes,
			ProjectID: "p1",
			Doc:       json.RawMessage(`{"id":"` + id + `"}`),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	all, _ := s.ListChangeEvents(ctx, store.Offset{}, 10)
	if len(all) != 3 {
		t.Fatalf("events = %d", len(all))
	}

	rest, _ := s.ListChangeEvents(ctx, store.Offset{
		LastEventTime: all[0].CommitTime,
		LastEventID:   all[0].ID,
	}, 10)
	for _, ev := range rest {
		if ev.ID == all[0].ID {
			t.Fatal("cursor must exclude the already seen event")
		}
	}
}

func TestInsertRowRejectsUnknownTable(t *testing.T) {
	s := New()
	_, err := s.InsertRow(context.Background(), store.Row{ID: "x", Table: "secrets"})
	if !errors.Is(err, store.ErrUnknownTable) {
		t.Fatalf("err = %v, want ErrUnknownTable", err)
	}
}

func TestRefreshSessionRevocation(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	s.CreateRefreshSession(ctx, store.RefreshSession{
		ID: "s1", UserID: "u1", TokenHash: "h1", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	})
	s.CreateRefreshSession(ctx, store.RefreshSession{
		ID: "s2", UserID: "u1", TokenHash: "h2", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	})

	if err := s.RevokeRefreshSessionsByUser(ctx, "u1", now); err != nil {
		t.Fatal(err)
	}
	for _, hash := range []string{"h1", "h2"} {
		sess, err := s.GetRefreshSession(ctx, hash)
		if err != nil {
			t.Fatal(err)
		}
		if sess.RevokedAt == nil {
			t.Fatalf("session %s not revoked", sess.ID)
		}
	}
}
