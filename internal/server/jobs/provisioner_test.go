package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"collabhub/platform/internal/models"
	"collabhub/platform/internal/server/store"
	"collabhub/platform/internal/server/store/memory"
)

func TestProvisionerCreatesProfilesForNewUsers(t *testing.T) {
	st := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartProfileProvisioner(ctx, st, 10*time.Millisecond)

	err := st.CreateAuthUser(ctx, store.AuthUser{
		ID:           "u1",
		Email:        "ada@example.com",
		PasswordHash: "hash",
		Metadata:     models.SessionMetadata{Name: "Ada", Role: models.RoleStudent},
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		profile, err := st.GetProfile(ctx, "u1")
		if err == nil {
			if profile.Name != "Ada" || profile.Role != models.RoleStudent {
				t.Fatalf("profile = %+v", profile)
			}
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("profile never provisioned")
}
