package jobs

import (
	"context"
	"log"
	"time"

	"collabhub/platform/internal/server/store"
)

// StartProfileProvisioner creates profile rows for signed-up users on an
// interval. Signup deliberately does not create the profile itself, so
// a freshly registered client observes the row appearing shortly after
// the account exists.
func StartProfileProvisioner(ctx context.Context, st store.Store, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				created, err := st.ProvisionProfiles(tickCtx, time.Now().UTC())
				cancel()
				if err != nil {
					log.Printf("profile provisioner error: %v", err)
					continue
				}
				if created > 0 {
					log.Printf("profile provisioner created %d profiles", created)
				}
			}
		}
	}()
}
