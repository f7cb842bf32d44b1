package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
	"github.com/yourusername/kiwix-monitor-go/internal/infrastructure"
)

func TestCoordinator_PartialPayloadsKeepStoredFields(t *testing.T) {
	for _, driver := range []string{"gorm-sqlite", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			repo, err := infrastructure.NewOperationRepository(domain.StoreConfig{
				Driver: driver,
				DSN:    filepath.Join(t.TempDir(), "operations.db"),
			})
			require.NoError(t, err)
			t.Cleanup(func() { repo.Close() })

			validator, err := infrastructure.NewEventValidator()
			require.NoError(t, err)
			bridge := infrastructure.NewEngineBridge(validator, nil)

			surface := newFakeSurface()
			config := domain.DefaultConfig()
			config.Notification = testNotificationConfig()
			coord := NewSessionCoordinator(repo, bridge, surface, &fakeHost{}, config, nil, nil)
			require.NoError(t, coord.Start(context.Background(), "kiwix"))
			t.Cleanup(func() { coord.Stop() })

			flush := func() {
				require.NoError(t, coord.serializer.SubmitWait(context.Background(), func(ctx context.Context) {}))
			}

			for _, payload := range []string{
				`{"kind":"added","operation":{"id":1,"title":"Wikipedia","file_ref":"/sdcard/Kiwix/wikipedia_en_all.zim","total_bytes":4096}}`,
				`{"kind":"progress","operation":{"id":1,"progress":50}}`,
				`{"kind":"paused","operation":{"id":1}}`,
			} {
				_, err := bridge.Ingest([]byte(payload))
				require.NoError(t, err)
			}
			flush()

			paused, err := repo.FindByID(1)
			require.NoError(t, err)
			require.NotNil(t, paused)
			assert.Equal(t, domain.StatusPaused, paused.Status)
			assert.Equal(t, "Wikipedia", paused.Title)
			assert.Equal(t, 50, paused.Progress)
			assert.Equal(t, int64(4096), paused.TotalBytes)

			_, err = bridge.Ingest([]byte(`{"kind":"completed","operation":{"id":1}}`))
			require.NoError(t, err)
			flush()

			stored, err := repo.FindByID(1)
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, domain.StatusCompleted, stored.Status)
			assert.Equal(t, "Wikipedia", stored.Title)
			assert.Equal(t, "/sdcard/Kiwix/wikipedia_en_all.zim", stored.FileRef)
			assert.Equal(t, "wikipedia_en_all", stored.FileName)
			assert.Equal(t, int64(4096), stored.TotalBytes)
			assert.Equal(t, 100, stored.Progress)

			n, ok := surface.notification(34)
			require.True(t, ok)
			assert.Equal(t, "Wikipedia", n.Title)

			// the engine's live view keeps the title as well
			live, err := bridge.OperationsWithStatus(context.Background(), []domain.OperationStatus{domain.StatusCompleted})
			require.NoError(t, err)
			require.Len(t, live, 1)
			assert.Equal(t, "Wikipedia", live[0].Title)
		})
	}
}
