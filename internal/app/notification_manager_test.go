package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
)

func newTestNotificationManager() (*NotificationManager, *fakeSurface) {
	surface := newFakeSurface()
	return NewNotificationManager(surface, testNotificationConfig(), nil), surface
}

func TestShowProgress_PostsAtBaseID(t *testing.T) {
	m, surface := newTestNotificationManager()

	op := &domain.Operation{ID: 7, Status: domain.StatusDownloading, Title: "Wikipedia", Progress: 42}
	require.NoError(t, m.ShowProgress(op))

	n, ok := surface.notification(7)
	require.True(t, ok)
	assert.Equal(t, "Wikipedia", n.Title)
	assert.Equal(t, 42, n.Progress)
	assert.True(t, n.Ongoing)
	assert.True(t, n.Silent)
	assert.False(t, n.AutoCancel)
	assert.Equal(t, "7", n.Group)
	assert.Equal(t, domain.DefaultChannelID, n.ChannelID)
}

func TestShowProgress_ReusesBuilder(t *testing.T) {
	m, surface := newTestNotificationManager()

	op := &domain.Operation{ID: 7, Status: domain.StatusDownloading, Title: "Wikipedia"}
	for p := 0; p <= 100; p += 25 {
		op.Progress = p
		require.NoError(t, m.ShowProgress(op))
	}

	assert.Equal(t, 1, m.BuilderCount())
	assert.Equal(t, 1, surface.channelCreates)
	n, _ := surface.notification(7)
	assert.Equal(t, 100, n.Progress)
}

func TestEnsureChannel_CreatesOnce(t *testing.T) {
	m, surface := newTestNotificationManager()

	require.NoError(t, m.EnsureChannel())
	require.NoError(t, m.EnsureChannel())

	assert.Equal(t, 1, surface.channelCreates)
	ch := surface.channels[domain.DefaultChannelID]
	assert.Equal(t, domain.ImportanceHigh, ch.Importance)
	assert.False(t, ch.Sound)
	assert.False(t, ch.Vibration)
}

func TestShowCompleted_NeverCollidesWithProgressSlot(t *testing.T) {
	for _, id := range []int64{0, 1, 2, 33, 34, 66, 1000, -5} {
		m, surface := newTestNotificationManager()
		op := &domain.Operation{ID: id, Status: domain.StatusDownloading, Title: "Archive"}

		require.NoError(t, m.ShowProgress(op))
		op.MarkCompleted()
		require.NoError(t, m.ShowCompleted(op, "Archive"))

		ids, err := domain.NewOperationNotificationID(id)
		require.NoError(t, err)

		assert.NotEqual(t, ids.Base(), ids.Completed())
		assert.True(t, surface.cancelled(ids.Base()), "progress slot cancelled for %d", id)
		assert.True(t, surface.cancelled(ids.StaleCompleted()), "stale slot cancelled for %d", id)
		_, live := surface.notification(ids.Base())
		assert.False(t, live)
		n, ok := surface.notification(ids.Completed())
		require.True(t, ok)
		assert.Equal(t, "Archive", n.Title)
	}
}

func TestShowCompleted_Content(t *testing.T) {
	m, surface := newTestNotificationManager()

	op := &domain.Operation{ID: 1, FileRef: "/data/wikipedia_en_all.zim"}
	op.MarkCompleted()
	require.NoError(t, m.ShowCompleted(op, "Wikipedia"))

	n, ok := surface.notification(34)
	require.True(t, ok)
	assert.Equal(t, "Download complete", n.Text)
	assert.True(t, n.AutoCancel)
	assert.False(t, n.Ongoing)
	assert.Equal(t, domain.DefaultCompletedTimeout, n.TimeoutAfter)
	require.NotNil(t, n.Intent)
	assert.Equal(t, domain.ActionOpenDownload, n.Intent.Action)
	assert.Equal(t, "wikipedia_en_all", n.Intent.Extras["title_key"])
}

func TestShowCompleted_FailureText(t *testing.T) {
	m, surface := newTestNotificationManager()

	op := &domain.Operation{ID: 3, Title: "Wiktionary"}
	op.MarkFailed(errors.New("disk full"))
	require.NoError(t, m.ShowCompleted(op, ""))

	n, ok := surface.notification(36)
	require.True(t, ok)
	assert.Equal(t, "Wiktionary", n.Title)
	assert.Equal(t, "Download failed: disk full", n.Text)
}

func TestCancel_OnlyBaseSlot(t *testing.T) {
	m, surface := newTestNotificationManager()

	op := &domain.Operation{ID: 5, Title: "Archive"}
	op.MarkCompleted()
	require.NoError(t, m.ShowCompleted(op, "Archive"))
	surface.cancels = nil

	require.NoError(t, m.Cancel(5))

	assert.Equal(t, []domain.NotificationID{5}, surface.cancels)
	_, ok := surface.notification(38)
	assert.True(t, ok, "completed notification left to its own timeout")
}

func TestShowPaused(t *testing.T) {
	m, surface := newTestNotificationManager()

	op := &domain.Operation{ID: 9, Status: domain.StatusPaused, Title: "Archive", Progress: 10}
	require.NoError(t, m.ShowPaused(op))

	n, ok := surface.notification(9)
	require.True(t, ok)
	assert.Equal(t, "Paused", n.Text)
	assert.False(t, n.Ongoing)
}

func TestNotifications_Disabled(t *testing.T) {
	surface := newFakeSurface()
	config := testNotificationConfig()
	config.Enabled = false
	m := NewNotificationManager(surface, config, nil)

	require.NoError(t, m.ShowProgress(&domain.Operation{ID: 1, Status: domain.StatusQueued}))
	assert.Empty(t, surface.notifies)
}

func TestNotifications_RejectOutOfRangeIDs(t *testing.T) {
	m, _ := newTestNotificationManager()

	err := m.ShowProgress(&domain.Operation{ID: int64(domain.ForegroundNotificationID)})
	assert.ErrorIs(t, err, domain.ErrReservedNotificationID)
}

func TestRelease_DropsBuilders(t *testing.T) {
	m, _ := newTestNotificationManager()

	require.NoError(t, m.ShowProgress(&domain.Operation{ID: 1, Status: domain.StatusQueued}))
	require.NoError(t, m.ShowProgress(&domain.Operation{ID: 2, Status: domain.StatusQueued}))
	assert.Equal(t, 2, m.BuilderCount())

	m.Release()
	assert.Equal(t, 0, m.BuilderCount())
}
