package infrastructure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/kiwix-monitor-go/internal/domain"
)

func newTestCenter(method string) (*NotificationCenter, *[][]string) {
	center := NewNotificationCenter(domain.NotificationConfig{Enabled: true, Method: method}, nil)
	var calls [][]string
	center.run = func(name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		return nil
	}
	return center, &calls
}

func TestNotificationCenter_RequiresChannel(t *testing.T) {
	center, _ := newTestCenter("none")

	err := center.Notify(1, domain.Notification{ChannelID: "downloads"})
	assert.Error(t, err)

	require.NoError(t, center.CreateChannel(domain.NotificationChannel{ID: "downloads"}))
	assert.True(t, center.ChannelExists("downloads"))
	require.NoError(t, center.Notify(1, domain.Notification{ChannelID: "downloads", Title: "Wikipedia"}))

	n, ok := center.Get(1)
	require.True(t, ok)
	assert.Equal(t, domain.NotificationID(1), n.ID)
	assert.Equal(t, "Wikipedia", n.Title)
}

func TestNotificationCenter_CancelAndList(t *testing.T) {
	center, _ := newTestCenter("none")

	require.NoError(t, center.Notify(34, domain.Notification{Title: "b"}))
	require.NoError(t, center.Notify(1, domain.Notification{Title: "a"}))

	list := center.List()
	require.Len(t, list, 2)
	assert.Equal(t, domain.NotificationID(1), list[0].ID)

	require.NoError(t, center.Cancel(1))
	require.NoError(t, center.Cancel(1))
	_, ok := center.Get(1)
	assert.False(t, ok)
	assert.Len(t, center.List(), 1)
}

func TestNotificationCenter_TimeoutRemovesNotification(t *testing.T) {
	center, _ := newTestCenter("none")
	defer center.Close()

	require.NoError(t, center.Notify(34, domain.Notification{Title: "done", TimeoutAfter: 20 * time.Millisecond}))

	assert.Eventually(t, func() bool {
		_, ok := center.Get(34)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestNotificationCenter_RepostResetsTimeout(t *testing.T) {
	center, _ := newTestCenter("none")
	defer center.Close()

	require.NoError(t, center.Notify(34, domain.Notification{Title: "first", TimeoutAfter: 30 * time.Millisecond}))
	require.NoError(t, center.Notify(34, domain.Notification{Title: "second"}))

	time.Sleep(60 * time.Millisecond)
	n, ok := center.Get(34)
	require.True(t, ok)
	assert.Equal(t, "second", n.Title)
}

func TestNotificationCenter_ForwardsResultsToDesktop(t *testing.T) {
	center, calls := newTestCenter("notify-send")

	require.NoError(t, center.Notify(1, domain.Notification{Title: "progress", Ongoing: true}))
	assert.Empty(t, *calls, "ongoing notifications stay in the tray")

	require.NoError(t, center.Notify(34, domain.Notification{Title: "Wikipedia", Text: "Download complete", AutoCancel: true}))
	require.Len(t, *calls, 1)
	assert.Equal(t, []string{"notify-send", "Wikipedia", "Download complete"}, (*calls)[0])
}

func TestNotificationCenter_OSAScriptEscaping(t *testing.T) {
	center, calls := newTestCenter("osascript")

	require.NoError(t, center.Notify(34, domain.Notification{Title: `Say "hi"`, Text: "ok", AutoCancel: true}))
	require.Len(t, *calls, 1)
	assert.Equal(t, "osascript", (*calls)[0][0])
	assert.Contains(t, (*calls)[0][2], `with title "Say \"hi\""`)
}

func TestNotificationCenter_DisabledSkipsDesktop(t *testing.T) {
	center, calls := newTestCenter("notify-send")
	center.SetConfig(domain.NotificationConfig{Enabled: false, Method: "notify-send"})

	require.NoError(t, center.Notify(34, domain.Notification{Title: "x", AutoCancel: true}))
	assert.Empty(t, *calls)
	_, ok := center.Get(34)
	assert.True(t, ok, "tray still records the notification")
}
