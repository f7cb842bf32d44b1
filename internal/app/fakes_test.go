package app

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
)

// memRepo implements domain.OperationRepository in memory.
// Writes are instrumented so tests can assert there is never more than one in flight.
type memRepo struct {
	mu         sync.Mutex
	ops        map[int64]*domain.Operation
	upserts    int
	writeDelay time.Duration
	failWrites error

	inFlight    int32
	maxInFlight int32
}

func newMemRepo() *memRepo {
	return &memRepo{ops: make(map[int64]*domain.Operation)}
}

func (m *memRepo) enterWrite() func() {
	n := atomic.AddInt32(&m.inFlight, 1)
	for {
		peak := atomic.LoadInt32(&m.maxInFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&m.maxInFlight, peak, n) {
			break
		}
	}
	if m.writeDelay > 0 {
		time.Sleep(m.writeDelay)
	}
	return func() { atomic.AddInt32(&m.inFlight, -1) }
}

func (m *memRepo) Upsert(op *domain.Operation) (bool, error) {
	defer m.enterWrite()()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return false, m.failWrites
	}
	m.upserts++
	if existing, ok := m.ops[op.ID]; ok && existing.SameState(op) {
		return false, nil
	}
	m.ops[op.ID] = op.Clone()
	return true, nil
}

func (m *memRepo) Remove(id int64) error {
	defer m.enterWrite()()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	delete(m.ops, id)
	return nil
}

func (m *memRepo) FindByID(id int64) (*domain.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op, ok := m.ops[id]; ok {
		return op.Clone(), nil
	}
	return nil, nil
}

func (m *memRepo) FindByFileName(name string) (*domain.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range m.ops {
		if op.FileName == name {
			return op.Clone(), nil
		}
	}
	return nil, nil
}

func (m *memRepo) ListActive() ([]*domain.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []*domain.Operation
	for _, op := range m.ops {
		if op.Status.IsActive() {
			active = append(active, op.Clone())
		}
	}
	return active, nil
}

func (m *memRepo) FindAll(filters map[string]interface{}) ([]*domain.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*domain.Operation
	for _, op := range m.ops {
		if status, ok := filters["status"]; ok && string(op.Status) != status {
			continue
		}
		all = append(all, op.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

func (m *memRepo) GetStats() (*domain.OperationStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.OperationStats{}
	for _, op := range m.ops {
		stats.Count(op.Status, 1)
	}
	return stats, nil
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) status(id int64) domain.OperationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op, ok := m.ops[id]; ok {
		return op.Status
	}
	return ""
}

func (m *memRepo) put(op *domain.Operation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op.ID] = op.Clone()
}

// fakeEngine records listener registrations and fans events out synchronously
type fakeEngine struct {
	mu        sync.Mutex
	listeners []domain.EngineListener
	adds      int
	removes   int
	live      []*domain.Operation
}

func (e *fakeEngine) AddListener(l domain.EngineListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adds++
	e.listeners = append(e.listeners, l)
}

func (e *fakeEngine) RemoveListener(l domain.EngineListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removes++
	for i, existing := range e.listeners {
		if existing == l {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return
		}
	}
}

func (e *fakeEngine) OperationsWithStatus(ctx context.Context, statuses []domain.OperationStatus) ([]*domain.Operation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*domain.Operation
	for _, op := range e.live {
		for _, s := range statuses {
			if op.Status == s {
				out = append(out, op.Clone())
				break
			}
		}
	}
	return out, nil
}

func (e *fakeEngine) emit(ev domain.Event) {
	e.mu.Lock()
	listeners := append([]domain.EngineListener(nil), e.listeners...)
	e.mu.Unlock()
	for _, l := range listeners {
		l.OnEvent(ev)
	}
}

func (e *fakeEngine) listenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// fakeSurface records every call made to the notification tray
type fakeSurface struct {
	mu             sync.Mutex
	posted         map[domain.NotificationID]domain.Notification
	notifies       []domain.NotificationID
	cancels        []domain.NotificationID
	channels       map[string]domain.NotificationChannel
	channelCreates int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		posted:   make(map[domain.NotificationID]domain.Notification),
		channels: make(map[string]domain.NotificationChannel),
	}
}

func (s *fakeSurface) Notify(id domain.NotificationID, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posted[id] = n
	s.notifies = append(s.notifies, id)
	return nil
}

func (s *fakeSurface) Cancel(id domain.NotificationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posted, id)
	s.cancels = append(s.cancels, id)
	return nil
}

func (s *fakeSurface) ChannelExists(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channelID]
	return ok
}

func (s *fakeSurface) CreateChannel(channel domain.NotificationChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel.ID] = channel
	s.channelCreates++
	return nil
}

func (s *fakeSurface) notification(id domain.NotificationID) (domain.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.posted[id]
	return n, ok
}

func (s *fakeSurface) cancelled(id domain.NotificationID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cancels {
		if c == id {
			return true
		}
	}
	return false
}

// fakeHost records foreground transitions
type fakeHost struct {
	mu             sync.Mutex
	foreground     bool
	starts         int
	stops          int
	stopSelfCalls  int
	lastForeground domain.Notification
}

func (h *fakeHost) StartForeground(id domain.NotificationID, n domain.Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.foreground = true
	h.starts++
	h.lastForeground = n
	return nil
}

func (h *fakeHost) StopForeground() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.foreground = false
	h.stops++
	return nil
}

func (h *fakeHost) StopSelf() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopSelfCalls++
}

func (h *fakeHost) isForeground() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.foreground
}

func (h *fakeHost) stoppedSelf() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopSelfCalls
}

func testNotificationConfig() domain.NotificationConfig {
	return domain.NotificationConfig{
		Enabled:          true,
		ChannelID:        domain.DefaultChannelID,
		ChannelName:      "Downloads",
		CompletedTimeout: domain.DefaultCompletedTimeout,
	}
}
