package bot

import (
	"context"
	"sort"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shortgrab/backend/internal/ledger"
	"github.com/shortgrab/backend/internal/models"
	"github.com/shortgrab/backend/internal/videos"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
	sendErr  func(c tgbotapi.Chattable, attempt int) error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, c)
	if f.sendErr != nil {
		if err := f.sendErr(c, len(f.sent)); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// texts returns the text of every plain and edited message sent so far.
func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeSender) videos() []tgbotapi.VideoConfig {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []tgbotapi.VideoConfig
	for _, c := range f.sent {
		if v, ok := c.(tgbotapi.VideoConfig); ok {
			out = append(out, v)
		}
	}
	return out
}

type memoryLedger struct {
	mu    sync.Mutex
	users map[int64]*models.UserAccount
	now   time.Time
}

var _ ledger.Ledger = (*memoryLedger)(nil)

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		users: map[int64]*models.UserAccount{},
		now:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (m *memoryLedger) UpsertUser(_ context.Context, p models.Profile) (models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.TelegramID <= 0 {
		return models.UserAccount{}, ledger.ErrInvalidTelegramID
	}
	m.now = m.now.Add(time.Second)
	u, ok := m.users[p.TelegramID]
	if !ok {
		u = &models.UserAccount{ID: int64(len(m.users) + 1), TelegramID: p.TelegramID, CreatedAt: m.now}
		m.users[p.TelegramID] = u
	}
	if p.Username != "" {
		u.Username = p.Username
	}
	if p.FirstName != "" {
		u.FirstName = p.FirstName
	}
	last := m.now
	u.UpdatedAt, u.LastActivity = m.now, &last
	return *u, nil
}

func (m *memoryLedger) IncrementRequests(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.TotalRequests++
	}
	return nil
}

func (m *memoryLedger) IncrementVideosDownloaded(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.TotalVideosDownloaded++
	}
	return nil
}

func (m *memoryLedger) GetStats(_ context.Context, id int64) (models.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.UserStats{}, ledger.ErrNotFound
	}
	return models.UserStats{
		TelegramID:            u.TelegramID,
		Username:              u.Username,
		FirstName:             u.FirstName,
		TotalRequests:         u.TotalRequests,
		TotalVideosDownloaded: u.TotalVideosDownloaded,
		CreatedAt:             u.CreatedAt,
		LastActivity:          u.LastActivity,
	}, nil
}

func (m *memoryLedger) ListUsers(_ context.Context, limit, offset int) ([]models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]models.UserAccount, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *memoryLedger) CountUsers(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memoryLedger) Ping(context.Context) error { return nil }

func (m *memoryLedger) account(id int64) (models.UserAccount, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.UserAccount{}, false
	}
	return *u, true
}

type stubAcquirer struct {
	mu       sync.Mutex
	result   func(req videos.Request) videos.Result
	requests []videos.Request
}

func (s *stubAcquirer) Acquire(_ context.Context, req videos.Request) videos.Result {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.result(req)
}

func (s *stubAcquirer) MaxDurationSeconds() int { return 300 }

type recordingArchiver struct {
	paths []string
	err   error
}

func (r *recordingArchiver) Enqueue(_ context.Context, localPath string) error {
	if r.err != nil {
		return r.err
	}
	r.paths = append(r.paths, localPath)
	return nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(int64) bool { return false }
