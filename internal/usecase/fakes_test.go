package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coach-agent/internal/domain"
)

var testNow = time.Date(2026, 3, 20, 15, 0, 0, 0, time.UTC)

type fakeLedger struct {
	users    map[int64]domain.User
	goals    []domain.Goal
	spending []domain.SpendingAggregate
	total    int64
	tag      domain.TagSummary
	expenses map[int64]domain.Expense

	userErr     error
	spendingErr error

	lastGoalLimit int
	lastSince     time.Time
	lastTotalFrom time.Time
	lastTag       string
	tagCalls      int
}

func (f *fakeLedger) User(_ context.Context, id int64) (domain.User, error) {
	if f.userErr != nil {
		return domain.User{}, f.userErr
	}
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeLedger) ActiveGoals(_ context.Context, _ int64, limit int) ([]domain.Goal, error) {
	f.lastGoalLimit = limit
	return f.goals, nil
}

func (f *fakeLedger) SpendingSince(_ context.Context, _ int64, since time.Time) ([]domain.SpendingAggregate, error) {
	f.lastSince = since
	return f.spending, f.spendingErr
}

func (f *fakeLedger) TotalSince(_ context.Context, _ int64, since time.Time) (int64, error) {
	f.lastTotalFrom = since
	return f.total, nil
}

func (f *fakeLedger) TagSummarySince(_ context.Context, _ int64, tag string, _ time.Time) (domain.TagSummary, error) {
	f.tagCalls++
	f.lastTag = tag
	ts := f.tag
	ts.Tag = tag
	return ts, nil
}

func (f *fakeLedger) Expense(_ context.Context, userID, id int64) (domain.Expense, error) {
	e, ok := f.expenses[id]
	if !ok || e.UserID != userID {
		return domain.Expense{}, domain.ErrNotFound
	}
	return e, nil
}

// memStore is an in-memory TurnStore; each append advances a logical clock
// by one second.
type memStore struct {
	mu        sync.Mutex
	turns     []domain.Turn
	seq       int64
	appendErr error
	// failAfter makes appends beyond this many fail; 0 disables it.
	failAfter int
	lastLimit int
}

func (m *memStore) AppendTurn(_ context.Context, t domain.Turn) (domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return domain.Turn{}, m.appendErr
	}
	if m.failAfter > 0 && len(m.turns) >= m.failAfter {
		return domain.Turn{}, errors.New("store unavailable")
	}
	m.seq++
	t.ID = m.seq
	t.CreatedAt = testNow.Add(time.Duration(m.seq) * time.Second)
	m.turns = append(m.turns, t)
	return t, nil
}

func (m *memStore) LastTurns(_ context.Context, userID int64, n int) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = n
	var out []domain.Turn
	for i := len(m.turns) - 1; i >= 0 && len(out) < n; i-- {
		if m.turns[i].UserID == userID {
			out = append(out, m.turns[i])
		}
	}
	return out, nil
}

func (m *memStore) AllTurns(_ context.Context, userID int64) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Turn{}
	for _, t := range m.turns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (m *memStore) snapshot() []domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Turn(nil), m.turns...)
}

type chatCall struct {
	prompt  string
	history []domain.ChatMessage
	message string
}

type fakeGateway struct {
	mu       sync.Mutex
	reply    string
	err      error
	prompts  []string
	chats    []chatCall
	inFlight int
	overlap  bool
}

func (g *fakeGateway) enter() {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > 1 {
		g.overlap = true
	}
	g.mu.Unlock()
}

func (g *fakeGateway) leave() {
	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
}

func (g *fakeGateway) InitialMessage(_ context.Context, prompt string) (string, error) {
	g.enter()
	defer g.leave()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

func (g *fakeGateway) ContinueChat(_ context.Context, prompt string, history []domain.ChatMessage, userMessage string) (string, error) {
	g.enter()
	defer g.leave()
	time.Sleep(time.Millisecond)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chats = append(g.chats, chatCall{prompt: prompt, history: history, message: userMessage})
	return g.reply, g.err
}

func sampleUser() domain.User {
	return domain.User{
		ID:            7,
		Nickname:      "민지",
		AgeGroup:      domain.AgeTwenties,
		Job:           domain.JobOfficeWorker,
		MonthlyBudget: 500000,
	}
}

func newTestService(t *testing.T, l *fakeLedger, s *memStore, g *fakeGateway) *CoachService {
	t.Helper()
	svc, err := NewCoachService(l, s, g, 20, 300)
	require.NoError(t, err)
	svc.agg.now = func() time.Time { return testNow }
	return svc
}

func expectCoachError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	require.Error(t, err)
	var uerr *Error
	require.True(t, errors.As(err, &uerr), "expected *usecase.Error, got %T", err)
	require.Equal(t, code, uerr.Code)
	if reason != "" {
		require.Equal(t, reason, uerr.Reason)
	}
}
