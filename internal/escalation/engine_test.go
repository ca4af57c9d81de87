package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/taskflow/internal/domain"
	"github.com/set-night/taskflow/internal/repository"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []sentMessage
	fails map[int64]int // chatID -> remaining failures
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{fails: make(map[int64]int)}
}

func (n *fakeNotifier) Send(ctx context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fails[chatID] > 0 {
		n.fails[chatID]--
		return domain.ErrBotBlocked
	}
	n.sent = append(n.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (n *fakeNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

func (n *fakeNotifier) count(chatID int64) int {
	c := 0
	for _, m := range n.messages() {
		if m.chatID == chatID {
			c++
		}
	}
	return c
}

// faultyStore injects failures for chosen tasks and users on top of Memory.
type faultyStore struct {
	*repository.Memory
	missingUsers map[int64]bool
	brokenTasks  map[int64]bool
}

func (s *faultyStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	if s.missingUsers[id] {
		return nil, domain.ErrUserNotFound
	}
	return s.Memory.GetUser(ctx, id)
}

func (s *faultyStore) EscalateTask(ctx context.Context, id int64, fn domain.EscalateFunc) error {
	if s.brokenTasks[id] {
		return errors.New("connection reset")
	}
	return s.Memory.EscalateTask(ctx, id, fn)
}

var due = time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *repository.Memory, telegramID int64, due time.Time) (*domain.User, *domain.Task) {
	t.Helper()
	ctx := context.Background()
	u, err := store.CreateUser(ctx, domain.NewUser{
		TelegramID: telegramID,
		Name:       "Noor",
		Language:   "en",
		Role:       domain.RoleEmployee,
		StartDate:  due.Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	task, err := store.CreateTask(ctx, "Prepare slides", u.ID, due)
	require.NoError(t, err)
	return u, task
}

func newEngine(store Store, n Notifier) *Engine {
	return New(store, n, Options{Lead: time.Hour, Concurrency: 4, SendTimeout: time.Second})
}

func getTask(t *testing.T, store *repository.Memory, id int64) *domain.Task {
	t.Helper()
	task, err := store.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

func TestEngine_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	notifier := newFakeNotifier()
	e := newEngine(store, notifier)
	_, task := seed(t, store, 501, due)

	r, err := e.RunCycle(ctx, due.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Candidates)
	assert.Empty(t, notifier.messages())

	r, err = e.RunCycle(ctx, due.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, r.SentApproaching)
	got := getTask(t, store, task.ID)
	assert.Equal(t, domain.LevelApproaching, got.NotificationLevel)
	assert.Equal(t, domain.TaskStatusPending, got.Status)

	// still inside the lead window: no repeat
	_, err = e.RunCycle(ctx, due.Add(-20*time.Minute))
	require.NoError(t, err)
	assert.Len(t, notifier.messages(), 1)

	r, err = e.RunCycle(ctx, due.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, r.SentOverdue)
	got = getTask(t, store, task.ID)
	assert.Equal(t, domain.LevelOverdue, got.NotificationLevel)
	assert.Equal(t, domain.TaskStatusOverdue, got.Status)

	r, err = e.RunCycle(ctx, due.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Candidates)

	msgs := notifier.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(501), msgs[0].chatID)
	assert.Contains(t, msgs[0].text, "due in 30m")
	assert.Contains(t, msgs[1].text, "overdue")
}

func TestEngine_SkipsStraightToOverdue(t *testing.T) {
	store := repository.NewMemory()
	notifier := newFakeNotifier()
	e := newEngine(store, notifier)
	_, task := seed(t, store, 502, due)

	r, err := e.RunCycle(context.Background(), due.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, r.SentApproaching)
	assert.Equal(t, 1, r.SentOverdue)
	assert.Equal(t, domain.LevelOverdue, getTask(t, store, task.ID).NotificationLevel)
	require.Len(t, notifier.messages(), 1)
	assert.Contains(t, notifier.messages()[0].text, "overdue")
}

func TestEngine_CompletedTaskIsNeverNotified(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	notifier := newFakeNotifier()
	e := newEngine(store, notifier)
	u, task := seed(t, store, 503, due)

	ok, err := store.CompleteTask(ctx, task.ID, u.ID)
	require.NoError(t, err)
	require.True(t, ok)

	for _, at := range []time.Duration{-30 * time.Minute, time.Minute, time.Hour} {
		_, err := e.RunCycle(ctx, due.Add(at))
		require.NoError(t, err)
	}
	assert.Empty(t, notifier.messages())
	got := getTask(t, store, task.ID)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.Equal(t, domain.LevelNone, got.NotificationLevel)
}

func TestEngine_CompletedAfterApproaching(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	notifier := newFakeNotifier()
	e := newEngine(store, notifier)
	u, task := seed(t, store, 504, due)

	_, err := e.RunCycle(ctx, due.Add(-30*time.Minute))
	require.NoError(t, err)
	_, err = store.CompleteTask(ctx, task.ID, u.ID)
	require.NoError(t, err)
	_, err = e.RunCycle(ctx, due.Add(time.Minute))
	require.NoError(t, err)

	assert.Len(t, notifier.messages(), 1)
	assert.Equal(t, domain.TaskStatusCompleted, getTask(t, store, task.ID).Status)
}

func TestEngine_DeliveryFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	notifier := newFakeNotifier()
	notifier.fails[505] = 1
	e := newEngine(store, notifier)
	_, task := seed(t, store, 505, due)

	r, err := e.RunCycle(ctx, due.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, r.DeliveryFailed)
	assert.Equal(t, domain.LevelNone, getTask(t, store, task.ID).NotificationLevel, "failed delivery must not advance state")

	r, err = e.RunCycle(ctx, due.Add(-29*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, r.SentApproaching)
	assert.Equal(t, domain.LevelApproaching, getTask(t, store, task.ID).NotificationLevel)
	assert.Equal(t, 1, notifier.count(505))
}

func TestEngine_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	notifier := newFakeNotifier()

	ghost, _ := seed(t, mem, 601, due)
	_, broken := seed(t, mem, 602, due)
	_, healthy := seed(t, mem, 603, due)

	store := &faultyStore{
		Memory:       mem,
		missingUsers: map[int64]bool{ghost.ID: true},
		brokenTasks:  map[int64]bool{broken.ID: true},
	}
	e := newEngine(store, notifier)

	r, err := e.RunCycle(ctx, due.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, r.Candidates)
	assert.Equal(t, 1, r.SentOverdue)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 1, r.StoreErrors)

	assert.Equal(t, 1, notifier.count(603))
	assert.Equal(t, domain.LevelOverdue, getTask(t, mem, healthy.ID).NotificationLevel)
	assert.Equal(t, domain.LevelNone, getTask(t, mem, broken.ID).NotificationLevel)
}

func TestEngine_ConcurrentCyclesSendOncePerLevel(t *testing.T) {
	store := repository.NewMemory()
	notifier := newFakeNotifier()
	e := newEngine(store, notifier)

	const n = 20
	for i := int64(0); i < n; i++ {
		seed(t, store, 700+i, due)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.RunCycle(context.Background(), due.Add(-10*time.Minute))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, notifier.messages(), n)
	for i := int64(0); i < n; i++ {
		assert.Equal(t, 1, notifier.count(700+i))
	}
}

func TestEngine_OnOverdue(t *testing.T) {
	store := repository.NewMemory()
	notifier := newFakeNotifier()

	var (
		mu    sync.Mutex
		calls []domain.Task
	)
	e := New(store, notifier, Options{
		Lead: time.Hour,
		OnOverdue: func(user *domain.User, task domain.Task) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, task)
		},
	})
	_, task := seed(t, store, 801, due)

	_, err := e.RunCycle(context.Background(), due.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, calls)

	_, err = e.RunCycle(context.Background(), due.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, task.ID, calls[0].ID)
	assert.Equal(t, domain.TaskStatusOverdue, calls[0].Status)
}

func TestEngine_CancelledContextSendsNothing(t *testing.T) {
	store := repository.NewMemory()
	notifier := newFakeNotifier()
	e := newEngine(store, notifier)
	seed(t, store, 901, due)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.RunCycle(ctx, due.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, notifier.messages())
}

func TestEngine_Run(t *testing.T) {
	store := repository.NewMemory()
	notifier := newFakeNotifier()
	e := newEngine(store, notifier)
	e.now = func() time.Time { return due.Add(time.Minute) }
	seed(t, store, 902, due)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return notifier.count(902) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 1, notifier.count(902))
}
