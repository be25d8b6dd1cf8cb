package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/courier/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "courier_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func createTestAgent(t *testing.T, s *SQLiteStore, name string) *models.Agent {
	t.Helper()
	agent, err := s.CreateAgent(context.Background(), name, "", "ck_"+name)
	if err != nil {
		t.Fatal(err)
	}
	return agent
}

func orderPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() < b.String() {
		return a, b
	}
	return b, a
}

func TestCreateAgentDuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateAgent(ctx, "ann", "", "ck_one")
	require.NoError(t, err)

	_, err = s.CreateAgent(ctx, "ann", "", "ck_two")
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestGetAgentLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := createTestAgent(t, s, "ann")

	byID, err := s.GetAgentByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, byID.ID)

	byName, err := s.GetAgentByName(ctx, "ann")
	require.NoError(t, err)
	require.Equal(t, created.ID, byName.ID)

	byKey, err := s.GetAgentByAPIKey(ctx, "ck_ann")
	require.NoError(t, err)
	require.Equal(t, created.ID, byKey.ID)

	missing, err := s.GetAgentByName(ctx, "nobody")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestGetOrCreateThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ann := createTestAgent(t, s, "ann")
	bo := createTestAgent(t, s, "bo")
	low, high := orderPair(ann.ID, bo.ID)

	thread, created, err := s.GetOrCreateThread(ctx, low, high)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, low, thread.AgentLow)
	require.Equal(t, high, thread.AgentHigh)

	again, created, err := s.GetOrCreateThread(ctx, low, high)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, thread.ID, again.ID)
}

func TestGetOrCreateThreadConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ann := createTestAgent(t, s, "ann")
	bo := createTestAgent(t, s, "bo")
	low, high := orderPair(ann.ID, bo.ID)

	const workers = 16
	ids := make([]uuid.UUID, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			thread, _, err := s.GetOrCreateThread(ctx, low, high)
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = thread.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		require.Equal(t, ids[0], ids[i], "all callers must observe the same thread")
	}

	threads, err := s.ListThreadsForAgent(ctx, ann.ID)
	require.NoError(t, err)
	require.Len(t, threads, 1, "exactly one thread row must exist")
}

func TestTouchThreadNeverRegresses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ann := createTestAgent(t, s, "ann")
	bo := createTestAgent(t, s, "bo")
	low, high := orderPair(ann.ID, bo.ID)
	thread, _, err := s.GetOrCreateThread(ctx, low, high)
	require.NoError(t, err)

	later := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.TouchThread(ctx, thread.ID, later))

	// An out-of-order touch with an earlier timestamp must not move recency back.
	require.NoError(t, s.TouchThread(ctx, thread.ID, later.Add(-30*time.Minute)))

	got, err := s.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	require.WithinDuration(t, later, got.LastMessageAt, time.Second)
}

func insertTestMessage(t *testing.T, s *SQLiteStore, threadID, sender, recipient uuid.UUID, content string, at time.Time) *models.Message {
	t.Helper()
	msg := &models.Message{
		ID:          ulid.Make().String(),
		ThreadID:    threadID,
		SenderID:    sender,
		RecipientID: recipient,
		Content:     content,
		CreatedAt:   at,
	}
	if err := s.InsertMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestListThreadMessagesOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ann := createTestAgent(t, s, "ann")
	bo := createTestAgent(t, s, "bo")
	low, high := orderPair(ann.ID, bo.ID)
	thread, _, err := s.GetOrCreateThread(ctx, low, high)
	require.NoError(t, err)

	base := time.Now().UTC()
	first := insertTestMessage(t, s, thread.ID, ann.ID, bo.ID, "one", base)
	second := insertTestMessage(t, s, thread.ID, bo.ID, ann.ID, "two", base.Add(time.Millisecond))
	// Identical timestamp: ULID id order breaks the tie.
	third := insertTestMessage(t, s, thread.ID, ann.ID, bo.ID, "three", base.Add(time.Millisecond))

	page, err := s.ListThreadMessages(ctx, thread.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.Equal(t, third.ID, page[0].ID)
	require.Equal(t, second.ID, page[1].ID)
	require.Equal(t, first.ID, page[2].ID)

	window, err := s.ListThreadMessages(ctx, thread.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, window, 2)
	require.Equal(t, second.ID, window[0].ID)
	require.Equal(t, first.ID, window[1].ID)
}

func TestMarkThreadReadIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ann := createTestAgent(t, s, "ann")
	bo := createTestAgent(t, s, "bo")
	low, high := orderPair(ann.ID, bo.ID)
	thread, _, err := s.GetOrCreateThread(ctx, low, high)
	require.NoError(t, err)

	now := time.Now().UTC()
	insertTestMessage(t, s, thread.ID, ann.ID, bo.ID, "to bo 1", now)
	insertTestMessage(t, s, thread.ID, ann.ID, bo.ID, "to bo 2", now.Add(time.Millisecond))
	insertTestMessage(t, s, thread.ID, bo.ID, ann.ID, "to ann", now.Add(2*time.Millisecond))

	unread, err := s.UnreadCount(ctx, thread.ID, bo.ID)
	require.NoError(t, err)
	require.Equal(t, 2, unread)

	marked, err := s.MarkThreadRead(ctx, thread.ID, bo.ID, time.Now().UTC())
	require.NoError(t, err)
	require.EqualValues(t, 2, marked)

	// Second pass marks nothing and still succeeds.
	marked, err = s.MarkThreadRead(ctx, thread.ID, bo.ID, time.Now().UTC())
	require.NoError(t, err)
	require.EqualValues(t, 0, marked)

	unread, err = s.UnreadCount(ctx, thread.ID, bo.ID)
	require.NoError(t, err)
	require.Equal(t, 0, unread)

	// Ann's unread row (sent by bo) is untouched by bo's marking.
	unread, err = s.UnreadCount(ctx, thread.ID, ann.ID)
	require.NoError(t, err)
	require.Equal(t, 1, unread)
}

func TestCountAgents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createTestAgent(t, s, "ann")
	createTestAgent(t, s, "bo")

	count, err := s.CountAgents(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}
