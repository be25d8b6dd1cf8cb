// Package messaging implements the core direct-messaging operations: send,
// paginated thread history with read-marking, and inbox assembly.
package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/courierhq/courier/internal/metrics"
	"github.com/courierhq/courier/internal/models"
	"github.com/courierhq/courier/internal/store"
)

// Policy values for message content and pagination.
const (
	MaxContentLen   = 50000
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Directory is the slice of the identity store the messaging core needs.
type Directory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service orchestrates thread resolution, message appends and retrieval.
type Service struct {
	db     store.DataStore
	agents Directory
	logger zerolog.Logger
}

// NewService creates a messaging service.
func NewService(db store.DataStore, agents Directory, logger zerolog.Logger) *Service {
	return &Service{db: db, agents: agents, logger: logger}
}

// HistoryPage is one page of thread history in chronological order, with the
// effective pagination values echoed back.
type HistoryPage struct {
	ThreadID uuid.UUID        `json:"thread_id"`
	Messages []models.Message `json:"messages"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// NormalizePair orders two agent IDs canonically: the one whose UUID string
// compares lexicographically smaller goes first. Both orders of the same
// unordered pair therefore map to the same storage key.
func NormalizePair(a, b uuid.UUID) (low, high uuid.UUID) {
	if strings.Compare(a.String(), b.String()) < 0 {
		return a, b
	}
	return b, a
}

// Send validates and appends a message, lazily creating the pair's thread
// and bumping its recency. Either everything commits or the caller gets an
// error and nothing is recorded.
func (s *Service) Send(ctx context.Context, senderID, recipientID uuid.UUID, content string) (*models.Message, error) {
	ok, err := s.agents.Exists(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("check recipient: %w", err)
	}
	if !ok {
		return nil, ErrRecipientNotFound
	}

	if senderID == recipientID {
		return nil, ErrSelfMessage
	}
	if len(content) < 1 || len(content) > MaxContentLen {
		return nil, ErrInvalidContent
	}

	low, high := NormalizePair(senderID, recipientID)
	thread, _, err := s.db.GetOrCreateThread(ctx, low, high)
	if err != nil {
		return nil, fmt.Errorf("resolve thread: %w", err)
	}

	msg := &models.Message{
		ID:          ulid.Make().String(),
		ThreadID:    thread.ID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	if err := s.db.TouchThread(ctx, thread.ID, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("touch thread: %w", err)
	}

	metrics.MessagesSent.Inc()
	return msg, nil
}

// History returns one page of a thread's messages, oldest first within the
// page, after verifying the requester's membership. Fetching as the
// recipient marks the delivered messages read; that marking is best-effort
// and never fails the call.
func (s *Service) History(ctx context.Context, requesterID, threadID uuid.UUID, limit, offset int) (*HistoryPage, error) {
	member, err := s.membership(ctx, threadID, requesterID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return nil, ErrForbidden
	}

	limit, offset = clampPage(limit, offset)

	messages, err := s.db.ListThreadMessages(ctx, threadID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	readAt := time.Now().UTC()
	marked, err := s.db.MarkThreadRead(ctx, threadID, requesterID, readAt)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("thread_id", threadID.String()).
			Str("agent_id", requesterID.String()).
			Msg("read-marking failed")
	} else if marked > 0 {
		metrics.MessagesMarkedRead.Add(float64(marked))
		// Reflect the marking in the page we are about to return.
		for i := range messages {
			if messages[i].RecipientID == requesterID && messages[i].ReadAt == nil {
				messages[i].ReadAt = &readAt
			}
		}
	}

	// Store order is most-recent-first for windowing; consumers see
	// chronological order within the page.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return &HistoryPage{
		ThreadID: threadID,
		Messages: messages,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// Inbox lists the requester's threads, most recently active first, each with
// the unread count of messages addressed to the requester.
func (s *Service) Inbox(ctx context.Context, requesterID uuid.UUID) ([]models.ThreadSummary, error) {
	threads, err := s.db.ListThreadsForAgent(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	summaries := make([]models.ThreadSummary, 0, len(threads))
	for _, t := range threads {
		unread, err := s.db.UnreadCount(ctx, t.ID, requesterID)
		if err != nil {
			return nil, fmt.Errorf("unread count: %w", err)
		}
		summaries = append(summaries, models.ThreadSummary{
			ThreadID:      t.ID,
			AgentLow:      t.AgentLow,
			AgentHigh:     t.AgentHigh,
			OtherParty:    t.OtherParty(requesterID),
			LastMessageAt: t.LastMessageAt,
			UnreadCount:   unread,
		})
	}
	return summaries, nil
}

// membership is a pure predicate over (thread, agent). Fails closed when the
// thread does not exist.
func (s *Service) membership(ctx context.Context, threadID, agentID uuid.UUID) (bool, error) {
	thread, err := s.db.GetThread(ctx, threadID)
	if err != nil {
		return false, err
	}
	if thread == nil {
		return false, nil
	}
	return thread.Member(agentID), nil
}

// clampPage applies pagination policy: limit in [1, MaxPageSize] defaulting
// to DefaultPageSize, offset at least zero.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
