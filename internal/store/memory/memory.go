package memory

import (
	"context"
	"sort"
	"sync"

	"corelay/internal/domain"
)

// Store keeps messages and parent pairs in process memory. It exists for
// local runs and tests; the postgres store implements the same contract.
// All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	messages map[string]domain.Message
	pairs    []domain.ParentPair
}

func New() *Store {
	return &Store{messages: make(map[string]domain.Message)}
}

func (s *Store) InsertMessage(ctx context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = msg
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (domain.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	return msg, ok, nil
}

// ListMessages returns messages newest first. Ties on created_at break by id
// descending so repeated listings are byte-stable.
func (s *Store) ListMessages(ctx context.Context) ([]domain.Message, error) {
	s.mu.RLock()
	out := make([]domain.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		out = append(out, msg)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateMessageOutcome(ctx context.Context, id string, status domain.MessageStatus, moderationResult, feedback string) (domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return domain.Message{}, false, nil
	}
	msg.Status = status
	msg.ModerationResult = moderationResult
	msg.Feedback = feedback
	s.messages[id] = msg
	return msg, true, nil
}

func (s *Store) InsertPair(ctx context.Context, pair domain.ParentPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = append(s.pairs, pair)
	return nil
}

func (s *Store) ListPairs(ctx context.Context) ([]domain.ParentPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ParentPair, len(s.pairs))
	copy(out, s.pairs)
	return out, nil
}

// FindPartnerPhone scans pairs in insertion order and returns the other member
// of the first pair containing phone. Duplicate registrations are allowed;
// first match wins.
func (s *Store) FindPartnerPhone(ctx context.Context, phone string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pairs {
		if p.Phone1 == phone {
			return p.Phone2, true, nil
		}
		if p.Phone2 == phone {
			return p.Phone1, true, nil
		}
	}
	return "", false, nil
}
