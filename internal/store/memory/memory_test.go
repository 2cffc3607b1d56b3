package memory

import (
	"context"
	"reflect"
	"testing"
	"time"

	"corelay/internal/domain"
)

func TestPartnerLookupIsSymmetric(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.InsertPair(ctx, domain.ParentPair{ID: "pair_1", Phone1: "+1111", Phone2: "+2222", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("insert pair: %v", err)
	}

	partner, found, err := s.FindPartnerPhone(ctx, "+1111")
	if err != nil || !found {
		t.Fatalf("expected partner for +1111, found=%v err=%v", found, err)
	}
	if partner != "+2222" {
		t.Fatalf("expected +2222, got %s", partner)
	}

	partner, found, _ = s.FindPartnerPhone(ctx, "+2222")
	if !found || partner != "+1111" {
		t.Fatalf("expected +1111 for reverse lookup, found=%v got %s", found, partner)
	}
}

func TestPartnerLookupNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.InsertPair(ctx, domain.ParentPair{ID: "pair_1", Phone1: "+1111", Phone2: "+2222"})

	_, found, err := s.FindPartnerPhone(ctx, "+3333")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found {
		t.Fatalf("expected not-found for unregistered phone")
	}
}

func TestPartnerLookupFirstMatchWins(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.InsertPair(ctx, domain.ParentPair{ID: "pair_1", Phone1: "+1111", Phone2: "+2222"})
	_ = s.InsertPair(ctx, domain.ParentPair{ID: "pair_2", Phone1: "+1111", Phone2: "+9999"})

	partner, found, _ := s.FindPartnerPhone(ctx, "+1111")
	if !found || partner != "+2222" {
		t.Fatalf("expected first registration to win, got found=%v partner=%s", found, partner)
	}
}

func TestMessageLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	msg := domain.Message{
		ID: "msg_1", FromPhone: "+1111", ToPhone: "+9999", RecipientPhone: "+2222",
		Content: "hello", Status: domain.StatusPending, CreatedAt: time.Now(),
	}
	if err := s.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, found, _ := s.GetMessage(ctx, "msg_1")
	if !found {
		t.Fatalf("expected message after insert")
	}
	if got.Status != domain.StatusPending || got.ModerationResult != "" || got.Feedback != "" {
		t.Fatalf("pending message should have no outcome, got %+v", got)
	}

	updated, found, err := s.UpdateMessageOutcome(ctx, "msg_1", domain.StatusApproved, `{"isAppropriate":true}`, "Message approved and forwarded")
	if err != nil || !found {
		t.Fatalf("update: found=%v err=%v", found, err)
	}
	if updated.Status != domain.StatusApproved {
		t.Fatalf("expected approved, got %s", updated.Status)
	}
	if updated.ModerationResult == "" || updated.Feedback == "" {
		t.Fatalf("terminal message must carry verdict and feedback")
	}
	if updated.Content != "hello" || updated.FromPhone != "+1111" {
		t.Fatalf("update must not clobber immutable fields: %+v", updated)
	}
}

func TestUpdateUnknownMessageReportsNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, found, err := s.UpdateMessageOutcome(ctx, "msg_missing", domain.StatusBlocked, "{}", "x")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if found {
		t.Fatalf("expected not-found for unknown id")
	}
}

func TestListMessagesNewestFirstAndStable(t *testing.T) {
	ctx := context.Background()
	s := New()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_ = s.InsertMessage(ctx, domain.Message{ID: "msg_a", CreatedAt: base})
	_ = s.InsertMessage(ctx, domain.Message{ID: "msg_c", CreatedAt: base.Add(2 * time.Minute)})
	// same timestamp as msg_a: tie broken by id descending
	_ = s.InsertMessage(ctx, domain.Message{ID: "msg_b", CreatedAt: base})

	list, err := s.ListMessages(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	gotIDs := []string{list[0].ID, list[1].ID, list[2].ID}
	wantIDs := []string{"msg_c", "msg_b", "msg_a"}
	if !reflect.DeepEqual(gotIDs, wantIDs) {
		t.Fatalf("expected order %v, got %v", wantIDs, gotIDs)
	}

	again, _ := s.ListMessages(ctx)
	if !reflect.DeepEqual(list, again) {
		t.Fatalf("repeated listing must be identical")
	}
}

func TestConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := New()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				id := "msg_" + string(rune('a'+n)) + "_" + string(rune('0'+j%10))
				_ = s.InsertMessage(ctx, domain.Message{ID: id, CreatedAt: time.Now()})
				_, _, _ = s.GetMessage(ctx, id)
				_, _ = s.ListMessages(ctx)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
