package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"corelay/internal/domain"
	"corelay/internal/providers/openai"
	"corelay/internal/store/memory"
)

type fakeModerator struct {
	verdict domain.ModerationVerdict
	calls   int
}

func (m *fakeModerator) Moderate(ctx context.Context, content string) domain.ModerationVerdict {
	m.calls++
	return m.verdict
}

type sendCall struct {
	to, body string
}

type fakeSender struct {
	sends []sendCall
	err   error
}

func (s *fakeSender) Send(ctx context.Context, to, body string) error {
	s.sends = append(s.sends, sendCall{to: to, body: body})
	return s.err
}

func approvedVerdict() domain.ModerationVerdict {
	return domain.ModerationVerdict{IsAppropriate: true, Issues: []string{}, Suggestions: []string{}, Tone: "neutral", Severity: "low"}
}

func newRelay(st Store, mod Moderator, snd Sender) *RelayService {
	n := 0
	return &RelayService{
		Store:     st,
		Moderator: mod,
		Sender:    snd,
		MessageID: func() string { n++; return "msg_test_" + string(rune('0'+n)) },
		PairID:    func() string { return "pair_test" },
	}
}

func registerPair(t *testing.T, st *memory.Store) {
	t.Helper()
	err := st.InsertPair(context.Background(), domain.ParentPair{ID: "pair_1", Phone1: "+1111", Phone2: "+2222", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("insert pair: %v", err)
	}
}

func onlyMessage(t *testing.T, st *memory.Store) domain.Message {
	t.Helper()
	list, err := st.ListMessages(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly 1 message, got %d", len(list))
	}
	return list[0]
}

func TestApprovedMessageForwardedToPartner(t *testing.T) {
	st := memory.New()
	registerPair(t, st)
	mod := &fakeModerator{verdict: approvedVerdict()}
	snd := &fakeSender{}
	svc := newRelay(st, mod, snd)

	in := domain.InboundSMS{From: "+1111", To: "+9999", Body: "Please confirm pickup at 5pm"}
	if err := svc.HandleInbound(context.Background(), in, time.Now()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	msg := onlyMessage(t, st)
	if msg.Status != domain.StatusApproved {
		t.Fatalf("expected approved, got %s", msg.Status)
	}
	if msg.Feedback != "Message approved and forwarded" {
		t.Fatalf("unexpected feedback %q", msg.Feedback)
	}
	if msg.RecipientPhone != "+2222" {
		t.Fatalf("expected recipient +2222, got %s", msg.RecipientPhone)
	}

	var stored domain.ModerationVerdict
	if err := json.Unmarshal([]byte(msg.ModerationResult), &stored); err != nil {
		t.Fatalf("stored verdict must be valid json: %v", err)
	}
	if !stored.IsAppropriate {
		t.Fatalf("stored verdict mismatch: %+v", stored)
	}

	if len(snd.sends) != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", len(snd.sends))
	}
	if snd.sends[0].to != "+2222" || snd.sends[0].body != "Please confirm pickup at 5pm" {
		t.Fatalf("unexpected delivery %+v", snd.sends[0])
	}
}

func TestBlockedMessageFeedsBackToSender(t *testing.T) {
	st := memory.New()
	registerPair(t, st)
	mod := &fakeModerator{verdict: domain.ModerationVerdict{
		IsAppropriate: false,
		Issues:        []string{"insulting language"},
		Suggestions:   []string{"state facts only"},
		Tone:          "hostile",
		Severity:      "high",
	}}
	snd := &fakeSender{}
	svc := newRelay(st, mod, snd)

	in := domain.InboundSMS{From: "+1111", To: "+9999", Body: "You are a terrible parent"}
	if err := svc.HandleInbound(context.Background(), in, time.Now()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	msg := onlyMessage(t, st)
	if msg.Status != domain.StatusBlocked {
		t.Fatalf("expected blocked, got %s", msg.Status)
	}

	if len(snd.sends) != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", len(snd.sends))
	}
	if snd.sends[0].to != "+1111" {
		t.Fatalf("feedback must go to the sender, went to %s", snd.sends[0].to)
	}
	body := snd.sends[0].body
	for _, want := range []string{
		"1. insulting language",
		"1. state facts only",
		"Please rephrase your message in a respectful, factual manner focused on your children's needs.",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("feedback missing %q:\n%s", want, body)
		}
	}
	if msg.Feedback != body {
		t.Fatalf("stored feedback must equal delivered feedback")
	}
}

func TestUnregisteredSenderGetsNoticeAndNoRecord(t *testing.T) {
	st := memory.New()
	mod := &fakeModerator{verdict: approvedVerdict()}
	snd := &fakeSender{}
	svc := newRelay(st, mod, snd)

	in := domain.InboundSMS{From: "+3333", To: "+9999", Body: "hello"}
	if err := svc.HandleInbound(context.Background(), in, time.Now()); err != nil {
		t.Fatalf("unregistered sender must not be an error: %v", err)
	}

	if mod.calls != 0 {
		t.Fatalf("moderation must not run for unregistered senders")
	}
	list, _ := st.ListMessages(context.Background())
	if len(list) != 0 {
		t.Fatalf("no record should be created, got %d", len(list))
	}
	if len(snd.sends) != 1 || snd.sends[0].to != "+3333" {
		t.Fatalf("expected one notice to +3333, got %+v", snd.sends)
	}
	if !strings.Contains(snd.sends[0].body, "not registered") {
		t.Fatalf("notice text unexpected: %s", snd.sends[0].body)
	}
}

func TestUnregisteredSenderNoticeFailureStillSucceeds(t *testing.T) {
	st := memory.New()
	mod := &fakeModerator{verdict: approvedVerdict()}
	snd := &fakeSender{err: errors.New("carrier down")}
	svc := newRelay(st, mod, snd)

	in := domain.InboundSMS{From: "+3333", To: "+9999", Body: "hello"}
	if err := svc.HandleInbound(context.Background(), in, time.Now()); err != nil {
		t.Fatalf("unregistered branch must succeed even when the notice fails: %v", err)
	}
	if len(snd.sends) != 1 {
		t.Fatalf("expected one notice attempt, got %d", len(snd.sends))
	}
	list, _ := st.ListMessages(context.Background())
	if len(list) != 0 {
		t.Fatalf("no record should be created, got %d", len(list))
	}
}

func TestModerationOutageBlocksForSafety(t *testing.T) {
	st := memory.New()
	registerPair(t, st)
	// the moderation client absorbs its own failures into this verdict
	mod := &fakeModerator{verdict: openai.FailSafeVerdict()}
	snd := &fakeSender{}
	svc := newRelay(st, mod, snd)

	in := domain.InboundSMS{From: "+1111", To: "+9999", Body: "anything"}
	if err := svc.HandleInbound(context.Background(), in, time.Now()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	msg := onlyMessage(t, st)
	if msg.Status != domain.StatusBlocked {
		t.Fatalf("expected blocked, got %s", msg.Status)
	}
	var stored domain.ModerationVerdict
	if err := json.Unmarshal([]byte(msg.ModerationResult), &stored); err != nil {
		t.Fatalf("stored verdict: %v", err)
	}
	if stored.Severity != "high" || stored.Tone != "error" {
		t.Fatalf("expected fail-safe severity/tone, got %s/%s", stored.Severity, stored.Tone)
	}
	if len(snd.sends) != 1 || snd.sends[0].to != "+1111" {
		t.Fatalf("fail-safe feedback must go to the sender, got %+v", snd.sends)
	}
	if !strings.Contains(snd.sends[0].body, "Error analyzing message - defaulting to block for safety") {
		t.Fatalf("feedback missing fail-safe issue: %s", snd.sends[0].body)
	}
}

func TestMissingFieldsRejectedBeforeSideEffects(t *testing.T) {
	st := memory.New()
	registerPair(t, st)
	mod := &fakeModerator{verdict: approvedVerdict()}
	snd := &fakeSender{}
	svc := newRelay(st, mod, snd)

	err := svc.HandleInbound(context.Background(), domain.InboundSMS{From: "+1111", To: "+9999"}, time.Now())
	if !errors.Is(err, domain.ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
	if mod.calls != 0 || len(snd.sends) != 0 {
		t.Fatalf("no external calls allowed on validation failure")
	}
	list, _ := st.ListMessages(context.Background())
	if len(list) != 0 {
		t.Fatalf("no record allowed on validation failure")
	}
}

type vanishingStore struct {
	*memory.Store
}

func (s *vanishingStore) UpdateMessageOutcome(ctx context.Context, id string, status domain.MessageStatus, moderationResult, feedback string) (domain.Message, bool, error) {
	return domain.Message{}, false, nil
}

func TestVanishedRecordIsFatal(t *testing.T) {
	st := memory.New()
	registerPair(t, st)
	mod := &fakeModerator{verdict: approvedVerdict()}
	snd := &fakeSender{}
	svc := newRelay(&vanishingStore{st}, mod, snd)

	err := svc.HandleInbound(context.Background(), domain.InboundSMS{From: "+1111", To: "+9999", Body: "hi"}, time.Now())
	if !errors.Is(err, domain.ErrStoreInconsistent) {
		t.Fatalf("expected ErrStoreInconsistent, got %v", err)
	}
	if len(snd.sends) != 0 {
		t.Fatalf("no delivery after a failed outcome update")
	}
}

func TestDeliveryFailureSurfacesButKeepsOutcome(t *testing.T) {
	st := memory.New()
	registerPair(t, st)
	mod := &fakeModerator{verdict: approvedVerdict()}
	snd := &fakeSender{err: errors.New("carrier down")}
	svc := newRelay(st, mod, snd)

	err := svc.HandleInbound(context.Background(), domain.InboundSMS{From: "+1111", To: "+9999", Body: "hi"}, time.Now())
	if err == nil {
		t.Fatalf("expected delivery failure to surface")
	}

	// moderation decision is not rolled back
	msg := onlyMessage(t, st)
	if msg.Status != domain.StatusApproved || msg.ModerationResult == "" {
		t.Fatalf("persisted outcome must survive delivery failure: %+v", msg)
	}
}

func TestRegisterPairValidatesAndStores(t *testing.T) {
	st := memory.New()
	svc := newRelay(st, &fakeModerator{}, &fakeSender{})

	if _, err := svc.RegisterPair(context.Background(), "", "+2222", time.Now()); !errors.Is(err, domain.ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields for empty phone, got %v", err)
	}

	pair, err := svc.RegisterPair(context.Background(), "+1111", "+2222", time.Now())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if pair.ID == "" || pair.Phone1 != "+1111" || pair.Phone2 != "+2222" {
		t.Fatalf("unexpected pair %+v", pair)
	}

	partner, found, _ := st.FindPartnerPhone(context.Background(), "+1111")
	if !found || partner != "+2222" {
		t.Fatalf("registered pair must resolve, found=%v partner=%s", found, partner)
	}
}

func TestComposeFeedbackOmitsEmptySections(t *testing.T) {
	text := ComposeFeedback(domain.ModerationVerdict{IsAppropriate: false, Tone: "hostile", Severity: "medium"})
	if strings.Contains(text, "Issues detected") || strings.Contains(text, "Suggestions for improvement") {
		t.Fatalf("empty lists must be omitted:\n%s", text)
	}
	if !strings.HasPrefix(text, "Your message was not delivered because it contains content that may escalate conflict.") {
		t.Fatalf("missing preamble:\n%s", text)
	}
}
