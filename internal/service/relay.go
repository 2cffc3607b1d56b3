package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"corelay/internal/domain"
	"corelay/internal/observability"
	"corelay/internal/util"
)

type Store interface {
	InsertMessage(ctx context.Context, msg domain.Message) error
	GetMessage(ctx context.Context, id string) (domain.Message, bool, error)
	ListMessages(ctx context.Context) ([]domain.Message, error)
	UpdateMessageOutcome(ctx context.Context, id string, status domain.MessageStatus, moderationResult, feedback string) (domain.Message, bool, error)
	InsertPair(ctx context.Context, pair domain.ParentPair) error
	ListPairs(ctx context.Context) ([]domain.ParentPair, error)
	FindPartnerPhone(ctx context.Context, phone string) (string, bool, error)
}

type Moderator interface {
	Moderate(ctx context.Context, content string) domain.ModerationVerdict
}

type Sender interface {
	Send(ctx context.Context, to, body string) error
}

type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, messageID, fromPhone, recipientPhone, status, severity string, occurredAt time.Time) error
}

// RelayService owns the intake pipeline and the pair registry operations.
// Events is optional; when nil no outcome events are published.
type RelayService struct {
	Store     Store
	Moderator Moderator
	Sender    Sender
	Events    OutcomePublisher
	MessageID func() string
	PairID    func() string
}

const (
	approvedFeedback   = "Message approved and forwarded"
	unregisteredNotice = "Your phone number is not registered in the co-parent messaging system. Please contact support to set up your account."
)

// HandleInbound runs one webhook call through the pipeline:
// resolve partner -> persist pending -> moderate -> persist outcome -> deliver.
// Moderation failures never surface here (the moderator returns a fail-safe
// block verdict instead); storage and delivery failures do, and steps already
// completed are not retracted.
func (s *RelayService) HandleInbound(ctx context.Context, in domain.InboundSMS, now time.Time) error {
	if err := in.Validate(); err != nil {
		return err
	}
	from := util.NormalizePhone(in.From)

	recipient, found, err := s.Store.FindPartnerPhone(ctx, from)
	if err != nil {
		return fmt.Errorf("resolve partner for %s: %w", from, err)
	}
	if !found {
		slog.Warn("no partner registered for sender", "from", from)
		// Still a handled webhook either way: the carrier must not retry.
		if err := s.Sender.Send(ctx, from, unregisteredNotice); err != nil {
			slog.Error("send unregistered notice failed", "err", err, "from", from)
		}
		return nil
	}

	msg := domain.Message{
		ID:             s.MessageID(),
		FromPhone:      from,
		ToPhone:        util.NormalizePhone(in.To),
		RecipientPhone: recipient,
		Content:        in.Body,
		Status:         domain.StatusPending,
		CreatedAt:      now,
	}
	if err := s.Store.InsertMessage(ctx, msg); err != nil {
		return fmt.Errorf("persist pending message from %s: %w", from, err)
	}

	verdict := s.Moderator.Moderate(ctx, in.Body)

	status := domain.StatusBlocked
	feedback := ComposeFeedback(verdict)
	if verdict.IsAppropriate {
		status = domain.StatusApproved
		feedback = approvedFeedback
	}

	verdictJSON, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("serialize verdict for %s: %w", msg.ID, err)
	}

	if _, found, err := s.Store.UpdateMessageOutcome(ctx, msg.ID, status, string(verdictJSON), feedback); err != nil {
		return fmt.Errorf("persist outcome for %s: %w", msg.ID, err)
	} else if !found {
		return fmt.Errorf("persist outcome for %s: %w", msg.ID, domain.ErrStoreInconsistent)
	}

	// Exactly one outbound send per inbound message.
	if status == domain.StatusApproved {
		if err := s.Sender.Send(ctx, recipient, in.Body); err != nil {
			return fmt.Errorf("forward %s to %s: %w", msg.ID, recipient, err)
		}
		slog.Info("message approved and forwarded", "id", msg.ID, "from", from, "to", recipient)
	} else {
		if err := s.Sender.Send(ctx, from, feedback); err != nil {
			return fmt.Errorf("send feedback for %s to %s: %w", msg.ID, from, err)
		}
		slog.Info("message blocked, feedback sent", "id", msg.ID, "from", from, "severity", verdict.Severity)
	}
	observability.RelayOutcomes.WithLabelValues(string(status)).Inc()

	s.publishOutcome(ctx, msg, status, verdict.Severity, now)
	return nil
}

func (s *RelayService) publishOutcome(ctx context.Context, msg domain.Message, status domain.MessageStatus, severity string, now time.Time) {
	if s.Events == nil {
		return
	}
	err := s.Events.PublishOutcome(ctx, msg.ID, msg.FromPhone, msg.RecipientPhone, string(status), severity, now)
	if err != nil {
		slog.Error("publish outcome event failed", "err", err, "id", msg.ID)
		observability.OutcomeEvents.WithLabelValues("error").Inc()
		return
	}
	observability.OutcomeEvents.WithLabelValues("ok").Inc()
}

// ComposeFeedback renders a blocked verdict as the text sent back to the
// sender: preamble, numbered issues, numbered suggestions, closing instruction.
// Empty lists are omitted entirely.
func ComposeFeedback(v domain.ModerationVerdict) string {
	var b strings.Builder
	b.WriteString("Your message was not delivered because it contains content that may escalate conflict.\n\n")

	if len(v.Issues) > 0 {
		b.WriteString("Issues detected:\n")
		for i, issue := range v.Issues {
			fmt.Fprintf(&b, "%d. %s\n", i+1, issue)
		}
		b.WriteString("\n")
	}

	if len(v.Suggestions) > 0 {
		b.WriteString("Suggestions for improvement:\n")
		for i, suggestion := range v.Suggestions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, suggestion)
		}
		b.WriteString("\n")
	}

	b.WriteString("Please rephrase your message in a respectful, factual manner focused on your children's needs.")
	return b.String()
}

func (s *RelayService) RegisterPair(ctx context.Context, phone1, phone2 string, now time.Time) (domain.ParentPair, error) {
	if phone1 == "" || phone2 == "" {
		return domain.ParentPair{}, domain.ErrMissingFields
	}
	pair := domain.ParentPair{
		ID:        s.PairID(),
		Phone1:    util.NormalizePhone(phone1),
		Phone2:    util.NormalizePhone(phone2),
		CreatedAt: now,
	}
	if err := s.Store.InsertPair(ctx, pair); err != nil {
		return domain.ParentPair{}, err
	}
	observability.PairRegistrations.Inc()
	return pair, nil
}

func (s *RelayService) ListPairs(ctx context.Context) ([]domain.ParentPair, error) {
	return s.Store.ListPairs(ctx)
}

func (s *RelayService) ListMessages(ctx context.Context) ([]domain.Message, error) {
	return s.Store.ListMessages(ctx)
}
