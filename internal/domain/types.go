package domain

import (
	"errors"
	"time"
)

type MessageStatus string

const (
	StatusPending  MessageStatus = "pending"
	StatusApproved MessageStatus = "approved"
	StatusBlocked  MessageStatus = "blocked"
)

// ParentPair links two phone numbers authorized to relay messages to each
// other. The pair is undirected: lookup by either member yields the other.
type ParentPair struct {
	ID        string    `json:"id"`
	Phone1    string    `json:"phone1"`
	Phone2    string    `json:"phone2"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one inbound text and its moderation outcome. ToPhone is the
// number as dialed (the gateway's own number); RecipientPhone is the partner
// resolved from the registry. ModerationResult holds the serialized verdict
// once the message reaches a terminal status.
type Message struct {
	ID               string        `json:"id"`
	FromPhone        string        `json:"fromPhone"`
	ToPhone          string        `json:"toPhone"`
	RecipientPhone   string        `json:"recipientPhone"`
	Content          string        `json:"content"`
	Status           MessageStatus `json:"status"`
	ModerationResult string        `json:"moderationResult,omitempty"`
	Feedback         string        `json:"feedback,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// ModerationVerdict is the structured output of the moderation engine.
type ModerationVerdict struct {
	IsAppropriate bool     `json:"isAppropriate"`
	Issues        []string `json:"issues"`
	Suggestions   []string `json:"suggestions"`
	Tone          string   `json:"tone"`
	Severity      string   `json:"severity"`
}

// InboundSMS mirrors the carrier's form-encoded webhook fields.
type InboundSMS struct {
	From string
	To   string
	Body string
}

func (in InboundSMS) Validate() error {
	if in.From == "" || in.To == "" || in.Body == "" {
		return ErrMissingFields
	}
	return nil
}

type RegisterPairRequest struct {
	Phone1 string `json:"phone1"`
	Phone2 string `json:"phone2"`
}

func (r RegisterPairRequest) Validate() error {
	if r.Phone1 == "" || r.Phone2 == "" {
		return ErrMissingFields
	}
	return nil
}

var (
	ErrMissingFields = errors.New("missing required fields")

	// ErrStoreInconsistent means an outcome update targeted a message the
	// pipeline created moments earlier but the store no longer has.
	ErrStoreInconsistent = errors.New("message missing from store during update")
)
