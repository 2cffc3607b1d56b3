package sqsqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type Producer struct {
	SQS      *sqs.Client
	QueueURL string
}

// OutcomeEvent is the analytics feed record emitted after a message reaches a
// terminal status. Consumers are downstream of the relay; nothing in the
// inbound pipeline waits on them.
type OutcomeEvent struct {
	MessageID      string    `json:"messageId"`
	FromPhone      string    `json:"fromPhone"`
	RecipientPhone string    `json:"recipientPhone"`
	Status         string    `json:"status"`
	Severity       string    `json:"severity"`
	OccurredAt     time.Time `json:"occurredAt"`
}

func (p *Producer) PublishOutcome(ctx context.Context, messageID, fromPhone, recipientPhone, status, severity string, occurredAt time.Time) error {
	ev := OutcomeEvent{
		MessageID: messageID, FromPhone: fromPhone, RecipientPhone: recipientPhone,
		Status: status, Severity: severity, OccurredAt: occurredAt,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	// FIFO ordering per sender, dedup by message id.
	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               &p.QueueURL,
		MessageBody:            str(string(body)),
		MessageGroupId:         str(fromPhone),
		MessageDeduplicationId: str(messageID),
	})
	return err
}

func str(s string) *string { return &s }
