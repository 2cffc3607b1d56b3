package delivery

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/time/rate"

	"corelay/internal/providers/twilio"
)

type scriptedCarrier struct {
	calls     int
	responses []scriptedResponse
}

type scriptedResponse struct {
	status int
	err    error
}

func (c *scriptedCarrier) SendSMS(ctx context.Context, req twilio.SendRequest) (twilio.SendResponse, int, []byte, error) {
	r := c.responses[c.calls]
	c.calls++
	if r.err != nil {
		return twilio.SendResponse{}, r.status, nil, r.err
	}
	return twilio.SendResponse{Sid: "SM1", Status: "queued"}, r.status, nil, nil
}

func TestSendSucceedsFirstAttempt(t *testing.T) {
	c := &scriptedCarrier{responses: []scriptedResponse{{status: 201}}}
	s := &Sender{Carrier: c}

	if err := s.Send(context.Background(), "+2222", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.calls != 1 {
		t.Fatalf("expected 1 carrier call, got %d", c.calls)
	}
}

func TestSendRetriesTransientFailure(t *testing.T) {
	c := &scriptedCarrier{responses: []scriptedResponse{
		{status: 500, err: errors.New("twilio send failed")},
		{status: 201},
	}}
	s := &Sender{Carrier: c}

	if err := s.Send(context.Background(), "+2222", "hello"); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if c.calls != 2 {
		t.Fatalf("expected 2 carrier calls, got %d", c.calls)
	}
}

func TestSendStopsOnNonRetryableFailure(t *testing.T) {
	c := &scriptedCarrier{responses: []scriptedResponse{
		{status: 400, err: errors.New("invalid To number")},
		{status: 201},
	}}
	s := &Sender{Carrier: c}

	if err := s.Send(context.Background(), "bogus", "hello"); err == nil {
		t.Fatalf("expected error for non-retryable failure")
	}
	if c.calls != 1 {
		t.Fatalf("expected exactly 1 carrier call, got %d", c.calls)
	}
}

func TestSendSaturatedLimiterReturnsError(t *testing.T) {
	// Burst 0 makes every Wait fail; the carrier must never be reached and
	// Send must not report success for a message it never handed over.
	c := &scriptedCarrier{responses: []scriptedResponse{{status: 201}, {status: 201}, {status: 201}}}
	s := &Sender{Carrier: c, Limiter: rate.NewLimiter(rate.Limit(1), 0)}

	if err := s.Send(context.Background(), "+2222", "hello"); err == nil {
		t.Fatalf("expected error when the rate limiter never admits the send")
	}
	if c.calls != 0 {
		t.Fatalf("expected 0 carrier calls, got %d", c.calls)
	}
}

func TestSendExhaustsRetries(t *testing.T) {
	fail := scriptedResponse{status: 503, err: errors.New("twilio send failed")}
	c := &scriptedCarrier{responses: []scriptedResponse{fail, fail, fail}}
	s := &Sender{Carrier: c}

	if err := s.Send(context.Background(), "+2222", "hello"); err == nil {
		t.Fatalf("expected error after exhausted retries")
	}
	if c.calls != 3 {
		t.Fatalf("expected 3 carrier calls, got %d", c.calls)
	}
}
