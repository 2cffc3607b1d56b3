// Package delivery hands message bodies to the carrier, protecting it with a
// local rate limit, a circuit breaker, and bounded retries on transient
// failures.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"corelay/internal/observability"
	"corelay/internal/providers/twilio"
)

type Carrier interface {
	SendSMS(ctx context.Context, req twilio.SendRequest) (twilio.SendResponse, int, []byte, error)
}

type Sender struct {
	Carrier Carrier
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker
}

// Send delivers body to a single destination. Failures surface to the caller;
// the relay pipeline reports them as a processing failure without touching the
// already-persisted moderation outcome.
func (s *Sender) Send(ctx context.Context, to, body string) error {
	var lastErr error
	start := time.Now()

	for attempt := 0; attempt < 3; attempt++ {
		if s.Limiter != nil {
			waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Second)
			err := s.Limiter.Wait(waitCtx)
			cancelWait()
			if err != nil {
				// Must stay non-nil: an exhausted loop reports failure, never
				// a silent drop.
				lastErr = fmt.Errorf("rate limiter wait: %w", err)
				observability.TwilioSend.WithLabelValues("rate_limited_local", "0").Inc()
				time.Sleep(200 * time.Millisecond)
				continue
			}
		}

		_, err := s.executeWithBreaker(ctx, to, body)

		// Breaker open: fail fast, this is transient provider protection.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.TwilioSend.WithLabelValues("cb_open", "0").Inc()
			return err
		}

		if err == nil {
			observability.TwilioSend.WithLabelValues("ok", "2xx").Inc()
			observability.TwilioLatency.Observe(time.Since(start).Seconds())
			return nil
		}

		lastErr = err

		// A non-2xx response carries both an error and a status; classify on
		// the status when we have one, on the transport error otherwise.
		httpStatus := 0
		retryable := false
		var cce carrierCallError
		if errors.As(err, &cce) {
			httpStatus = cce.httpStatus
			if httpStatus > 0 {
				retryable = twilio.ShouldRetry(nil, httpStatus)
			} else {
				retryable = twilio.ShouldRetry(cce.err, 0)
			}
		}
		observability.TwilioSend.WithLabelValues("error", strconv.Itoa(httpStatus)).Inc()

		if !retryable {
			return err
		}
		time.Sleep(twilio.Backoff(attempt))
	}

	return lastErr
}

func (s *Sender) executeWithBreaker(ctx context.Context, to, body string) (any, error) {
	call := func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
		defer cancel()

		resp, httpStatus, raw, callErr := s.Carrier.SendSMS(reqCtx, twilio.SendRequest{
			To:   to,
			Body: body,
		})
		if callErr != nil {
			return nil, carrierCallError{err: callErr, httpStatus: httpStatus, raw: raw}
		}
		return resp, nil
	}

	if s.Breaker == nil {
		return call()
	}
	return s.Breaker.Execute(call)
}

type carrierCallError struct {
	err        error
	httpStatus int
	raw        []byte
}

func (e carrierCallError) Error() string { return e.err.Error() }
func (e carrierCallError) Unwrap() error { return e.err }
