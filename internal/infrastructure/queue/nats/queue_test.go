package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

type connFake struct {
	errs     []error
	subjects []string
	payloads [][]byte
}

func (c *connFake) Publish(subject string, data []byte) error {
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return err
	}
	return nil
}

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
	})
}

func TestPublishVerdictEncodesEvent(t *testing.T) {
	conn := &connFake{}
	p := newPublisher(conn, "intake.verdict", nil, nil)
	crossCheck := true

	err := p.PublishVerdict(context.Background(), domain.VerdictEvent{
		EventID:     "e1",
		SessionID:   "abc123",
		ProductLine: "VEHICLE_REG",
		Complete:    true,
		CrossCheck:  &crossCheck,
		Version:     2,
	})
	if err != nil {
		t.Fatalf("PublishVerdict() error = %v", err)
	}
	if len(conn.subjects) != 1 || conn.subjects[0] != "intake.verdict" {
		t.Fatalf("unexpected subjects %v", conn.subjects)
	}

	var decoded domain.VerdictEvent
	if err := json.Unmarshal(conn.payloads[0], &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.SessionID != "abc123" || !decoded.Complete || decoded.Version != 2 {
		t.Fatalf("unexpected decoded event %+v", decoded)
	}
}

func TestPublishVerdictRetriesTransientErrors(t *testing.T) {
	conn := &connFake{errs: []error{nats.ErrTimeout}}
	p := newPublisher(conn, "intake.verdict", testExecutor(), nil)

	if err := p.PublishVerdict(context.Background(), domain.VerdictEvent{SessionID: "s"}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(conn.payloads) != 2 {
		t.Fatalf("expected 2 publish attempts, got %d", len(conn.payloads))
	}
}

func TestPublishVerdictMarksConnectionLossTemporary(t *testing.T) {
	conn := &connFake{errs: []error{nats.ErrConnectionClosed}}
	p := newPublisher(conn, "intake.verdict", nil, nil)

	err := p.PublishVerdict(context.Background(), domain.VerdictEvent{SessionID: "s"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestPublishVerdictPermanentErrorNotRetried(t *testing.T) {
	conn := &connFake{errs: []error{nats.ErrBadSubject, nats.ErrBadSubject}}
	p := newPublisher(conn, "", testExecutor(), nil)

	err := p.PublishVerdict(context.Background(), domain.VerdictEvent{SessionID: "s"})
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if !errors.Is(err, nats.ErrBadSubject) || len(conn.payloads) != 1 {
		t.Fatalf("expected a single attempt, got %d (%v)", len(conn.payloads), err)
	}
}

func TestPublishVerdictPublisherBugsDoNotTripBreaker(t *testing.T) {
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    1,
		BreakerEnabled:      true,
		BreakerMinRequests:  1,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	})
	conn := &connFake{errs: []error{nats.ErrMaxPayload, nats.ErrBadSubject, nats.ErrMaxPayload}}
	p := newPublisher(conn, "intake.verdict", exec, nil)

	for i := 0; i < 3; i++ {
		err := p.PublishVerdict(context.Background(), domain.VerdictEvent{SessionID: "s"})
		if err == nil || domain.IsKind(err, domain.ErrTemporary) {
			t.Fatalf("attempt %d: expected permanent error, got %v", i, err)
		}
	}
	if state := exec.State(publishOperation); state != gobreaker.StateClosed {
		t.Fatalf("expected breaker closed, got %s", state)
	}
}

func TestPublishVerdictReconnectingIsTemporary(t *testing.T) {
	conn := &connFake{errs: []error{nats.ErrConnectionReconnecting}}
	p := newPublisher(conn, "intake.verdict", nil, nil)

	err := p.PublishVerdict(context.Background(), domain.VerdictEvent{SessionID: "s"})
	if !domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, nats.ErrConnectionReconnecting) {
		t.Fatalf("expected temporary reconnecting error, got %v", err)
	}
}
