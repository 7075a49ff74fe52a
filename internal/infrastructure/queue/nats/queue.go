package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

const publishOperation = "nats.publish"

// classifyPublishError retries connection trouble. A rejected subject or an
// oversized payload is a publisher bug and never trips the breaker.
var classifyPublishError = resilience.Classifier(
	resilience.When(resilience.IsCircuitOpen, resilience.Transient),
	resilience.When(resilience.Wrapping(
		nats.ErrNoServers,
		nats.ErrTimeout,
		nats.ErrConnectionClosed,
		nats.ErrConnectionReconnecting,
		nats.ErrDisconnected,
	), resilience.Transient),
	resilience.When(resilience.Wrapping(nats.ErrBadSubject, nats.ErrMaxPayload), resilience.Ignored),
)

// publisher is the part of *nats.Conn the verdict publisher needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// VerdictPublisher sends one JSON message per persisted verdict.
type VerdictPublisher struct {
	conn     publisher
	closer   func()
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string, options Options) (*VerdictPublisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("document-intake"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	p := newPublisher(conn, subject, options.ResilienceExecutor, logger)
	p.closer = func() {
		if err := conn.FlushTimeout(5 * time.Second); err != nil {
			logger.Warn("nats_flush_failed", "error", err)
		}
		conn.Close()
	}
	return p, nil
}

func newPublisher(conn publisher, subject string, executor *resilience.Executor, logger *slog.Logger) *VerdictPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerdictPublisher{
		conn:     conn,
		subject:  subject,
		executor: executor,
		logger:   logger,
	}
}

func (p *VerdictPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}

func (p *VerdictPublisher) PublishVerdict(ctx context.Context, event domain.VerdictEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal verdict event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := p.conn.Publish(p.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if p.executor != nil {
		err = p.executor.Execute(ctx, publishOperation, call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return resilience.WrapTemporary(publishOperation, err, classifyPublishError)
	}
	p.logger.DebugContext(ctx, "verdict_published", "subject", p.subject, "event_id", event.EventID)
	return nil
}
