package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kirillkom/complaints-rag/internal/infrastructure/resilience"
)

const (
	DefaultRebuildSubject = "rag.index.rebuild"
	DefaultSwappedSubject = "rag.index.swapped"
	rebuildQueueGroup     = "index-builders"
)

type Options struct {
	RebuildSubject     string
	SwappedSubject     string
	ConnectTimeout     time.Duration
	ReconnectWait      time.Duration
	MaxReconnects      int
	ResilienceExecutor *resilience.Executor
}

type rebuildRequest struct {
	RequestID   string    `json:"request_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

type indexSwapped struct {
	BuildID   string    `json:"build_id"`
	SwappedAt time.Time `json:"swapped_at"`
}

// Events carries rebuild requests to builder workers (queue group, one worker
// handles each request) and swap notifications to every serving process.
type Events struct {
	conn           *nats.Conn
	rebuildSubject string
	swappedSubject string
	executor       *resilience.Executor
}

func Connect(url string, options Options) (*Events, error) {
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

	conn, err := nats.Connect(
		url,
		nats.Name("complaints-rag"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newEvents(conn, options), nil
}

func newEvents(conn *nats.Conn, options Options) *Events {
	rebuild := options.RebuildSubject
	if rebuild == "" {
		rebuild = DefaultRebuildSubject
	}
	swapped := options.SwappedSubject
	if swapped == "" {
		swapped = DefaultSwappedSubject
	}
	return &Events{
		conn:           conn,
		rebuildSubject: rebuild,
		swappedSubject: swapped,
		executor:       options.ResilienceExecutor,
	}
}

func (e *Events) Close() {
	if e.conn != nil {
		e.conn.Close()
	}
}

func (e *Events) PublishRebuildRequested(ctx context.Context, reason string) error {
	return e.publish(ctx, e.rebuildSubject, rebuildRequest{
		RequestID:   uuid.NewString(),
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
	})
}

func (e *Events) PublishIndexSwapped(ctx context.Context, buildID string) error {
	return e.publish(ctx, e.swappedSubject, indexSwapped{BuildID: buildID, SwappedAt: time.Now().UTC()})
}

func (e *Events) SubscribeRebuildRequested(ctx context.Context, handler func(context.Context, string) error) error {
	return e.subscribe(ctx, e.rebuildSubject, rebuildQueueGroup, func(ctx context.Context, data []byte) error {
		req, err := decodeRebuildRequest(data)
		if err != nil {
			return err
		}
		slog.Info("rebuild_request_received", "request_id", req.RequestID, "reason", req.Reason)
		return handler(ctx, req.Reason)
	})
}

func (e *Events) SubscribeIndexSwapped(ctx context.Context, handler func(context.Context, string) error) error {
	return e.subscribe(ctx, e.swappedSubject, "", func(ctx context.Context, data []byte) error {
		msg, err := decodeIndexSwapped(data)
		if err != nil {
			return err
		}
		return handler(ctx, msg.BuildID)
	})
}

func (e *Events) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	call := func(context.Context) error {
		if err := e.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	if e.executor != nil {
		err = e.executor.Run(ctx, "nats_publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// subscribe blocks until ctx is done, then drains the subscription.
func (e *Events) subscribe(ctx context.Context, subject, group string, handle func(context.Context, []byte) error) error {
	cb := func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		if err := handle(ctx, msg.Data); err != nil {
			slog.Error("event_handler_failed", "subject", subject, "error", err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if group != "" {
		sub, err = e.conn.QueueSubscribe(subject, group, cb)
	} else {
		sub, err = e.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	if err := e.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := e.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func decodeRebuildRequest(data []byte) (rebuildRequest, error) {
	var req rebuildRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return rebuildRequest{}, fmt.Errorf("decode rebuild request: %w", err)
	}
	return req, nil
}

func decodeIndexSwapped(data []byte) (indexSwapped, error) {
	var msg indexSwapped
	if err := json.Unmarshal(data, &msg); err != nil {
		return indexSwapped{}, fmt.Errorf("decode swap notification: %w", err)
	}
	if msg.BuildID == "" {
		return indexSwapped{}, errors.New("decode swap notification: empty build id")
	}
	return msg, nil
}
