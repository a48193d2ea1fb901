package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/resilience"
)

// AskRequest and AskReply are the request/reply wire format on the ask subject.
type AskRequest struct {
	Question  string `json:"pergunta"`
	RequestID string `json:"request_id,omitempty"`
}

type AskReply struct {
	Answer   string   `json:"resposta"`
	Intent   string   `json:"intent,omitempty"`
	Outcome  string   `json:"outcome,omitempty"`
	Sources  []string `json:"sources,omitempty"`
	Selected int      `json:"selected,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// AskHandler answers one question; it must not return collaborator errors.
type AskHandler func(ctx context.Context, question string) domain.Answer

type Bus struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url, subject string) (*Bus, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Bus, error) {
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

	conn, err := nats.Connect(
		url,
		nats.Name("rpps-atas-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", fmt.Sprint(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// Ask sends a question to the workers and waits for the reply until ctx expires.
func (b *Bus) Ask(ctx context.Context, question string) (AskReply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return AskReply{}, domain.WrapError(domain.ErrInvalidInput, "nats ask", errors.New("empty question"))
	}
	payload, err := json.Marshal(AskRequest{Question: question})
	if err != nil {
		return AskReply{}, fmt.Errorf("marshal ask request: %w", err)
	}

	call := func(callCtx context.Context) (*nats.Msg, error) {
		msg, err := b.conn.RequestWithContext(callCtx, b.subject, payload)
		if err != nil {
			return nil, fmt.Errorf("nats request: %w", err)
		}
		return msg, nil
	}

	msg, err := resilience.Do(ctx, b.executor, "nats.request", call, classifyNATSError)
	if err != nil {
		return AskReply{}, wrapTemporaryIfNeeded("nats ask", err)
	}

	var reply AskReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return AskReply{}, fmt.Errorf("decode ask reply: %w", err)
	}
	if reply.Error != "" {
		return reply, domain.WrapError(domain.ErrInvalidInput, "nats ask", errors.New(reply.Error))
	}
	return reply, nil
}

// Serve answers requests on the subject in a queue group until ctx is done.
func (b *Bus) Serve(ctx context.Context, timeout time.Duration, handler AskHandler) error {
	sub, err := b.conn.QueueSubscribe(b.subject, "rpps-workers", func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		handlerCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := msg.Respond(handleRequest(handlerCtx, msg.Data, handler)); err != nil {
			slog.Error("nats_respond_failed", "error", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func handleRequest(ctx context.Context, data []byte, handler AskHandler) []byte {
	var req AskRequest
	var reply AskReply
	if err := json.Unmarshal(data, &req); err != nil {
		reply.Error = "invalid request payload"
	} else if strings.TrimSpace(req.Question) == "" {
		reply.Error = "pergunta is required"
	} else {
		answer := handler(ctx, req.Question)
		reply = AskReply{
			Answer:   answer.Text,
			Intent:   string(answer.Intent),
			Outcome:  answer.Outcome,
			Sources:  answer.Sources,
			Selected: answer.Selected,
		}
	}
	out, err := json.Marshal(reply)
	if err != nil {
		return []byte(`{"error":"encode reply"}`)
	}
	return out
}
