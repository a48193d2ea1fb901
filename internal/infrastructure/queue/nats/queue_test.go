package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
)

func TestHandleRequestAnswers(t *testing.T) {
	var asked string
	out := handleRequest(context.Background(), []byte(`{"pergunta":"resuma as atas de 2023"}`), func(_ context.Context, q string) domain.Answer {
		asked = q
		return domain.Answer{Text: "resumo", Intent: domain.IntentSummary, Outcome: domain.OutcomeAnswered, Sources: []string{"a"}, Selected: 1}
	})

	var reply AskReply
	if err := json.Unmarshal(out, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if asked != "resuma as atas de 2023" {
		t.Fatalf("unexpected question %q", asked)
	}
	if reply.Answer != "resumo" || reply.Intent != "SUMMARY" || reply.Outcome != domain.OutcomeAnswered || reply.Selected != 1 {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestHandleRequestRejectsBadPayload(t *testing.T) {
	called := false
	handler := func(context.Context, string) domain.Answer {
		called = true
		return domain.Answer{}
	}
	for _, payload := range []string{`not json`, `{"pergunta":"   "}`} {
		var reply AskReply
		if err := json.Unmarshal(handleRequest(context.Background(), []byte(payload), handler), &reply); err != nil {
			t.Fatalf("decode reply: %v", err)
		}
		if reply.Error == "" {
			t.Fatalf("expected error reply for %q", payload)
		}
	}
	if called {
		t.Fatalf("handler must not run for invalid payloads")
	}
}

func TestClassifyNATSError(t *testing.T) {
	if c := classifyNATSError(fmt.Errorf("nats request: %w", nats.ErrNoResponders)); !c.Retryable {
		t.Fatalf("expected no responders to be retryable")
	}
	if c := classifyNATSError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("expected cancellation to be ignored, got %+v", c)
	}
	if c := classifyNATSError(errors.New("bad subject")); c.Retryable {
		t.Fatalf("expected unknown error to be permanent")
	}
	if err := wrapTemporaryIfNeeded("nats ask", nats.ErrTimeout); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}
