package ports

import (
	"context"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
)

// QuestionAnswerer is the inbound contract of the request boundary. Collaborator
// failures are folded into the answer text; it never returns an error for them.
type QuestionAnswerer interface {
	Ask(ctx context.Context, question string) domain.Answer
}
