package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/resilience"
)

const serviceName = "ollama"

type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, chatModel, embedModel string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Completer calls the /api/chat endpoint with a system and a user message.
type Completer struct {
	client      *Client
	temperature float64
}

func NewCompleter(client *Client, temperature float64) *Completer {
	return &Completer{client: client, temperature: temperature}
}

func (c *Completer) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	messages := make([]map[string]string, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": user})

	options := map[string]any{"temperature": c.temperature}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}
	request := map[string]any{
		"model":    c.client.chatModel,
		"messages": messages,
		"stream":   false,
		"options":  options,
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := c.client.call(ctx, "/api/chat", request, &response, "chat"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Message.Content), nil
}

func (c *Client) call(ctx context.Context, path string, payload any, out any, operation string) error {
	if c.executor == nil {
		return c.postJSON(ctx, path, payload, out, operation)
	}
	err := c.executor.Execute(ctx, "ollama."+operation, func(callCtx context.Context) error {
		return c.postJSON(callCtx, path, payload, out, operation)
	}, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary("ollama "+operation, err, resilience.ClassifyHTTPError)
}
