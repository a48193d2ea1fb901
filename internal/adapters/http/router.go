package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/rpps-atas-assistant/internal/config"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/ports"
	"github.com/kirillkom/rpps-atas-assistant/internal/observability/metrics"
)

const serviceName = "rpps-api"

type Router struct {
	cfg      config.Config
	metrics  *metrics.HTTPServerMetrics
	answerer ports.QuestionAnswerer
}

func NewRouter(cfg config.Config, m *metrics.HTTPServerMetrics, answerer ports.QuestionAnswerer) *Router {
	return &Router{
		cfg:      cfg,
		metrics:  m,
		answerer: answerer,
	}
}

type askRequest struct {
	Question string `json:"pergunta"`
}

type askResponse struct {
	Answer   string   `json:"resposta"`
	Intent   string   `json:"intent"`
	Outcome  string   `json:"outcome"`
	Sources  []string `json:"sources,omitempty"`
	Selected int      `json:"selected"`
}

func (rt *Router) Handler() http.Handler {
	var ask http.Handler = http.HandlerFunc(rt.ask)
	ask = backpressureMiddleware(ask, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, rt.onReject)
	if rt.cfg.APIRateLimitRPS > 0 {
		burst := max(rt.cfg.APIRateLimitBurst, 1)
		ask = rateLimitMiddleware(ask, rate.NewLimiter(rate.Limit(rt.cfg.APIRateLimitRPS), burst), rt.onReject)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/ask", ask)
	mux.Handle("/v1/ask", ask)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	req, err := decodeAsk(w, r, rt.cfg.APIRequestBodyLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	started := time.Now()
	answer := rt.answerer.Ask(r.Context(), req.Question)
	if rt.metrics != nil {
		rt.metrics.RecordAnswer(serviceName, string(answer.Intent), answer.Outcome, answer.Selected, time.Since(started))
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:   answer.Text,
		Intent:   string(answer.Intent),
		Outcome:  answer.Outcome,
		Sources:  answer.Sources,
		Selected: answer.Selected,
	})
}

func decodeAsk(w http.ResponseWriter, r *http.Request, limit int64) (askRequest, error) {
	if limit <= 0 {
		limit = 16 << 10
	}
	var req askRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, domain.WrapError(domain.ErrInvalidInput, "decode ask", fmt.Errorf("body exceeds %d bytes", limit))
		}
		return req, domain.WrapError(domain.ErrInvalidInput, "decode ask", errors.New("invalid json"))
	}
	return req, nil
}

func (rt *Router) onReject(r *http.Request, reason string) {
	slog.Warn("request_rejected",
		"request_id", requestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"reason", reason,
	)
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
