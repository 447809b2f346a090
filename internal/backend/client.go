package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultURL is where the reference backend listens.
const DefaultURL = "http://127.0.0.1:5000"

// StatusError is returned for any non-2xx backend response.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s: %s", e.Op, e.Status, http.StatusText(e.Status), e.Body)
}

// Client talks to the backend over HTTP.
type Client struct {
	baseURL string
	c       *http.Client
}

// New creates a client. Per-call deadlines come from the caller's context;
// timeout only bounds a call made without one.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		c:       &http.Client{Timeout: timeout},
	}
}

// GenerateQuestion creates a new server-side session with count questions
// for the topic and level.
func (h *Client) GenerateQuestion(ctx context.Context, topic, level string, count int) (Question, error) {
	var out Question
	body := QuestionRequest{Topic: topic, Level: level, Count: count}
	if err := h.do(ctx, "generate question", http.MethodPost, "/hr-questions", body, &out); err != nil {
		return Question{}, err
	}
	if out.SessionID == "" {
		return Question{}, fmt.Errorf("generate question: response has no session_id")
	}
	return out, nil
}

// Evaluate submits a frozen session record and returns the feedback.
func (h *Client) Evaluate(ctx context.Context, req EvaluateRequest) (Evaluation, error) {
	var out Evaluation
	if err := h.do(ctx, "evaluate", http.MethodPost, "/evaluate", req, &out); err != nil {
		return Evaluation{}, err
	}
	return out, nil
}

// Session fetches the backend's stored view of a session.
func (h *Client) Session(ctx context.Context, sessionID string) (StoredSession, error) {
	var out StoredSession
	path := "/session/" + url.PathEscape(sessionID)
	if err := h.do(ctx, "get session", http.MethodGet, path, nil, &out); err != nil {
		return StoredSession{}, err
	}
	return out, nil
}

func (h *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := h.c.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: errorMessage(b)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s decode: %w", op, err)
	}
	return nil
}

// errorMessage pulls the "error" field out of a JSON error body, falling
// back to the raw text.
func errorMessage(b []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(b))
}
