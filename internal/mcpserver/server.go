// Package mcpserver exposes the interview backend to MCP clients over
// stdio, so an agent can draw practice questions and read back feedback.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/jwulff/steno/interview/internal/backend"
)

// Backend is the part of the backend client the tools use.
type Backend interface {
	GenerateQuestion(ctx context.Context, topic, level string, count int) (backend.Question, error)
	Evaluate(ctx context.Context, req backend.EvaluateRequest) (backend.Evaluation, error)
	Session(ctx context.Context, sessionID string) (backend.StoredSession, error)
}

// Server wraps the MCP server and its tool handlers.
type Server struct {
	backend Backend
	levels  []string
	log     logrus.FieldLogger
	mcp     *server.MCPServer
}

// New builds a server with every tool registered. levels restricts the
// level argument of generate_question, which defaults to medium.
func New(b Backend, levels []string, version string, log logrus.FieldLogger) *Server {
	s := &Server{
		backend: b,
		levels:  levels,
		log:     log,
		mcp:     server.NewMCPServer("steno-interview", version, server.WithToolCapabilities(false)),
	}

	levelOpts := []mcp.PropertyOption{mcp.Description("Difficulty level")}
	if len(levels) > 0 {
		levelOpts = append(levelOpts, mcp.Enum(levels...))
	}
	s.mcp.AddTool(mcp.NewTool("generate_question",
		mcp.WithDescription("Generate a practice interview question and open a session for it"),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Interview topic, e.g. Behavioral or Go concurrency")),
		mcp.WithString("level", levelOpts...),
	), s.generateQuestion)

	s.mcp.AddTool(mcp.NewTool("evaluate_answer",
		mcp.WithDescription("Submit an answer transcript for a session and return the feedback"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID returned by generate_question")),
		mcp.WithString("transcript", mcp.Required(), mcp.Description("The spoken or written answer")),
	), s.evaluateAnswer)

	s.mcp.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Fetch a stored session with its question, answer and feedback"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	), s.getSession)

	return s
}

// ServeStdio blocks serving MCP over stdin and stdout.
func (s *Server) ServeStdio() error {
	s.log.Info("serving MCP over stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) generateQuestion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic, err := req.RequireString("topic")
	if err != nil || strings.TrimSpace(topic) == "" {
		return mcp.NewToolResultError("topic is required"), nil
	}
	level := req.GetString("level", s.defaultLevel())
	if !s.validLevel(level) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown level %q", level)), nil
	}

	q, err := s.backend.GenerateQuestion(ctx, strings.TrimSpace(topic), level, 1)
	if err != nil {
		s.log.WithError(err).Warn("generate_question failed")
		return mcp.NewToolResultErrorFromErr("generate question", err), nil
	}
	s.log.WithField("session", q.SessionID).Info("generated question")
	return jsonResult(q)
}

func (s *Server) evaluateAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	transcript, err := req.RequireString("transcript")
	if err != nil || strings.TrimSpace(transcript) == "" {
		return mcp.NewToolResultError("transcript is required"), nil
	}

	// No camera here, so posture is reported as unmeasured.
	ev, err := s.backend.Evaluate(ctx, backend.EvaluateRequest{
		SessionID:  id,
		Transcript: strings.TrimSpace(transcript),
		PostureData: backend.PostureData{
			Stability: "Unknown",
			Notes:     "Submitted without camera",
		},
	})
	if err != nil {
		s.log.WithError(err).WithField("session", id).Warn("evaluate_answer failed")
		return mcp.NewToolResultErrorFromErr("evaluate", err), nil
	}
	return mcp.NewToolResultText(ev.Feedback), nil
}

func (s *Server) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	sess, err := s.backend.Session(ctx, id)
	if err != nil {
		s.log.WithError(err).WithField("session", id).Warn("get_session failed")
		return mcp.NewToolResultErrorFromErr("get session", err), nil
	}
	return jsonResult(sess)
}

func (s *Server) defaultLevel() string {
	if len(s.levels) == 0 {
		return "medium"
	}
	for _, l := range s.levels {
		if l == "medium" {
			return l
		}
	}
	return s.levels[0]
}

func (s *Server) validLevel(level string) bool {
	if len(s.levels) == 0 {
		return true
	}
	for _, l := range s.levels {
		if l == level {
			return true
		}
	}
	return false
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
