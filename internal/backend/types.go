// Package backend is the HTTP client for the question generation and answer
// evaluation service.
package backend

// QuestionRequest asks the backend to generate interview questions.
type QuestionRequest struct {
	Topic string `json:"topic"`
	Level string `json:"level"`
	Count int    `json:"count"`
}

// Question is the backend's response to a generation request. It also
// opens the server-side session.
type Question struct {
	SessionID       string `json:"session_id"`
	Question        string `json:"question"`
	Topic           string `json:"topic"`
	DifficultyLevel string `json:"difficulty_level"`
	Timestamp       string `json:"timestamp"`
}

// PostureData is the posture snapshot as the backend expects it.
type PostureData struct {
	Duration  int    `json:"duration"`
	Stability string `json:"stability"`
	Samples   int    `json:"samples"`
	Notes     string `json:"notes"`
}

// EvaluateRequest is the frozen session record submitted for evaluation.
type EvaluateRequest struct {
	SessionID   string      `json:"session_id"`
	Transcript  string      `json:"transcript"`
	PostureData PostureData `json:"posture_data"`
}

// Evaluation carries the markdown-ish feedback for a submitted answer.
type Evaluation struct {
	SessionID string `json:"session_id"`
	Feedback  string `json:"feedback"`
}

// StoredSession is the backend's full view of a session.
type StoredSession struct {
	SessionID         string       `json:"session_id"`
	QuestionText      string       `json:"question_text"`
	UserTranscription *string      `json:"user_transcription"`
	Topic             string       `json:"topic"`
	DifficultyLevel   string       `json:"difficulty_level"`
	Timestamp         string       `json:"timestamp"`
	PostureData       *PostureData `json:"posture_data"`
	Feedback          *string      `json:"feedback"`
}
