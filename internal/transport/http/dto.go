package http

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"anyquiz-service/internal/domain"
)

const (
	restAPIVersion  = "1.1"
	timestampLayout = "2006-01-02 15:04:05"
)

type quizSummary struct {
	Timestamp string `json:"timestamp"`
	Keyword   string `json:"keyword"`
	Source    string `json:"source"`
	Image     string `json:"image"`
}

func toQuizSummaries(quizzes []domain.Quiz) []quizSummary {
	out := make([]quizSummary, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, quizSummary{
			Timestamp: q.CreatedAt.Format(timestampLayout),
			Keyword:   q.Key.Keyword,
			Source:    string(q.Key.Source),
			Image:     q.Image,
		})
	}
	return out
}

type listResponse struct {
	RestAPIVersion string        `json:"rest_api_v"`
	Quizzes        []quizSummary `json:"quizzes"`
	Sort           string        `json:"sort"`
	Start          int           `json:"start"`
	End            int           `json:"end"`
}

type randomResponse struct {
	RestAPIVersion string        `json:"rest_api_v"`
	Quizzes        []quizSummary `json:"quizzes"`
}

type statusResponse struct {
	Keyword string `json:"keyword"`
	Source  string `json:"source"`
	domain.QuizStatus
}

type statusErrorResponse struct {
	Keyword string `json:"keyword"`
	Source  string `json:"source"`
	Error   string `json:"error"`
}

type readResponse struct {
	Source    string `json:"source"`
	Summary   string `json:"summary"`
	Image     string `json:"image"`
	Timestamp string `json:"timestamp"`
}

type questionsResponse struct {
	Questions []domain.QuestionView `json:"questions"`
}

type studyResponse struct {
	Questions  []domain.QuestionView `json:"questions"`
	Paragraphs []domain.Paragraph    `json:"paragraphs"`
}

// questionID accepts both 42 and "42" on the wire.
type questionID int64

func (id *questionID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return fmt.Errorf("questionID is required")
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("questionID %q is not an integer", raw)
	}
	*id = questionID(v)
	return nil
}

type gradeRequest struct {
	QuestionID     questionID `json:"questionID"`
	SelectedAnswer string     `json:"selectedAnswer"`
}

type gradeResponse struct {
	QuestionID int64  `json:"questionID"`
	Result     bool   `json:"result"`
	Error      string `json:"error,omitempty"`
}

type editRequest struct {
	QuestionID questionID `json:"questionID"`
	NewText    string     `json:"newText"`
	NewAnswer  string     `json:"newAnswer"`
}

type resultResponse struct {
	QuestionID int64 `json:"questionID"`
	Result     any   `json:"result"`
}

type deleteRequest struct {
	QuestionID questionID `json:"questionID"`
}

type errorPayload struct {
	Error string `json:"error"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type statusMessage struct {
	Keyword string `json:"keyword"`
	Source  string `json:"source"`
	domain.QuizStatus
}
