package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"anyquiz-service/internal/app"
	"anyquiz-service/internal/domain"
)

func TestHTTPTriggerSendsKeyword(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("keyword")
		_, _ = w.Write([]byte("not json, ignored"))
	}))
	defer srv.Close()

	trigger := NewHTTPTrigger(srv.URL+"/py/n_cgi.py", srv.Client())
	job := app.GenerationJob{ID: "j1", QuizID: 1, Key: domain.QuizKey{Keyword: "Go language", Source: domain.SourceWiki}}
	if err := trigger.Generate(context.Background(), job); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "Go language" {
		t.Fatalf("expected keyword, got %q", got)
	}
}

func TestHTTPTriggerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewHTTPTrigger(srv.URL, srv.Client()).Generate(context.Background(), app.GenerationJob{Key: domain.QuizKey{Keyword: "Go"}})
	if err == nil {
		t.Fatalf("expected error on 500")
	}
}

type recordingWriter struct {
	mu        sync.Mutex
	quizID    int64
	questions []domain.Question
}

func (w *recordingWriter) AddQuestions(_ context.Context, quizID int64, questions []domain.Question) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.quizID = quizID
	w.questions = append(w.questions, questions...)
	return nil
}

func TestOpenAIGeneratorStoresToolCallQuestions(t *testing.T) {
	args, _ := json.Marshal(map[string]interface{}{
		"questions": []map[string]interface{}{
			{"question": "Who designed Go?", "answer": "Google", "multiple_choice": true, "paragraph": 0},
			{"question": "What runs concurrently?", "answer": "goroutines", "multiple_choice": false, "paragraph": 1},
			{"question": "", "answer": "dropped", "multiple_choice": true, "paragraph": 0},
			{"question": "Out of range?", "answer": "yes", "multiple_choice": false, "paragraph": 7},
		},
	})

	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) > 1 {
			prompt = req.Messages[1].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "tool_calls",
				"message": map[string]interface{}{
					"role": "assistant",
					"tool_calls": []map[string]interface{}{{
						"id":   "call_1",
						"type": "function",
						"function": map[string]interface{}{
							"name":      "submit_questions",
							"arguments": string(args),
						},
					}},
				},
			}},
		})
	}))
	defer srv.Close()

	writer := &recordingWriter{}
	gen := NewOpenAIGenerator(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"}, writer)
	job := app.GenerationJob{
		ID:     "j1",
		QuizID: 42,
		Key:    domain.QuizKey{Keyword: "Go", Source: domain.SourceWiki},
		Paragraphs: []domain.Paragraph{
			{ID: 100, Text: "Go was designed at Google."},
			{ID: 101, Text: "Goroutines run concurrently."},
		},
	}
	if err := gen.Generate(context.Background(), job); err != nil {
		t.Fatalf("generate: %v", err)
	}

	if !strings.Contains(prompt, "[1] Goroutines run concurrently.") {
		t.Fatalf("expected numbered paragraphs in prompt, got %q", prompt)
	}
	if writer.quizID != 42 || len(writer.questions) != 3 {
		t.Fatalf("expected 3 questions for quiz 42, got %d for %d", len(writer.questions), writer.quizID)
	}
	first := writer.questions[0]
	if first.Type != domain.QuestionMultipleChoice || first.ParagraphID == nil || *first.ParagraphID != 100 {
		t.Fatalf("unexpected first question %+v", first)
	}
	if writer.questions[1].Type != domain.QuestionFreeText || *writer.questions[1].ParagraphID != 101 {
		t.Fatalf("unexpected second question %+v", writer.questions[1])
	}
	if writer.questions[2].ParagraphID != nil {
		t.Fatalf("out of range paragraph must not be referenced")
	}
}

func TestOpenAIGeneratorSkipsEmptyJobs(t *testing.T) {
	writer := &recordingWriter{}
	gen := NewOpenAIGenerator(OpenAIConfig{APIKey: "test", BaseURL: "http://127.0.0.1:1/v1"}, writer)
	if err := gen.Generate(context.Background(), app.GenerationJob{QuizID: 1}); err != nil {
		t.Fatalf("expected no call for empty job, got %v", err)
	}
	if len(writer.questions) != 0 {
		t.Fatalf("expected nothing stored")
	}
}
