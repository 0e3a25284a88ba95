package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"anyquiz-service/internal/app"
	"anyquiz-service/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

// QuestionWriter persists generated questions.
type QuestionWriter interface {
	AddQuestions(ctx context.Context, quizID int64, questions []domain.Question) error
}

// OpenAIConfig configures the OpenAI-backed generator.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Questions int
}

// OpenAIGenerator writes questions for a quiz's paragraphs using a chat
// completion with a forced submit_questions tool call.
type OpenAIGenerator struct {
	client    *openai.Client
	writer    QuestionWriter
	model     string
	questions int
}

func NewOpenAIGenerator(cfg OpenAIConfig, writer QuestionWriter) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	questions := cfg.Questions
	if questions <= 0 {
		questions = app.MaxQuestionsPerQuiz
	}
	return &OpenAIGenerator{
		client:    openai.NewClientWithConfig(clientCfg),
		writer:    writer,
		model:     model,
		questions: questions,
	}
}

type submittedQuestions struct {
	Questions []struct {
		Question       string `json:"question"`
		Answer         string `json:"answer"`
		MultipleChoice bool   `json:"multiple_choice"`
		Paragraph      int    `json:"paragraph"`
	} `json:"questions"`
}

func (g *OpenAIGenerator) Generate(ctx context.Context, job app.GenerationJob) error {
	if len(job.Paragraphs) == 0 {
		log.Printf("generation job %s: no paragraphs for %s, nothing to ask", job.ID, job.Key)
		return nil
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You write short trivia questions grounded strictly in the numbered paragraphs you are given.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: g.buildPrompt(job),
			},
		},
		Tools: []openai.Tool{submitQuestionsTool},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: submitQuestionsTool.Function.Name},
		},
	})
	if err != nil {
		return fmt.Errorf("generate questions for %s: %w", job.Key, err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return fmt.Errorf("generate questions for %s: no tool call in response", job.Key)
	}
	call := resp.Choices[0].Message.ToolCalls[0]
	if call.Function.Name != submitQuestionsTool.Function.Name {
		return fmt.Errorf("unexpected tool call: %s", call.Function.Name)
	}

	var submitted submittedQuestions
	if err := json.Unmarshal([]byte(call.Function.Arguments), &submitted); err != nil {
		return fmt.Errorf("parse tool arguments: %w", err)
	}

	questions := make([]domain.Question, 0, len(submitted.Questions))
	for _, s := range submitted.Questions {
		if strings.TrimSpace(s.Question) == "" || strings.TrimSpace(s.Answer) == "" {
			continue
		}
		q := domain.Question{Prompt: s.Question, Answer: s.Answer, Type: domain.QuestionFreeText}
		if s.MultipleChoice {
			q.Type = domain.QuestionMultipleChoice
		}
		if s.Paragraph >= 0 && s.Paragraph < len(job.Paragraphs) {
			pid := job.Paragraphs[s.Paragraph].ID
			q.ParagraphID = &pid
		}
		questions = append(questions, q)
		if len(questions) == g.questions {
			break
		}
	}

	if err := g.writer.AddQuestions(ctx, job.QuizID, questions); err != nil {
		return fmt.Errorf("store questions for %s: %w", job.Key, err)
	}
	log.Printf("generation job %s stored %d questions for %s", job.ID, len(questions), job.Key)
	return nil
}

func (g *OpenAIGenerator) buildPrompt(job app.GenerationJob) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write up to %d questions about %q from these paragraphs:\n\n", g.questions, job.Key.Keyword)
	for i, p := range job.Paragraphs {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i, p.Text)
	}
	sb.WriteString("Prefer answers of a few words. Mark a question multiple_choice when its answer is a short named entity ")
	sb.WriteString("that other answers could stand in for; otherwise leave it free text.\n")
	sb.WriteString("Use the submit_questions tool to return your questions.\n")
	return sb.String()
}

var submitQuestionsTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        "submit_questions",
		Description: "Submit generated quiz questions",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"questions": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"question": map[string]interface{}{
								"type":        "string",
								"description": "The question text",
							},
							"answer": map[string]interface{}{
								"type":        "string",
								"description": "The exact correct answer",
							},
							"multiple_choice": map[string]interface{}{
								"type":        "boolean",
								"description": "Whether the answer suits a multiple choice question",
							},
							"paragraph": map[string]interface{}{
								"type":        "integer",
								"description": "0-based index of the paragraph the question comes from",
							},
						},
						"required": []string{"question", "answer", "multiple_choice", "paragraph"},
					},
				},
			},
			"required": []string{"questions"},
		},
	},
}
