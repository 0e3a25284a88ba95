package domain

import (
	"strings"
	"time"
)

// Source tags where a quiz's content came from.
type Source string

const (
	SourceWiki    Source = "wiki"
	SourceSolrURL Source = "solr_url"
)

// DefaultSource is used when a request does not name one.
const DefaultSource = SourceWiki

// ParseSource validates a source tag; an empty tag resolves to DefaultSource.
func ParseSource(raw string) (Source, error) {
	switch Source(raw) {
	case "":
		return DefaultSource, nil
	case SourceWiki, SourceSolrURL:
		return Source(raw), nil
	}
	return "", ErrUnsupportedSource
}

// QuizKey is the natural identity of a quiz.
type QuizKey struct {
	Keyword string
	Source  Source
}

func (k QuizKey) String() string {
	return string(k.Source) + ":" + k.Keyword
}

// Quiz is a cached quiz record. Mutations go through the named repository
// operations only (status, image, paragraphs, read count).
type Quiz struct {
	ID         int64
	Key        QuizKey
	Image      string
	CreatedAt  time.Time
	ReadCount  int64
	Status     Status
	Paragraphs []Paragraph
}

// Summary joins the quiz paragraphs into a single text.
func (q Quiz) Summary() string {
	texts := make([]string, 0, len(q.Paragraphs))
	for _, p := range q.Paragraphs {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n\n")
}

// Paragraph is one chunk of acquired content.
type Paragraph struct {
	ID       int64  `json:"id"`
	QuizID   int64  `json:"-"`
	Position int    `json:"-"`
	Text     string `json:"text"`
}

// QuestionType mirrors the stored q_type column.
type QuestionType int

const (
	QuestionFreeText       QuestionType = 0
	QuestionMultipleChoice QuestionType = 1
)

func (t QuestionType) String() string {
	if t == QuestionMultipleChoice {
		return "multiple_choice"
	}
	return "free_text"
}

// Question is persisted by the generation collaborator; the service treats
// its content as opaque.
type Question struct {
	ID          int64
	QuizID      int64
	Prompt      string
	Answer      string
	Type        QuestionType
	ParagraphID *int64
}

// QuestionView is what clients see: the answer options are synthesized per
// request and never stored.
type QuestionView struct {
	Prompt        string       `json:"question"`
	Type          QuestionType `json:"q_type"`
	ID            int64        `json:"id"`
	AnswerOptions []string     `json:"answer"`
	ParagraphID   *int64       `json:"p_id,omitempty"`
}

// QuizStatus is the polling view of a quiz's progress.
type QuizStatus struct {
	Progress     int    `json:"progress"`
	TotalSteps   int    `json:"total_steps"`
	StatusString string `json:"status_string"`
}

// AnswerEdit echoes an edited question's answer before and after the change.
type AnswerEdit struct {
	PrevAnswer string `json:"prevAnswer"`
	NewAnswer  string `json:"newAnswer"`
}

// SortKey orders quiz listings.
type SortKey string

const (
	SortAlpha    SortKey = "alpha"
	SortNew      SortKey = "new"
	SortMostRead SortKey = "most_read"
)

// ParseSortKey falls back to SortAlpha for anything unknown.
func ParseSortKey(raw string) SortKey {
	switch SortKey(raw) {
	case SortNew, SortMostRead:
		return SortKey(raw)
	}
	return SortAlpha
}

// QuizPage is one listing page with the resolved bounds.
type QuizPage struct {
	Quizzes []Quiz
	Sort    SortKey
	Start   int
	End     int
}
