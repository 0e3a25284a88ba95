package domain

import "errors"

var (
	// ErrQuizNotFound is returned when no record exists for a key or id.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question id is unknown.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidTransition is returned when a status would not move forward.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAcquisitionFailed wraps persistence or required collaborator failures while creating a quiz.
	ErrAcquisitionFailed = errors.New("quiz acquisition failed")
	// ErrExternalServiceDegraded marks a best-effort collaborator failure that was recovered locally.
	ErrExternalServiceDegraded = errors.New("external service degraded")
	// ErrDuplicateQuiz is returned by Reserve when the key already has a record.
	ErrDuplicateQuiz = errors.New("quiz already exists")
	// ErrUnsupportedSource rejects unknown content sources.
	ErrUnsupportedSource = errors.New("unsupported source")
	// ErrDistractorsExhausted means no clean distractor triple was drawn within the retry bound.
	ErrDistractorsExhausted = errors.New("distractor draws exhausted")
	// ErrQueueClosed is returned when dispatching to a stopped generation queue.
	ErrQueueClosed = errors.New("generation queue closed")
)
