package domain

import "fmt"

// Status is a cumulative pipeline milestone. Values only ever increase.
type Status int

const (
	StatusRequestReceived Status = iota
	StatusMediaRetrieved
	StatusMediaSplit
	StatusGenerationBegun
	StatusReady
)

// StatusSteps is the number of milestones reported as total_steps.
const StatusSteps = int(StatusReady) + 1

var statusNames = [StatusSteps]string{
	"REQUEST_RECEIVED",
	"MEDIA_RETRIEVED",
	"MEDIA_SPLIT",
	"GENERATION_BEGUN",
	"READY",
}

var statusMessages = [StatusSteps]string{
	"We got your request!",
	"We've retrieved your media!",
	"Content Analysis completed!",
	"Performing Question Generation!",
	"Your Quiz is ready!",
}

// StatusNotFoundMessage prefixes the polling error for unknown keys.
const StatusNotFoundMessage = "Requested resource not found!"

func (s Status) Valid() bool {
	return s >= StatusRequestReceived && s <= StatusReady
}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Message is the human readable progress line shown to pollers.
func (s Status) Message() string {
	if !s.Valid() {
		return ""
	}
	return statusMessages[s]
}

// View renders the status for polling clients.
func (s Status) View() QuizStatus {
	return QuizStatus{
		Progress:     int(s),
		TotalSteps:   StatusSteps,
		StatusString: s.Message(),
	}
}

// NotFoundMessage is the polling error text for a key with no record.
func NotFoundMessage(key QuizKey) string {
	return fmt.Sprintf("%s with keyword=%s and source=%s", StatusNotFoundMessage, key.Keyword, key.Source)
}
