package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"anyquiz-service/internal/app"
	"anyquiz-service/internal/domain"
	"github.com/gorilla/mux"
)

const (
	defaultRandomCount = 5
	errInvalidBody     = "invalid request body"
)

// Handler serves the quiz REST API.
type Handler struct {
	service *app.QuizService
}

func NewHandler(service *app.QuizService) *Handler {
	return &Handler{service: service}
}

// NewRouter mounts the REST API, the websocket status stream and the health
// check behind the CORS and request logging middleware.
func NewRouter(service *app.QuizService, corsOrigins []string) http.Handler {
	h := NewHandler(service)
	ws := NewWSHandler(service)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1/anyquiz").Subrouter()
	api.HandleFunc("/list", h.List).Methods(http.MethodGet)
	api.HandleFunc("/random", h.Random).Methods(http.MethodGet)
	api.HandleFunc("/status/{keyword}", h.Status).Methods(http.MethodGet)
	api.HandleFunc("/read/{keyword}", h.Read).Methods(http.MethodGet)
	api.HandleFunc("/questions/grade", h.Grade).Methods(http.MethodPost)
	api.HandleFunc("/questions/edit", h.Edit).Methods(http.MethodPost)
	api.HandleFunc("/questions/delete", h.Delete).Methods(http.MethodPost)
	api.HandleFunc("/questions/{keyword}", h.Questions).Methods(http.MethodGet)
	api.HandleFunc("/study/{keyword}", h.Study).Methods(http.MethodGet)
	api.HandleFunc("/ws/status", ws.ServeStatus).Methods(http.MethodGet)

	return requestLogger(cors(corsOrigins)(r))
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start := intParam(q.Get("start"), 0)
	end := intParam(q.Get("end"), -1)
	page, err := h.service.ListQuizzes(r.Context(), start, end, domain.SortKey(q.Get("sort")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{
		RestAPIVersion: restAPIVersion,
		Quizzes:        toQuizSummaries(page.Quizzes),
		Sort:           string(page.Sort),
		Start:          page.Start,
		End:            page.End,
	})
}

func (h *Handler) Random(w http.ResponseWriter, r *http.Request) {
	count := intParam(r.URL.Query().Get("count"), defaultRandomCount)
	quizzes, err := h.service.RandomQuizzes(r.Context(), count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, randomResponse{RestAPIVersion: restAPIVersion, Quizzes: toQuizSummaries(quizzes)})
}

// Status always answers 200; an unknown key is reported in the body.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	key, err := quizKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := h.service.Status(r.Context(), key)
	if err != nil {
		writeJSON(w, http.StatusOK, statusErrorResponse{Keyword: key.Keyword, Source: string(key.Source), Error: statusErrorMessage(key, err)})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Keyword: key.Keyword, Source: string(key.Source), QuizStatus: status})
}

func (h *Handler) Read(w http.ResponseWriter, r *http.Request) {
	key, err := quizKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	quiz, err := h.service.FindOrCreate(acquisitionContext(r), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readResponse{
		Source:    string(quiz.Key.Source),
		Summary:   quiz.Summary(),
		Image:     quiz.Image,
		Timestamp: quiz.CreatedAt.Format(timestampLayout),
	})
}

func (h *Handler) Questions(w http.ResponseWriter, r *http.Request) {
	key, err := quizKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	views, err := h.service.Questions(acquisitionContext(r), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questionsResponse{Questions: views})
}

func (h *Handler) Study(w http.ResponseWriter, r *http.Request) {
	key, err := quizKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	views, paragraphs, err := h.service.Study(acquisitionContext(r), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if paragraphs == nil {
		paragraphs = []domain.Paragraph{}
	}
	writeJSON(w, http.StatusOK, studyResponse{Questions: views, Paragraphs: paragraphs})
}

func (h *Handler) Grade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Error: errInvalidBody})
		return
	}
	id := int64(req.QuestionID)
	correct, err := h.service.GradeAnswer(r.Context(), id, req.SelectedAnswer)
	if err != nil {
		code, msg := clientError(err)
		logError(code, err)
		writeJSON(w, code, gradeResponse{QuestionID: id, Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, gradeResponse{QuestionID: id, Result: correct})
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Error: errInvalidBody})
		return
	}
	id := int64(req.QuestionID)
	edit, err := h.service.EditQuestion(r.Context(), id, req.NewText, req.NewAnswer)
	if err != nil {
		code, msg := clientError(err)
		logError(code, err)
		writeJSON(w, code, resultResponse{QuestionID: id, Result: errorPayload{Error: msg}})
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{QuestionID: id, Result: edit})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Error: errInvalidBody})
		return
	}
	id := int64(req.QuestionID)
	if err := h.service.DeleteQuestion(r.Context(), id); err != nil {
		code, msg := clientError(err)
		logError(code, err)
		writeJSON(w, code, resultResponse{QuestionID: id, Result: errorPayload{Error: msg}})
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{QuestionID: id, Result: map[string]string{"status": "deleted"}})
}

// statusErrorMessage is the polling error text; only an unknown key is named.
func statusErrorMessage(key domain.QuizKey, err error) string {
	if errors.Is(err, domain.ErrQuizNotFound) {
		return domain.NotFoundMessage(key)
	}
	code, msg := clientError(err)
	logError(code, err)
	return msg
}

func quizKey(r *http.Request) (domain.QuizKey, error) {
	source, err := domain.ParseSource(r.URL.Query().Get("source"))
	if err != nil {
		return domain.QuizKey{}, err
	}
	return domain.QuizKey{Keyword: mux.Vars(r)["keyword"], Source: source}, nil
}

// acquisitionContext detaches a miss from the client connection so a
// dropped request does not abort an acquisition other callers share.
func acquisitionContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// clientError maps err to an HTTP status and a fixed message. Wrapped causes
// stay in the server log and never reach the client.
func clientError(err error) (int, string) {
	for _, known := range []struct {
		err  error
		code int
	}{
		{domain.ErrQuizNotFound, http.StatusNotFound},
		{domain.ErrQuestionNotFound, http.StatusNotFound},
		{domain.ErrUnsupportedSource, http.StatusBadRequest},
		{domain.ErrAcquisitionFailed, http.StatusBadGateway},
	} {
		if errors.Is(err, known.err) {
			return known.code, known.err.Error()
		}
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

// logError records the full error chain for anything the client did not cause.
func logError(code int, err error) {
	if code >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, msg := clientError(err)
	logError(code, err)
	writeJSON(w, code, errorPayload{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}
