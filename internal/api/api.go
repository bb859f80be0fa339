// Package api exposes the interview core over HTTP (chi), a WebSocket event
// stream, and an MCP server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mkravets/vetriq/internal/interview"
	"github.com/mkravets/vetriq/internal/llm"
	"github.com/mkravets/vetriq/internal/resume"
	"github.com/mkravets/vetriq/internal/scorecard"
	"github.com/mkravets/vetriq/internal/session"
	"github.com/mkravets/vetriq/internal/storage"
)

const maxUploadSize = 10 << 20 // 10MB

// fallbackRole is used when role inference is unavailable at upload time.
const fallbackRole = "Software Engineer"

// TurnRunner is the orchestration loop as the transport layer sees it.
type TurnRunner interface {
	Turn(ctx context.Context, sess *session.Session, candidateInput string) (string, error)
}

// ChunkIndexer populates the vector index for an uploaded résumé.
type ChunkIndexer interface {
	Index(ctx context.Context, resumeID string, chunks []string) error
}

type AppDeps struct {
	Store        *storage.Store
	Sessions     *session.Store
	Loop         TurnRunner
	Indexer      ChunkIndexer
	Retriever    interview.Retriever
	Engine       llm.Engine
	ChatModel    string
	Broker       *Broker // optional; if nil, no stream events are published
	UploadDir    string
	MaxQuestions int
	ChunkSize    int
	ChunkOverlap int
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Post("/resumes", handleUploadResume(deps))
	r.Post("/sessions/{id}/start", handleStart(deps))
	r.Post("/sessions/{id}/answers", handleAnswer(deps))
	r.Get("/sessions/{id}/scorecard", handleScorecard(deps))
	r.Post("/sessions/{id}/end", handleEnd(deps))
	r.Delete("/sessions/{id}", handleDelete(deps))
	r.Handle("/sessions/{id}/stream", handleStream(deps))
	r.Get("/health", handleHealth(deps))

	return r
}

func handleUploadResume(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "a PDF file upload is required: %v", err)
			return
		}
		defer file.Close()

		resumeID := uuid.New().String()
		path := filepath.Join(deps.UploadDir, resumeID+".pdf")
		if err := saveUpload(path, file); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store upload: %v", err)
			return
		}

		text, err := resume.ExtractText(path)
		if err != nil {
			os.Remove(path)
			httpError(w, http.StatusBadRequest, "invalid_request_error", "could not read PDF: %v", err)
			return
		}

		chunks := resume.Split(text, deps.ChunkSize, deps.ChunkOverlap)
		if len(chunks) == 0 {
			os.Remove(path)
			httpError(w, http.StatusBadRequest, "invalid_request_error", "the document contains no extractable text")
			return
		}

		role, err := interview.InferRole(r.Context(), deps.Engine, deps.ChatModel, resume.Sample(chunks))
		if err != nil {
			slog.Warn("role inference failed, using fallback role", "resume", resumeID, "error", err)
			role = fallbackRole
		}

		if err := deps.Indexer.Index(r.Context(), resumeID, chunks); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to index résumé: %v", err)
			return
		}

		if err := deps.Store.SaveResume(storage.Resume{
			ID:       resumeID,
			FileName: header.Filename,
			FilePath: path,
			Role:     role,
		}); err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "interview unavailable, try again: %v", err)
			return
		}

		sess := session.New(uuid.New().String(), resumeID, role, deps.MaxQuestions)
		if err := deps.Sessions.Put(sess); err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "interview unavailable, try again: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"resume_id":  resumeID,
			"session_id": sess.ID,
			"role":       role,
			"chunks":     len(chunks),
		})
	}
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return err
	}
	return dst.Close()
}

func handleStart(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runTurn(deps, w, r, "")
	}
}

type answerRequest struct {
	Answer string `json:"answer"`
}

func handleAnswer(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Answer == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "answer is required")
			return
		}
		runTurn(deps, w, r, req.Answer)
	}
}

// runTurn executes one loop turn under the session's lock and writes the
// agent's reply. Stream subscribers get the same events.
func runTurn(deps AppDeps, w http.ResponseWriter, r *http.Request, input string) {
	id := chi.URLParam(r, "id")

	var reply string
	var phase session.Phase
	var count int
	var newEvals int

	err := deps.Sessions.WithSession(id, func(sess *session.Session) error {
		before := len(sess.Evaluations)
		out, terr := deps.Loop.Turn(r.Context(), sess, input)
		if terr != nil {
			return terr
		}
		reply = out
		phase = sess.Phase
		count = sess.QuestionCount
		newEvals = len(sess.Evaluations) - before
		publishTurnEvents(deps.Broker, sess, reply, newEvals)
		return nil
	})
	if err != nil {
		sessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":        reply,
		"phase":          phase,
		"question_count": count,
	})
}

func publishTurnEvents(b *Broker, sess *session.Session, reply string, newEvals int) {
	if b == nil {
		return
	}
	if newEvals > 0 {
		latest := sess.Evaluations[len(sess.Evaluations)-1]
		b.Publish(sess.ID, Event{Type: EventEvaluation, Data: latest})
	}
	if sess.Phase.Terminal() {
		b.Publish(sess.ID, Event{Type: EventReport, Data: sess.Report})
		return
	}
	b.Publish(sess.ID, Event{Type: EventQuestion, Data: reply})
}

func handleScorecard(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		sess, err := deps.Sessions.Get(id)
		if err != nil {
			sessionError(w, err)
			return
		}

		report := sess.Report
		if report == nil {
			// Interview still running: aggregate what has been graded so far.
			partial := scorecard.Aggregate(sess.Evaluations, sess.MaxQuestions, sess.Role)
			report = &partial
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	}
}

func handleEnd(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var report *scorecard.Report
		err := deps.Sessions.WithSession(id, func(sess *session.Session) error {
			if _, terr := deps.Loop.Turn(r.Context(), sess, "end interview"); terr != nil {
				return terr
			}
			report = sess.Report
			if deps.Broker != nil {
				deps.Broker.Publish(sess.ID, Event{Type: EventReport, Data: report})
			}
			return nil
		})
		if err != nil {
			sessionError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	}
}

func handleDelete(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var resumeID string
		if sess, err := deps.Sessions.Get(id); err == nil {
			resumeID = sess.ResumeID
		}

		if err := deps.Sessions.Delete(id); err != nil {
			sessionError(w, err)
			return
		}

		if resumeID != "" {
			if err := deps.Store.DeleteResume(resumeID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				slog.Warn("failed to delete résumé data for session", "session", id, "error", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"llm":    deps.Engine.IsRunning(r.Context()),
		})
	}
}

// sessionError maps store failures onto the API contract: an unknown session
// is 404; anything else means persistence trouble and is retryable, so 503.
func sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	httpError(w, http.StatusServiceUnavailable, "api_error", "interview unavailable, try again")
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
