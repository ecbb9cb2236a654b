// Package httpapi exposes the classification pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
	"github.com/mikey/llm-email-classifier/internal/keypool"
)

const apiVersion = "1.0.0"

// Server hosts the classification HTTP API.
type Server struct {
	service   *core.ClassifierService
	dupCache  core.DuplicateCache
	pool      *keypool.Pool
	logger    *zap.Logger
	srv       *http.Server
	startedAt time.Time
}

// NewServer creates the HTTP server. readTimeout and writeTimeout bound the
// full request cycle; writeTimeout must cover slow LLM round trips.
func NewServer(
	service *core.ClassifierService,
	dupCache core.DuplicateCache,
	pool *keypool.Pool,
	listenAddr string,
	readTimeout time.Duration,
	writeTimeout time.Duration,
	logger *zap.Logger,
) *Server {
	s := &Server{
		service:   service,
		dupCache:  dupCache,
		pool:      pool,
		logger:    logger,
		startedAt: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Post("/classify-email", s.handleClassify)

	s.srv = &http.Server{
		Addr:         listenAddr,
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

// Start begins serving requests. It blocks until the listener fails or the
// server is stopped.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.srv.Shutdown(ctx)
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// classifyRequest is the JSON body accepted by POST /classify-email.
// Attachment text must already be extracted; raw documents are not parsed
// here.
type classifyRequest struct {
	Sender       string              `json:"sender"`
	Recipient    string              `json:"recipient"`
	Subject      string              `json:"subject"`
	Content      string              `json:"content"`
	ReceivedDate string              `json:"received_date"`
	MessageID    string              `json:"message_id"`
	InReplyTo    string              `json:"in_reply_to"`
	References   []string            `json:"references"`
	ThreadID     string              `json:"thread_id"`
	SourceIP     string              `json:"source_ip"`
	Source       string              `json:"source"`
	Attachments  []attachmentPayload `json:"attachments"`
}

type attachmentPayload struct {
	Index       int    `json:"index"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Text        string `json:"text"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email Classification API is running",
		"version": apiVersion,
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid JSON body: " + err.Error()})
		return
	}

	email, err := req.toEmail()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}

	result, err := s.service.ProcessEmail(r.Context(), &email)
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
			return
		}
		s.logger.Error("Failed to process email", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (req *classifyRequest) toEmail() (core.InboundEmail, error) {
	var receivedAt time.Time
	if req.ReceivedDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.ReceivedDate)
		if err != nil {
			return core.InboundEmail{}, errors.New("received_date must be RFC 3339 formatted")
		}
		receivedAt = parsed
	}

	attachments := make([]core.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		attachments = append(attachments, core.Attachment{
			Index:       a.Index,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Text:        a.Text,
		})
	}

	source := req.Source
	if source == "" {
		source = "http"
	}

	return core.InboundEmail{
		Sender:      req.Sender,
		Recipient:   req.Recipient,
		Subject:     req.Subject,
		Body:        req.Content,
		ReceivedAt:  receivedAt,
		MessageID:   req.MessageID,
		InReplyTo:   req.InReplyTo,
		References:  req.References,
		ThreadID:    req.ThreadID,
		SourceIP:    req.SourceIP,
		Source:      source,
		Attachments: attachments,
	}, nil
}

type healthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	APIKeys       []keypool.Usage   `json:"api_keys"`
	Components    map[string]string `json:"components"`
	UptimeSeconds int               `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	usages := s.pool.UsageInfo()

	status := "ok"
	for _, u := range usages {
		if u.Used >= u.Limit {
			status = "degraded"
			break
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:  status,
		Version: apiVersion,
		APIKeys: usages,
		Components: map[string]string{
			"classification":      "ok",
			"extraction":          "ok",
			"duplicate_detection": "ok",
		},
		UptimeSeconds: int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"duplicate_cache": s.dupCache.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
