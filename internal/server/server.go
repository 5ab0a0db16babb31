package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"medirep-gateway/internal/backend"
	"medirep-gateway/internal/catalog"
	"medirep-gateway/internal/config"
	"medirep-gateway/internal/session"
	"medirep-gateway/internal/store"
)

type Server struct {
	router      *chi.Mux
	store       *store.Memory
	engine      *session.Engine
	backend     *backend.Client
	transcriber session.Transcriber
	catalog     *catalog.Catalog
	suggestions *SuggestionSet
	cfg         config.Config
}

// QueryRequest is the send action: one query plus the persona mode.
type QueryRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
}

type InteractRequest struct {
	DrugA string `json:"drug_a"`
	DrugB string `json:"drug_b"`
}

type SearchRequest struct {
	Query string `json:"query"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(cfg config.Config) (*Server, error) {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Session-Id"},
		AllowCredentials: true, // Enable credentials for cookies
		MaxAge:           300,
	}))

	bc := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)

	// Speech-to-text goes through the backend unless the operator supplied
	// an OpenAI key, which selects the direct Whisper path.
	var transcriber session.Transcriber = bc
	if cfg.OpenAIAPIKey != "" {
		log.Println("[voice] using direct Whisper transcription")
		transcriber = backend.NewWhisperTranscriber(cfg.OpenAIAPIKey, cfg.STTModel)
	}

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load drug catalog: %w", err)
	}
	if cat.Len() > 0 {
		log.Printf("[catalog] loaded %d drugs from %s", cat.Len(), cfg.CatalogFile)
	} else {
		log.Printf("warning: drug catalog %s is empty or missing; lookups fall back to the backend", cfg.CatalogFile)
	}

	sugg, err := LoadSuggestions(cfg.SuggestionsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load suggestions: %w", err)
	}

	s := &Server{
		router:      r,
		store:       store.NewMemory(),
		engine:      session.NewEngine(bc),
		backend:     bc,
		transcriber: transcriber,
		catalog:     cat,
		suggestions: sugg,
		cfg:         cfg,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Post("/api/query", s.handleQuery)
	s.router.Get("/api/history", s.handleHistory)
	s.router.Get("/api/suggestions", s.handleSuggestions)
	// Voice capture pipeline
	s.router.Post("/api/voice/start", s.handleVoiceStart)
	s.router.Post("/api/voice/chunk", s.handleVoiceChunk)
	s.router.Post("/api/voice/stop", s.handleVoiceStop)
	s.router.Post("/api/transcribe", s.handleTranscribe)
	// Drug lookup browser
	s.router.Get("/api/drugs", s.handleDrugList)
	s.router.Get("/api/drug/{name}", s.handleDrug)
	// Pass-throughs
	s.router.Post("/api/interact", s.handleInteract)
	s.router.Post("/api/search", s.handleSearch)
	// Turn event stream
	s.router.Get("/api/events", s.handleEvents)
	s.router.Post("/api/session/reset", s.handleSessionReset)
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	entry := s.sessionEntry(r, w)
	if m := strings.TrimSpace(req.Mode); m != "" {
		entry.Session.SetMode(m)
	}

	reply, err := s.engine.Send(r.Context(), entry.Session, req.Query)
	switch {
	case errors.Is(err, session.ErrEmptyQuery):
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	case errors.Is(err, session.ErrDispatchPending):
		s.writeError(w, http.StatusConflict, "a query is already in flight for this session")
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "query could not be processed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Session-Id", entry.Session.ID)
	_ = json.NewEncoder(w).Encode(reply)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entry := s.sessionEntry(r, w)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Session-Id", entry.Session.ID)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": entry.Session.ID,
		"mode":       entry.Session.Mode(),
		"turns":      entry.Session.Turns(),
	})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	mode := session.NormalizeMode(r.URL.Query().Get("mode"))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"mode":        mode,
		"suggestions": s.suggestions.ForMode(mode),
	})
}

func (s *Server) handleVoiceStart(w http.ResponseWriter, r *http.Request) {
	entry := s.sessionEntry(r, w)
	if err := entry.Recorder.Start(r.Context()); err != nil {
		if errors.Is(err, session.ErrAlreadyRecording) {
			s.writeError(w, http.StatusConflict, "recording already in progress")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "could not start recording")
		return
	}
	s.writeRecordingState(w, entry)
}

func (s *Server) handleVoiceChunk(w http.ResponseWriter, r *http.Request) {
	entry := s.sessionEntry(r, w)
	chunk, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "could not read audio chunk")
		return
	}
	if err := entry.Device.Push(chunk); err != nil {
		if errors.Is(err, session.ErrNotRecording) {
			s.writeError(w, http.StatusConflict, "no recording in progress")
			return
		}
		s.writeError(w, http.StatusInsufficientStorage, "capture buffer full")
		return
	}
	s.writeRecordingState(w, entry)
}

func (s *Server) handleVoiceStop(w http.ResponseWriter, r *http.Request) {
	entry := s.sessionEntry(r, w)
	if err := entry.Recorder.Stop(r.Context()); err != nil {
		if errors.Is(err, session.ErrNotRecording) {
			s.writeError(w, http.StatusConflict, "no recording in progress")
			return
		}
		// Attempt abandoned; the recorder already reset itself.
		s.writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Session-Id", entry.Session.ID)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"state": string(entry.Recorder.State()),
		"input": entry.Session.Input(),
	})
}

// handleTranscribe is the one-shot path for frontends that record in the
// browser and upload a finished blob.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	entry := s.sessionEntry(r, w)
	file, _, err := r.FormFile("audio")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "audio file is required (field 'audio')")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "could not read audio file")
		return
	}

	text, err := s.transcriber.Transcribe(r.Context(), audio)
	if err != nil {
		log.Println("[voice] transcription error:", err)
		s.writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}
	entry.Session.AppendTranscript(text)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Session-Id", entry.Session.ID)
	_ = json.NewEncoder(w).Encode(map[string]string{"text": text, "input": entry.Session.Input()})
}

func (s *Server) handleDrugList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	category := r.URL.Query().Get("category")
	drugs := s.catalog.Filter(q, category)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"count": len(drugs), "drugs": drugs})
}

func (s *Server) handleDrug(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if d, ok := s.catalog.Get(name); ok {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d)
		return
	}
	// Not in the local document; the backend may still know it.
	raw, err := s.backend.Drug(r.Context(), name)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "drug not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	var req InteractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.DrugA) == "" || strings.TrimSpace(req.DrugB) == "" {
		s.writeError(w, http.StatusBadRequest, "drug_a and drug_b are required")
		return
	}
	raw, err := s.backend.Interact(r.Context(), req.DrugA, req.DrugB)
	if err != nil {
		log.Println("[interact] backend error:", err)
		s.writeError(w, http.StatusBadGateway, "interaction check failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	results, err := s.backend.Search(r.Context(), req.Query)
	if err != nil {
		log.Println("[search] backend error:", err)
		s.writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
}

// handleSessionReset drops the caller's session. The next request starts a
// fresh conversation with a new ID.
func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	if sid := getSessionID(r); sid != "" {
		s.store.Delete(sid)
		log.Printf("[session] dropped session: %s", sid)
	}
	ClearSessionCookie(w)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}

func (s *Server) writeRecordingState(w http.ResponseWriter, entry *store.Entry) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Session-Id", entry.Session.ID)
	_ = json.NewEncoder(w).Encode(map[string]string{"state": string(entry.Recorder.State())})
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

func newSessionID() string {
	return "s_" + uuid.NewString()
}

// getSessionID retrieves the session ID from cookie or header/query fallback
func getSessionID(r *http.Request) string {
	if cookie, err := GetSessionCookie(r); err == nil && cookie != "" {
		return cookie
	}
	if sid := r.Header.Get("X-Session-Id"); sid != "" {
		return sid
	}
	if sid := r.URL.Query().Get("sessionId"); sid != "" {
		return sid
	}
	return ""
}

// sessionEntry resolves the caller's live session, creating it (and its
// voice pipeline) on first contact.
func (s *Server) sessionEntry(r *http.Request, w http.ResponseWriter) *store.Entry {
	sid := getSessionID(r)
	if sid == "" {
		sid = newSessionID()
		log.Printf("[session] creating new session: %s for endpoint: %s", sid, r.URL.Path)
		if w != nil {
			SetSessionCookie(w, sid)
		}
	}
	return s.store.GetOrCreate(sid, func() *store.Entry {
		sess := session.New(sid, "", s.cfg.MaxTurns)
		device := session.NewUploadDevice()
		return &store.Entry{
			Session:  sess,
			Recorder: session.NewRecorder(device, s.transcriber, sess),
			Device:   device,
		}
	})
}
