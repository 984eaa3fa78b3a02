package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mferraz/profai/internal/api"
	"github.com/mferraz/profai/internal/capture"
	"github.com/mferraz/profai/internal/chat"
	"github.com/mferraz/profai/internal/config"
	"github.com/mferraz/profai/internal/ingest"
	"github.com/mferraz/profai/internal/observability"
	"github.com/mferraz/profai/internal/protocol"
	"github.com/mferraz/profai/internal/reliability"
	"github.com/mferraz/profai/internal/render"
)

// AccountBackend is the slice of the backend client that serves the
// profile, dashboard, and subject views.
type AccountBackend interface {
	Me(ctx context.Context) (api.Profile, error)
	Dashboard(ctx context.Context) (api.Dashboard, error)
	Subjects(ctx context.Context) ([]string, error)
}

type Server struct {
	cfg      config.Config
	chat     *chat.Controller
	recorder *capture.Recorder
	player   *capture.Player
	pipeline *ingest.Pipeline
	account  AccountBackend
	hub      *Hub
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, controller *chat.Controller, recorder *capture.Recorder, player *capture.Player, pipeline *ingest.Pipeline, account AccountBackend, hub *Hub, metrics *observability.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		chat:     controller,
		recorder: recorder,
		player:   player,
		pipeline: pipeline,
		account:  account,
		hub:      hub,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin, so another website cannot drive the student's mic
				// if the companion is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
	controller.SetEventHook(s.publishChatEvent)
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/conversations", s.handleListConversations)
	r.Post("/v1/conversations", s.handleCreateConversation)
	r.Post("/v1/conversations/{id}/select", s.handleSelectConversation)
	r.Get("/v1/conversations/{id}/messages", s.handleListMessages)
	r.Post("/v1/send", s.handleSend)
	r.Get("/v1/pending", s.handleGetPending)
	r.Delete("/v1/pending", s.handleClearPending)
	r.Post("/v1/files/upload", s.handleUpload)
	r.Get("/v1/files/tasks", s.handleListUploadTasks)
	r.Post("/v1/recording/start", s.handleStartRecording)
	r.Post("/v1/recording/{id}/stop", s.handleStopRecording)
	r.Post("/v1/recording/{id}/abort", s.handleAbortRecording)
	r.Post("/v1/messages/{id}/play", s.handlePlayMessage)
	r.Get("/v1/profile", s.handleProfile)
	r.Get("/v1/dashboard", s.handleDashboard)
	r.Get("/v1/subjects", s.handleSubjects)
	r.Get("/v1/ws", s.handleWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"recording_state": string(s.recorder.State()),
		"ws_clients":      s.hub.ClientCount(),
	})
}

type conversationList struct {
	Conversations []api.Conversation `json:"conversations"`
	ActiveID      string             `json:"active_id,omitempty"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.LoadConversations(r.Context()); err != nil {
		respondBackendError(w, "list_conversations_failed", err)
		return
	}
	out := conversationList{Conversations: s.chat.Conversations()}
	if active, ok := s.chat.Active(); ok {
		out.ActiveID = active.ID
	}
	respondJSON(w, http.StatusOK, out)
}

type createConversationRequest struct {
	Title   string `json:"title"`
	Subject string `json:"subject"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	conv, err := s.chat.Create(r.Context(), req.Title, req.Subject)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyTitle), errors.Is(err, chat.ErrUnknownSubject):
			respondError(w, http.StatusBadRequest, "invalid_conversation", err.Error())
		default:
			respondBackendError(w, "create_conversation_failed", err)
		}
		return
	}
	respondJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleSelectConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.chat.Select(r.Context(), id); err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			respondError(w, http.StatusNotFound, "conversation_not_found", err.Error())
			return
		}
		respondBackendError(w, "select_conversation_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"active_id": id})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Viewing a conversation selects it, so the local history is always the
	// history of the conversation being looked at.
	if active, ok := s.chat.Active(); !ok || active.ID != id {
		if err := s.chat.Select(r.Context(), id); err != nil {
			if errors.Is(err, chat.ErrConversationNotFound) {
				respondError(w, http.StatusNotFound, "conversation_not_found", err.Error())
				return
			}
			respondBackendError(w, "load_messages_failed", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"messages":        s.chat.Messages(),
	})
}

type sendRequest struct {
	Message     string          `json:"message"`
	RequestType api.RequestType `json:"request_type"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sent, err := s.chat.Send(r.Context(), req.RequestType, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidRequestType) {
			respondError(w, http.StatusBadRequest, "invalid_request_type", err.Error())
			return
		}
		respondBackendError(w, "exchange_failed", err)
		return
	}
	if !sent {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": s.chat.Messages()})
}

func (s *Server) handleGetPending(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"text": s.chat.PendingText()})
}

func (s *Server) handleClearPending(w http.ResponseWriter, _ *http.Request) {
	s.chat.ClearPendingText()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	task, err := s.pipeline.Ingest(r.Context(), header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrNoActiveConversation):
			respondError(w, http.StatusConflict, "no_active_conversation", err.Error())
		case errors.Is(err, ingest.ErrFileTooLarge):
			respondError(w, http.StatusRequestEntityTooLarge, "file_too_large", err.Error())
		default:
			respondJSON(w, http.StatusBadGateway, map[string]any{
				"error": err.Error(),
				"code":  "ingestion_failed",
				"task":  task,
			})
		}
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleListUploadTasks(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"tasks": s.pipeline.Tasks()})
}

type startRecordingRequest struct {
	SampleRate int `json:"sample_rate"`
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	var req startRecordingRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	id, err := s.recorder.Start(req.SampleRate)
	if err != nil {
		respondError(w, http.StatusConflict, "recording_in_progress", err.Error())
		return
	}
	s.hub.Broadcast(protocol.RecordingState{Type: protocol.TypeRecordingState, State: string(capture.StateRecording), SessionID: id})
	respondJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.recorder.Stop(r.Context(), id); err != nil {
		if errors.Is(err, capture.ErrNoSession) {
			respondError(w, http.StatusNotFound, "no_recording_session", err.Error())
			return
		}
		s.hub.Broadcast(protocol.RecordingState{Type: protocol.TypeRecordingState, State: string(capture.StateIdle)})
		respondBackendError(w, "transcription_failed", err)
		return
	}
	s.hub.Broadcast(protocol.RecordingState{Type: protocol.TypeRecordingState, State: string(capture.StateIdle)})
	respondJSON(w, http.StatusOK, map[string]string{"pending_text": s.chat.PendingText()})
}

func (s *Server) handleAbortRecording(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.recorder.Abort(id); err != nil {
		respondError(w, http.StatusNotFound, "no_recording_session", err.Error())
		return
	}
	s.hub.Broadcast(protocol.RecordingState{Type: protocol.TypeRecordingState, State: string(capture.StateIdle)})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlayMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, ok := s.messageView(id)
	if !ok {
		respondError(w, http.StatusNotFound, "message_not_found", "message is not in the active conversation")
		return
	}
	if !view.Playable {
		respondError(w, http.StatusUnprocessableEntity, "not_playable", "message has no speakable text")
		return
	}
	if err := s.player.Play(r.Context(), id, view.SpeakText); err != nil {
		if errors.Is(err, capture.ErrPlaybackBusy) {
			respondError(w, http.StatusConflict, "playback_in_progress", err.Error())
			return
		}
		respondBackendError(w, "playback_failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.account.Me(r.Context())
	if err != nil {
		respondBackendError(w, "profile_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"profile": profile,
		"rewards": render.Rewards(profile),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.account.Dashboard(r.Context())
	if err != nil {
		respondBackendError(w, "dashboard_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, dash)
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := s.account.Subjects(r.Context())
	if err != nil || len(subjects) == 0 {
		if err != nil {
			log.Printf("subject catalog fetch failed, using built-in list: %v", err)
		}
		subjects = api.DefaultSubjects
	}
	respondJSON(w, http.StatusOK, map[string]any{"subjects": subjects})
}

func (s *Server) messageView(id string) (render.View, bool) {
	for _, msg := range s.chat.Messages() {
		if msg.ID == id {
			return render.TutorMessage(msg), true
		}
	}
	return render.View{}, false
}

func (s *Server) publishChatEvent(ev chat.Event) {
	switch ev.Kind {
	case chat.EventMessageAppended:
		out := protocol.MessageAppended{
			Type:           protocol.TypeMessageAppended,
			ConversationID: ev.ConversationID,
		}
		if ev.Message != nil {
			out.Message = *ev.Message
			if ev.Message.Role == api.RoleTutor {
				view := render.TutorMessage(*ev.Message)
				out.View = &view
			}
		}
		s.hub.Broadcast(out)
	case chat.EventConversationSelected:
		s.hub.Broadcast(protocol.ConversationEvent{Type: protocol.TypeConversationSelected, ConversationID: ev.ConversationID})
	case chat.EventConversationCreated:
		s.hub.Broadcast(protocol.ConversationEvent{Type: protocol.TypeConversationCreated, ConversationID: ev.ConversationID})
	case chat.EventPendingText:
		s.hub.Broadcast(protocol.PendingText{Type: protocol.TypePendingText, Text: ev.Text})
	case chat.EventExchangeFailed:
		s.hub.Broadcast(protocol.ErrorEvent{
			Type:   protocol.TypeErrorEvent,
			Code:   "exchange_failed",
			Detail: ev.Text,
		})
	}
}

type errorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Category string `json:"category,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondBackendError maps a backend failure to a gateway status and labels
// it with a terminal failure category.
func respondBackendError(w http.ResponseWriter, code string, err error) {
	category := reliability.Classify(err)
	status := http.StatusBadGateway
	if category == reliability.CategoryClient {
		status = http.StatusBadRequest
	}
	respondJSON(w, status, errorResponse{Error: err.Error(), Code: code, Category: string(category)})
}
