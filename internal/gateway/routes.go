package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/domain"
)

// safeConfigPrefixes lists config path prefixes that can be read and
// written via RPC. Everything else (credentials, broker addresses, the
// store path) is denied by default.
var safeConfigPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.allowedOrigins",
	"logging",
	"pipeline",
	"channels.email.pollSeconds",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range safeConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

const (
	// publishTimeout bounds a broker publish from an HTTP or RPC handler.
	publishTimeout = 5 * time.Second

	// snapshotTranscriptLimit caps the messages returned with a ticket.
	snapshotTranscriptLimit = 50
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/webform", s.handleWebform)
	mux.HandleFunc("GET /api/tickets/{id}", s.handleTicketGet)
	mux.HandleFunc("GET /api/customers/{id}", s.handleCustomerGet)
	mux.HandleFunc("POST /api/customers/{id}/identifiers", s.handleAttachIdentifier)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all WebSocket RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("config.set", s.rpcConfigSet)
	s.Handle("channels.status", s.rpcChannelsStatus)
	s.Handle("ticket.status", s.rpcTicketStatus)
	s.Handle("chat.send", s.rpcChatSend)
}

// --- HTTP handlers ---

// handleReady reports whether the gateway can do useful work: the store
// answers a ping and the intake producer is wired. Load balancers drain
// on 503.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db == nil || s.producer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		s.log.Warn().Err(err).Msg("readiness ping failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// webformRequest is one support form submission.
type webformRequest struct {
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Content    string `json:"content"`
	Enterprise bool   `json:"enterprise,omitempty"`
}

// handleWebform accepts a support form submission, normalizes it into an
// inbound event, and publishes it for asynchronous processing. The 202
// carries the event id the submitter can correlate on.
func (s *Server) handleWebform(w http.ResponseWriter, r *http.Request) {
	if s.producer == nil {
		writeError(w, http.StatusServiceUnavailable, "intake not configured")
		return
	}

	var req webformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	content := strings.TrimSpace(req.Content)
	if subject := strings.TrimSpace(req.Subject); subject != "" {
		content = subject + "\n\n" + content
	}

	ev := domain.InboundEvent{
		EventID:           uuid.New().String(),
		Channel:           domain.ChannelWebform,
		SenderIdentifier:  req.Email,
		SenderDisplayName: strings.TrimSpace(req.Name),
		Content:           content,
		ReceivedAt:        time.Now().UTC(),
	}
	if req.Enterprise {
		ev.Metadata = map[string]string{"enterprise": "true"}
	}

	ctx, cancel := context.WithTimeout(r.Context(), publishTimeout)
	defer cancel()
	if err := s.producer.PublishInbound(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("eventId", ev.EventID).Msg("webform publish failed")
		writeError(w, http.StatusServiceUnavailable, "intake temporarily unavailable")
		return
	}

	s.log.Info().Str("eventId", ev.EventID).Str("from", ev.SenderIdentifier).Msg("webform accepted")
	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": ev.EventID})
}

// handleTicketGet returns the ticket status snapshot: the ticket fields
// plus its conversation transcript, read consistently.
func (s *Server) handleTicketGet(w http.ResponseWriter, r *http.Request) {
	if s.tickets == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	id := r.PathValue("id")
	snap, err := s.tickets.Snapshot(r.Context(), s.conversations, id, snapshotTranscriptLimit)
	if err != nil {
		s.log.Error().Err(err).Str("ticketId", id).Msg("snapshot failed")
		writeError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleCustomerGet returns a customer with the identifiers linked to them.
func (s *Server) handleCustomerGet(w http.ResponseWriter, r *http.Request) {
	if s.customers == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	id := r.PathValue("id")
	customer, identifiers, err := s.customers.Get(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Str("customerId", id).Msg("customer load failed")
		writeError(w, http.StatusInternalServerError, "customer load failed")
		return
	}
	if customer == nil {
		writeError(w, http.StatusNotFound, "customer not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"customer":    customer,
		"identifiers": identifiers,
	})
}

// attachIdentifierRequest links a channel address to an existing customer.
type attachIdentifierRequest struct {
	Type     domain.IdentifierType `json:"type"`
	Value    string                `json:"value"`
	Verified bool                  `json:"verified,omitempty"`
}

// handleAttachIdentifier performs the administrative cross-channel link:
// after this, events from the attached address resolve to this customer.
func (s *Server) handleAttachIdentifier(w http.ResponseWriter, r *http.Request) {
	if s.customers == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	id := r.PathValue("id")

	var req attachIdentifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "unknown identifier type")
		return
	}
	req.Value = strings.ToLower(strings.TrimSpace(req.Value))
	if req.Value == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	customer, _, err := s.customers.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "customer load failed")
		return
	}
	if customer == nil {
		writeError(w, http.StatusNotFound, "customer not found")
		return
	}

	ident, err := s.customers.AttachIdentifier(r.Context(), req.Type, req.Value, id, req.Verified)
	if err != nil {
		var pe *domain.PersistenceError
		if errors.As(err, &pe) {
			s.log.Error().Err(err).Str("customerId", id).Msg("attach identifier failed")
			writeError(w, http.StatusInternalServerError, "attach failed")
			return
		}
		// Already bound to a different customer.
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

// --- RPC handlers ---

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
	})
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError("invalid_params", "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError("forbidden", "access denied for config path: "+p.Key)
		return
	}

	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	s.mu.RLock()
	val, ok := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()
	if !ok {
		rc.RespondError("not_found", "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

type configSetParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *Server) rpcConfigSet(rc *RequestContext) {
	var p configSetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError("invalid_params", "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError("forbidden", "cannot modify config path: "+p.Key)
		return
	}

	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	config.SetValueAtPath(s.configRaw, path, p.Value)
	s.mu.Unlock()

	rc.Respond(map[string]any{"key": p.Key, "value": p.Value})
}

func (s *Server) rpcChannelsStatus(rc *RequestContext) {
	if s.channels != nil {
		rc.Respond(map[string]any{"channels": s.channels.Status()})
		return
	}
	rc.Respond(map[string]any{"channels": []any{}})
}

type ticketStatusParams struct {
	TicketID string `json:"ticketId"`
}

func (s *Server) rpcTicketStatus(rc *RequestContext) {
	if s.tickets == nil {
		rc.RespondError("unavailable", "store not configured")
		return
	}
	var p ticketStatusParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.TicketID == "" {
		rc.RespondError("invalid_params", "ticketId is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	snap, err := s.tickets.Snapshot(ctx, s.conversations, p.TicketID, snapshotTranscriptLimit)
	if err != nil {
		rc.RespondError("internal", "snapshot failed")
		return
	}
	if snap == nil {
		rc.RespondError("not_found", "ticket not found: "+p.TicketID)
		return
	}
	rc.Respond(snap)
}

type chatSendParams struct {
	Message string `json:"message"`
	EventID string `json:"eventId,omitempty"`
}

// rpcChatSend turns a chat message into an inbound event and publishes
// it. The reply arrives later as a chat.message event once the pipeline
// has processed the ticket; the response here only acknowledges intake.
// A client retrying with the same eventId dedups at admission.
func (s *Server) rpcChatSend(rc *RequestContext) {
	if s.producer == nil {
		rc.RespondError("unavailable", "intake not configured")
		return
	}

	var p chatSendParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(p.Message) == "" {
		rc.RespondError("invalid_params", "message is required")
		return
	}

	eventID := p.EventID
	if eventID == "" {
		eventID = uuid.New().String()
	}

	ev := domain.InboundEvent{
		EventID:           eventID,
		Channel:           domain.ChannelChat,
		SenderIdentifier:  rc.Client.Info.ID,
		SenderDisplayName: rc.Client.Info.DisplayName,
		Content:           p.Message,
		ReceivedAt:        time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.producer.PublishInbound(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("eventId", ev.EventID).Msg("chat publish failed")
		rc.RespondError("unavailable", "intake temporarily unavailable")
		return
	}

	rc.Respond(map[string]any{
		"eventId":  ev.EventID,
		"accepted": true,
	})
}
