package handlers

import (
	_ "embed"
	"encoding/json"
	"net/http"

	"github.com/avvvet/card-indexer/internal/comm"
	"github.com/avvvet/card-indexer/internal/indexer/service"
	"github.com/avvvet/card-indexer/internal/indexer/state"
	"github.com/avvvet/card-indexer/internal/indexer/ws"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

//go:embed static/index.html
var indexHTML []byte

type Handler struct {
	search     *service.SearchService
	cards      *service.CardService
	state      *state.State
	hub        *ws.Ws
	instanceId string
	tokenAuth  *jwtauth.JWTAuth
}

func NewHandler(search *service.SearchService, cards *service.CardService, st *state.State, hub *ws.Ws, instanceId string) *Handler {
	return &Handler{
		search:     search,
		cards:      cards,
		state:      st,
		hub:        hub,
		instanceId: instanceId,
	}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	h.writeJSON(w, rsp.Code, rsp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(indexHTML); err != nil {
		log.Errorf("Failed to write index page: %v", err)
	}
}

func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.state.Status())
}

func (h *Handler) LogsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, comm.LogsResponse{Logs: h.state.Logs()})
}

func (h *Handler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	owners := h.search.Search(r.URL.Query().Get("q"))
	h.writeJSON(w, http.StatusOK, comm.SearchResponse{Owners: owners})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "card indexer is running",
		Code:    http.StatusOK,
		Data: comm.HealthData{
			InstanceId: h.instanceId,
			Cards:      h.cards.Count(),
			Status:     h.state.Status().Text,
		},
	})
}

// DatabaseHandler returns the listener's in-memory database, which may be
// ahead of the file when a save failed.
func (h *Handler) DatabaseHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cards.Snapshot())
}
