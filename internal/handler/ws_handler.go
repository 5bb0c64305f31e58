package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/fleetbeam/tracker-hub/internal/config"
	"github.com/fleetbeam/tracker-hub/internal/domain"
	"github.com/fleetbeam/tracker-hub/internal/hub"
	"github.com/fleetbeam/tracker-hub/internal/service"
	"github.com/fleetbeam/tracker-hub/pkg/log"
)

type WSHandler struct {
	hub      *hub.Hub
	service  service.EventService
	cfg      config.ServerConfig
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(h *hub.Hub, svc service.EventService, cfg config.ServerConfig, wsCfg config.WebSocketConfig) *WSHandler {
	wh := &WSHandler{
		hub:     h,
		service: svc,
		cfg:     cfg,
		wsCfg:   wsCfg,
	}
	wh.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     wh.checkOrigin,
	}
	return wh
}

// checkOrigin admits non-browser clients (no Origin header) and the
// configured client URL. With no configured origin, only same-origin
// browser requests pass.
func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.cfg.ClientOrigin != "" {
		return origin == h.cfg.ClientOrigin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.Ctx(r.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage, h.handleDisconnect)
}

func (h *WSHandler) handleDisconnect(client *hub.Client) {
	h.service.HandleDisconnect(context.Background(), client)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	ctx := context.Background()

	switch base.Type {
	case domain.MsgTypeJoinRole:
		var msg domain.JoinRoleMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid join:role message"))
			return
		}
		h.logHandlerErr(client, domain.MsgTypeJoinRole, h.service.HandleJoinRole(ctx, client, msg.Role))

	case domain.MsgTypeJoinBus, domain.MsgTypeSubscribeBus:
		// subscribe:bus is an alias kept for read-only subscribers.
		var msg domain.JoinBusMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid join:bus message"))
			return
		}
		h.logHandlerErr(client, base.Type, h.service.HandleJoinBus(ctx, client, msg.BusID))

	case domain.MsgTypeLocationUpdate:
		var msg domain.LocationUpdateMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid location:update message"))
			return
		}
		h.logHandlerErr(client, domain.MsgTypeLocationUpdate, h.service.HandleLocationUpdate(ctx, client, msg))

	case domain.MsgTypeSOSTrigger:
		var msg domain.SOSTriggerMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid sos:trigger message"))
			return
		}
		h.logHandlerErr(client, domain.MsgTypeSOSTrigger, h.service.HandleSOSTrigger(ctx, client, msg))

	case domain.MsgTypeTripUpdate:
		var msg domain.TripUpdateMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid trip:update message"))
			return
		}
		h.logHandlerErr(client, domain.MsgTypeTripUpdate, h.service.HandleTripUpdate(ctx, client, msg))

	case domain.MsgTypeAttendanceScan:
		var msg domain.AttendanceScanMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid attendance:scan message"))
			return
		}
		h.logHandlerErr(client, domain.MsgTypeAttendanceScan, h.service.HandleAttendanceScan(ctx, client, msg))

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "unknown message type"))
	}
}

func (h *WSHandler) logHandlerErr(client *hub.Client, event string, err error) {
	if err == nil {
		return
	}
	l := log.L()
	l.Warn().Str(log.FieldConnID, client.ID).Str(log.FieldEvent, event).Err(err).Msg("event handling failed")
}

func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.HandleWebSocket)
}
