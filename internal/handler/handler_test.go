package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/fleetbeam/tracker-hub/internal/config"
	"github.com/fleetbeam/tracker-hub/internal/domain"
	"github.com/fleetbeam/tracker-hub/internal/hub"
	"github.com/fleetbeam/tracker-hub/internal/registry"
	"github.com/fleetbeam/tracker-hub/internal/service"
)

const testOrigin = "http://localhost:3000"

func newTestServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	return newTestServerWithOrigin(t, testOrigin)
}

func newTestServerWithOrigin(t *testing.T, origin string) (*httptest.Server, *hub.Hub) {
	t.Helper()

	h := hub.NewHub()
	svc := service.NewTrackerService(h, registry.Noop{})
	go h.Run()

	serverCfg := config.ServerConfig{ClientOrigin: origin}
	wsCfg := config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     16,
	}

	router := mux.NewRouter()
	NewWSHandler(h, svc, serverCfg, wsCfg).RegisterRoutes(router)
	NewHTTPHandler(h, registry.Noop{}).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, h
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("failed to send: %v", err)
	}
}

func recv(t *testing.T, conn *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		var m map[string]interface{}
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("failed to read while waiting for %s: %v", msgType, err)
		}
		if m["type"] == msgType {
			return m
		}
	}
}

func TestJoinBusAndSubscribeBusAreEquivalent(t *testing.T) {
	srv, _ := newTestServer(t)

	driver := dial(t, srv)
	joined := dial(t, srv)
	subscribed := dial(t, srv)

	send(t, driver, map[string]string{"type": domain.MsgTypeJoinBus, "bus_id": "B1"})
	recv(t, driver, domain.MsgTypeRoomJoined)

	send(t, joined, map[string]string{"type": domain.MsgTypeJoinBus, "bus_id": "B1"})
	recv(t, joined, domain.MsgTypeRoomJoined)

	send(t, subscribed, map[string]string{"type": domain.MsgTypeSubscribeBus, "bus_id": "B1"})
	recv(t, subscribed, domain.MsgTypeRoomJoined)

	send(t, driver, map[string]interface{}{
		"type": domain.MsgTypeLocationUpdate, "bus_id": "B1",
		"latitude": 1.5, "longitude": 2.5, "speed": 10.0, "heading": 180.0,
	})

	for _, conn := range []*websocket.Conn{joined, subscribed} {
		got := recv(t, conn, domain.MsgTypeLocationUpdated)
		if got["bus_id"] != "B1" || got["latitude"].(float64) != 1.5 {
			t.Errorf("payload mismatch: %v", got)
		}
		if got["timestamp"].(float64) <= 0 {
			t.Error("timestamp must be server-assigned")
		}
	}
}

func TestMalformedPayloadRejectedToSender(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dial(t, srv)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	got := recv(t, conn, domain.MsgTypeError)
	if got["code"] != domain.ErrCodeBadRequest {
		t.Errorf("expected BAD_REQUEST, got %v", got)
	}

	// The hub must survive the bad frame.
	send(t, conn, map[string]string{"type": domain.MsgTypeJoinRole, "role": "STUDENT"})
	recv(t, conn, domain.MsgTypeRoomJoined)
}

func TestDisallowedOriginRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		conn.Close()
		t.Fatal("handshake from disallowed origin must fail")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestAllowedOriginAccepted(t *testing.T) {
	srv, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{testOrigin}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("handshake from configured origin failed: %v", err)
	}
	conn.Close()
}

// With no configured client origin, browser requests only pass when
// they come from the server's own origin.
func TestEmptyOriginConfigAdmitsSameOriginOnly(t *testing.T) {
	srv, _ := newTestServerWithOrigin(t, "")
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{srv.URL}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("same-origin handshake failed: %v", err)
	}
	conn.Close()

	header = http.Header{"Origin": []string{"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		conn.Close()
		t.Fatal("cross-origin handshake must fail without a configured origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestHealthReportsRegistrySnapshot(t *testing.T) {
	srv, _ := newTestServer(t)

	driver := dial(t, srv)
	student := dial(t, srv)

	send(t, driver, map[string]string{"type": domain.MsgTypeJoinRole, "role": domain.RoleDriver})
	recv(t, driver, domain.MsgTypeRoomJoined)
	send(t, student, map[string]string{"type": domain.MsgTypeJoinRole, "role": domain.RoleStudent})
	recv(t, student, domain.MsgTypeRoomJoined)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("invalid health payload: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q", health.Status)
	}
	if health.Connections != 2 || health.Drivers != 1 || health.Students != 1 || health.Admins != 0 {
		t.Errorf("unexpected snapshot: %+v", health)
	}
}

func TestActiveBusesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dial(t, srv)
	send(t, conn, map[string]string{"type": domain.MsgTypeJoinBus, "bus_id": "B7"})
	recv(t, conn, domain.MsgTypeRoomJoined)

	resp, err := http.Get(srv.URL + "/api/v1/buses")
	if err != nil {
		t.Fatalf("buses request failed: %v", err)
	}
	defer resp.Body.Close()

	var buses ActiveBusesResponse
	if err := json.NewDecoder(resp.Body).Decode(&buses); err != nil {
		t.Fatalf("invalid buses payload: %v", err)
	}
	if buses.Total != 1 || len(buses.Buses) != 1 || buses.Buses[0].BusID != "B7" {
		t.Errorf("unexpected active buses: %+v", buses)
	}
}

type stubRegistry struct {
	registry.Noop
	buses []string
	err   error
}

func (s *stubRegistry) ActiveBuses(context.Context) ([]string, error) {
	return s.buses, s.err
}

func TestFleetEndpointReportsRegisteredBuses(t *testing.T) {
	h := hub.NewHub()
	router := mux.NewRouter()
	NewHTTPHandler(h, &stubRegistry{buses: []string{"B1", "B9"}}).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/fleet/buses")
	if err != nil {
		t.Fatalf("fleet request failed: %v", err)
	}
	defer resp.Body.Close()

	var fleet FleetBusesResponse
	if err := json.NewDecoder(resp.Body).Decode(&fleet); err != nil {
		t.Fatalf("invalid fleet payload: %v", err)
	}
	if fleet.Total != 2 || len(fleet.Buses) != 2 {
		t.Errorf("unexpected fleet view: %+v", fleet)
	}
}

func TestFleetEndpointReportsRegistryOutage(t *testing.T) {
	h := hub.NewHub()
	router := mux.NewRouter()
	NewHTTPHandler(h, &stubRegistry{err: errors.New("connection refused")}).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/fleet/buses")
	if err != nil {
		t.Fatalf("fleet request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestDisconnectCleansUpMemberships(t *testing.T) {
	srv, h := newTestServer(t)

	conn := dial(t, srv)
	send(t, conn, map[string]string{"type": domain.MsgTypeJoinBus, "bus_id": "B1"})
	recv(t, conn, domain.MsgTypeRoomJoined)

	conn.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.RoomCount(domain.BusRoom("B1")) == 0 && h.Stats().Connections == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("disconnect did not clean up registry and rooms")
}
