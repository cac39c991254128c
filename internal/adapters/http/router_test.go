package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/voicerelay/internal/adapters/feed"
	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestRouter(t *testing.T, reg *app.Registry, hub *feed.Hub) (http.Handler, *metrics.Metrics) {
	t.Helper()
	promReg := prometheus.NewRegistry()
	m := metrics.NewMetrics(promReg)
	d := Deps{Registry: reg, Gatherer: promReg, Started: time.Now().Add(-3 * time.Second)}
	if hub != nil {
		d.Events = hub
	}
	return SetupRouter("test", d), m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	reg := app.NewRegistry()
	reg.Register(netip.MustParseAddrPort("127.0.0.1:5000"), "Alice")
	h, _ := newTestRouter(t, reg, nil)

	w := get(t, h, "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
		Uptime   int64  `json:"uptime_seconds"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Sessions != 1 || body.Uptime < 3 {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestClients(t *testing.T) {
	reg := app.NewRegistry()
	reg.Register(netip.MustParseAddrPort("127.0.0.1:5000"), "Alice")
	reg.Register(netip.MustParseAddrPort("127.0.0.1:5001"), "Bob")
	h, _ := newTestRouter(t, reg, nil)

	w := get(t, h, "/api/clients")
	var body struct {
		Clients []clientView `json:"clients"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Clients) != 2 {
		t.Fatalf("clients = %+v", body.Clients)
	}
	names := map[string]string{}
	for _, c := range body.Clients {
		if c.ID == "" {
			t.Error("client without id")
		}
		names[c.Addr] = c.Name
	}
	if names["127.0.0.1:5000"] != "Alice" || names["127.0.0.1:5001"] != "Bob" {
		t.Errorf("names = %v", names)
	}
}

func TestClientsEmpty(t *testing.T) {
	h, _ := newTestRouter(t, app.NewRegistry(), nil)
	w := get(t, h, "/api/clients")
	if strings.TrimSpace(w.Body.String()) != `{"clients":[]}` {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, m := newTestRouter(t, app.NewRegistry(), nil)
	m.RecordRegistration(1)

	w := get(t, h, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "voice_relay_active_sessions 1") {
		t.Errorf("active sessions gauge missing:\n%s", w.Body.String())
	}
}

func TestEventsRouteOptional(t *testing.T) {
	h, _ := newTestRouter(t, app.NewRegistry(), nil)
	if w := get(t, h, "/api/ws/events"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without a hub", w.Code)
	}
}

func TestEventsWebsocket(t *testing.T) {
	hub := feed.NewHub(4)
	defer hub.Close()
	h, _ := newTestRouter(t, app.NewRegistry(), hub)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Count() != 1 {
		t.Fatalf("subscriber not registered")
	}
}
