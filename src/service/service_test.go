package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/directory"
	"github.com/mosaicnetworks/murmur/src/events"
	"github.com/mosaicnetworks/murmur/src/net"
	"github.com/mosaicnetworks/murmur/src/node"
	"github.com/mosaicnetworks/murmur/src/peers"
)

func newTestService(t *testing.T) (*Service, *node.Node, *events.MetricsSink) {
	_, trans := net.NewInmemTransportWithTimeout("", time.Second)
	metrics := events.NewMetricsSink()

	n, err := node.NewNode("node0", node.TestConfig(t), trans, directory.NewInmemDirectory(), metrics)
	if err != nil {
		t.Fatal(err)
	}
	n.RunAsync()
	if err := n.Activate(); err != nil {
		t.Fatal(err)
	}

	s := NewService("127.0.0.1:0", n, metrics.Handler(), common.NewTestEntry(t, common.TestLogLevel))
	return s, n, metrics
}

func get(t *testing.T, s *Service, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s returned %d", path, rec.Code)
	}
	return rec
}

func TestGetStats(t *testing.T) {
	s, n, _ := newTestService(t)
	defer n.Close()

	rec := get(t, s, "/stats")

	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("CORS header missing")
	}

	var stats map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}

	if stats["id"] != "node0" || stats["state"] != "Active" {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestGetState(t *testing.T) {
	s, n, _ := newTestService(t)
	defer n.Close()

	n.EnterFailure("broken link")

	var info StateInfo
	if err := json.NewDecoder(get(t, s, "/state").Body).Decode(&info); err != nil {
		t.Fatal(err)
	}

	if info.State != "Failed" || info.Reason != "broken link" {
		t.Fatalf("unexpected state %#v", info)
	}
}

func TestGetPeers(t *testing.T) {
	s, n, _ := newTestService(t)
	defer n.Close()

	var ps []*peers.Peer
	if err := json.NewDecoder(get(t, s, "/peers").Body).Decode(&ps); err != nil {
		t.Fatal(err)
	}

	if len(ps) != 0 {
		t.Fatalf("node should have no neighbors, got %v", ps)
	}
}

func TestGetMetrics(t *testing.T) {
	s, n, _ := newTestService(t)
	defer n.Close()

	body := get(t, s, "/metrics").Body.String()

	if !strings.Contains(body, `murmur_events_total{event="state_changed",node="node0"} 1`) {
		t.Fatalf("metrics should count the activation:\n%s", body)
	}
}
