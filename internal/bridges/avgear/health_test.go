package avgear

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/maeneak/avgearip/internal/matrix"
)

// newTestHealthReporter creates a reporter wired to mocks, not started.
func newTestHealthReporter(t *testing.T) (*HealthReporter, *MockMQTTClient, *MockController) {
	t.Helper()

	mqttClient := NewMockMQTTClient()
	controller := NewMockController()

	h := NewHealthReporter(HealthReporterConfig{
		MatrixID:   testMatrixID,
		Address:    "192.168.1.50:4001",
		Version:    "1.0.0",
		Interval:   time.Hour,
		Publisher:  mqttClient,
		Controller: controller,
	})

	return h, mqttClient, controller
}

// lastHealth returns the most recent health message published.
func lastHealth(t *testing.T, mqttClient *MockMQTTClient) (HealthMessage, mockPublish) {
	t.Helper()

	var msg HealthMessage
	var pub mockPublish
	found := false
	for _, p := range mqttClient.GetPublished() {
		if p.Topic != "avgear/health/matrix" {
			continue
		}
		if err := json.Unmarshal(p.Payload, &msg); err != nil {
			t.Fatalf("unmarshal health: %v", err)
		}
		pub = p
		found = true
	}
	if !found {
		t.Fatal("no health message published")
	}
	return msg, pub
}

func TestHealthReporterDefaultInterval(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{MatrixID: testMatrixID})
	if h.interval != defaultHealthInterval {
		t.Errorf("interval = %v, want %v", h.interval, defaultHealthInterval)
	}
}

func TestHealthReporterPublishNowHealthy(t *testing.T) {
	h, mqttClient, controller := newTestHealthReporter(t)

	controller.mu.Lock()
	controller.stats = matrix.Stats{
		CommandsTx:      42,
		ErrorsTotal:     2,
		ReconnectsTotal: 1,
		Refreshes:       10,
		RefreshFailures: 1,
		Connected:       true,
	}
	controller.mu.Unlock()

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msg, pub := lastHealth(t, mqttClient)
	if msg.Status != HealthHealthy {
		t.Errorf("status = %q, want healthy", msg.Status)
	}
	if msg.MatrixID != testMatrixID {
		t.Errorf("matrix_id = %q", msg.MatrixID)
	}
	if msg.Version != "1.0.0" {
		t.Errorf("version = %q", msg.Version)
	}
	if !pub.Retained {
		t.Error("health should be retained")
	}
	if pub.QoS != 1 {
		t.Errorf("QoS = %d, want 1", pub.QoS)
	}
	if msg.Connection == nil || msg.Connection.Status != "connected" {
		t.Errorf("connection = %+v, want connected", msg.Connection)
	}
	if msg.Connection.Address != "192.168.1.50:4001" {
		t.Errorf("address = %q", msg.Connection.Address)
	}
	if msg.Statistics == nil {
		t.Fatal("statistics missing")
	}
	if msg.Statistics.CommandsTx != 42 || msg.Statistics.Reconnects != 1 || msg.Statistics.Refreshes != 10 {
		t.Errorf("statistics = %+v", msg.Statistics)
	}
}

func TestHealthReporterDegradedOnMQTTDisconnect(t *testing.T) {
	h, mqttClient, _ := newTestHealthReporter(t)

	mqttClient.SetConnected(false)

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msg, _ := lastHealth(t, mqttClient)
	if msg.Status != HealthDegraded {
		t.Errorf("status = %q, want degraded", msg.Status)
	}
	if msg.Reason != "MQTT disconnected" {
		t.Errorf("reason = %q", msg.Reason)
	}
}

func TestHealthReporterDegradedOnLinkDown(t *testing.T) {
	h, mqttClient, controller := newTestHealthReporter(t)

	controller.mu.Lock()
	controller.connected = false
	controller.mu.Unlock()

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msg, _ := lastHealth(t, mqttClient)
	if msg.Status != HealthDegraded {
		t.Errorf("status = %q, want degraded", msg.Status)
	}
	if msg.Reason != "matrix link down" {
		t.Errorf("reason = %q", msg.Reason)
	}
	if msg.Connection == nil || msg.Connection.Status != "disconnected" {
		t.Errorf("connection = %+v, want disconnected", msg.Connection)
	}
}

func TestHealthReporterPublishStarting(t *testing.T) {
	h, mqttClient, _ := newTestHealthReporter(t)

	if err := h.PublishStarting(); err != nil {
		t.Fatalf("PublishStarting() error = %v", err)
	}

	msg, _ := lastHealth(t, mqttClient)
	if msg.Status != HealthStarting {
		t.Errorf("status = %q, want starting", msg.Status)
	}
}

func TestHealthReporterStopPublishesStopping(t *testing.T) {
	h, mqttClient, _ := newTestHealthReporter(t)

	h.Start(context.Background())
	h.Stop()

	msg, _ := lastHealth(t, mqttClient)
	if msg.Status != HealthStopping {
		t.Errorf("status = %q, want stopping", msg.Status)
	}

	// Stop is idempotent.
	h.Stop()
}

func TestHealthReporterLWT(t *testing.T) {
	h, _, _ := newTestHealthReporter(t)

	if got := h.GetLWTTopic(); got != "avgear/system/status" {
		t.Errorf("GetLWTTopic() = %q", got)
	}

	payload, err := h.GetLWTPayload()
	if err != nil {
		t.Fatalf("GetLWTPayload() error = %v", err)
	}

	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal LWT: %v", err)
	}
	if msg.Status != HealthOffline {
		t.Errorf("LWT status = %q, want offline", msg.Status)
	}
	if msg.Reason != "unexpected_disconnect" {
		t.Errorf("LWT reason = %q", msg.Reason)
	}
	if msg.MatrixID != testMatrixID {
		t.Errorf("LWT matrix_id = %q", msg.MatrixID)
	}
}
