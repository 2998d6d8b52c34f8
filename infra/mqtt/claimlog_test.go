package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/routeloop/core/federation"
	"github.com/kilianp07/routeloop/core/model"
)

type mockToken struct {
	err error
}

func (t *mockToken) Wait() bool                       { return true }
func (t *mockToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *mockToken) Error() error                     { return t.err }
func (t *mockToken) Done() <-chan struct{}            { return make(chan struct{}) }

type mockClient struct {
	connected    bool
	disconnected bool
	publishErr   error
	published    []struct {
		topic   string
		payload []byte
	}
	subscribed string
	handler    paho.MessageHandler
}

func (m *mockClient) IsConnected() bool { return m.connected }
func (m *mockClient) Connect() paho.Token {
	m.connected = true
	return &mockToken{}
}
func (m *mockClient) Disconnect(uint) { m.disconnected = true }
func (m *mockClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	if m.publishErr != nil {
		return &mockToken{err: m.publishErr}
	}
	m.published = append(m.published, struct {
		topic   string
		payload []byte
	}{topic, payload.([]byte)})
	return &mockToken{}
}
func (m *mockClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	m.subscribed = topic
	m.handler = cb
	return &mockToken{}
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

func claimLogCfg() Config {
	cfg := Config{Enabled: true, Broker: "tcp://localhost:1883", ClientID: "actor-a"}
	cfg.SetDefaults()
	return cfg
}

func newTestClaimLog(t *testing.T) (*ClaimLog, *mockClient) {
	t.Helper()
	mc := &mockClient{}
	var opts *paho.ClientOptions
	orig := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient {
		opts = o
		return mc
	}
	t.Cleanup(func() { newMQTTClient = orig })

	cl, err := NewClaimLog(claimLogCfg(), "actor-a")
	if err != nil {
		t.Fatalf("claim log: %v", err)
	}
	// Fire the connect hook the way paho does once the session is up, so
	// the subscription is wired like on a real broker connection.
	if opts == nil || opts.OnConnect == nil {
		t.Fatalf("connect hook not installed")
	}
	opts.OnConnect(nil)
	return cl, mc
}

func sampleClaim(actor string) model.ResourceClaim {
	now := time.Now()
	return model.ResourceClaim{
		ID: uuid.NewString(), ActorID: actor, CycleID: 1, Corridor: "C1",
		AltMinM: 65, AltMaxM: 115,
		Start: now, End: now.Add(time.Minute),
		RoleWeight: 1, IssuedAt: now,
	}
}

func TestClaimLogPublishesOnActorTopic(t *testing.T) {
	cl, mc := newTestClaimLog(t)

	if mc.subscribed != "routeloop/claims/+" {
		t.Fatalf("expected wildcard subscription, got %q", mc.subscribed)
	}

	claim := sampleClaim("actor-a")
	if err := cl.Append(context.Background(), []model.ResourceClaim{claim}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(mc.published) != 1 || mc.published[0].topic != "routeloop/claims/actor-a" {
		t.Fatalf("unexpected publications: %+v", mc.published)
	}

	// Own claims are visible locally without a broker round trip.
	snap, err := cl.Snapshot(context.Background())
	if err != nil || len(snap) != 1 {
		t.Fatalf("snapshot: %v %+v", err, snap)
	}
}

func TestClaimLogMergesForeignClaims(t *testing.T) {
	cl, mc := newTestClaimLog(t)

	foreign := []model.ResourceClaim{sampleClaim("actor-b")}
	payload, _ := json.Marshal(foreign)
	mc.handler(nil, &mockMessage{topic: "routeloop/claims/actor-b", payload: payload})

	snap, err := cl.Snapshot(context.Background())
	if err != nil || len(snap) != 1 || snap[0].ActorID != "actor-b" {
		t.Fatalf("foreign claims not merged: %v %+v", err, snap)
	}
}

func TestClaimLogDropsEchoedOwnClaims(t *testing.T) {
	cl, mc := newTestClaimLog(t)

	claim := sampleClaim("actor-a")
	if err := cl.Append(context.Background(), []model.ResourceClaim{claim}); err != nil {
		t.Fatalf("append: %v", err)
	}
	// The broker echoes our own publication back via the wildcard.
	mc.handler(nil, &mockMessage{topic: "routeloop/claims/actor-a", payload: mc.published[0].payload})

	snap, _ := cl.Snapshot(context.Background())
	if len(snap) != 1 {
		t.Fatalf("echoed claims must not duplicate, got %d", len(snap))
	}
}

func TestClaimLogPublishFailureIsLogUnavailable(t *testing.T) {
	cl, mc := newTestClaimLog(t)
	cl.cfg.MaxRetries = 1
	cl.cfg.BackoffMS = 1
	mc.publishErr = errors.New("broker gone")

	err := cl.Append(context.Background(), []model.ResourceClaim{sampleClaim("actor-a")})
	if !errors.Is(err, federation.ErrLogUnavailable) {
		t.Fatalf("publish failure must surface as an unavailable log, got %v", err)
	}
}

func TestClaimLogDisconnect(t *testing.T) {
	cl, mc := newTestClaimLog(t)
	cl.Disconnect()
	if !mc.disconnected {
		t.Fatalf("expected Disconnect() to be called")
	}
}
