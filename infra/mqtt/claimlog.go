package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/routeloop/core/federation"
	"github.com/kilianp07/routeloop/core/model"
	"github.com/kilianp07/routeloop/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled     bool        `json:"enabled"`
	Broker      string      `json:"broker"`
	ClientID    string      `json:"client_id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	TopicPrefix string      `json:"topic_prefix"`
	UseTLS      bool        `json:"use_tls"`
	ClientCert  string      `json:"client_cert"`
	ClientKey   string      `json:"client_key"`
	CABundle    string      `json:"ca_bundle"`
	AuthMethod  string      `json:"auth_method"`
	QoS         byte        `json:"qos"`
	MaxRetries  int         `json:"max_retries"`
	BackoffMS   int         `json:"backoff_ms"`
	TLSConfig   *tls.Config `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "routeloop/claims"
	}
	if c.QoS == 0 {
		c.QoS = 1
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 100
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// ClaimLog distributes resource claims over MQTT. Each actor publishes its
// claim batches on its own topic and subscribes to the claims of every
// peer; the merged view backs a local in-memory log so snapshots never hit
// the broker.
type ClaimLog struct {
	cli     pahoClient
	cfg     Config
	actorID string
	local   *federation.MemoryClaimLog
	log     logger.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewClaimLog connects to the broker and subscribes to the peer claim
// topics.
func NewClaimLog(cfg Config, actorID string) (*ClaimLog, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt-claimlog")
	cl := &ClaimLog{
		cfg:     cfg,
		actorID: actorID,
		local:   federation.NewMemoryClaimLog(),
		log:     log,
		seen:    make(map[string]struct{}),
	}

	// The hook subscribes through cl.cli, which is set before Connect so
	// the hook never sees a nil client, including on broker reconnects.
	opts.OnConnect = func(_ paho.Client) {
		log.Infof("MQTT connected")
		topic := cfg.TopicPrefix + "/+"
		if token := cl.cli.Subscribe(topic, cfg.QoS, cl.onClaims); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	cl.cli = newMQTTClient(opts)
	if token := cl.cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return cl, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (cl *ClaimLog) onClaims(_ paho.Client, msg paho.Message) {
	var claims []model.ResourceClaim
	if err := json.Unmarshal(msg.Payload(), &claims); err != nil {
		cl.log.Errorf("failed to decode claim batch on %s: %v", msg.Topic(), err)
		return
	}
	fresh := cl.unseen(claims)
	if len(fresh) == 0 {
		return
	}
	if err := cl.local.Append(context.Background(), fresh); err != nil {
		cl.log.Errorf("merge claim batch: %v", err)
	}
}

// unseen filters claims already merged, marking the rest. Own publications
// echo back from the broker and are dropped here.
func (cl *ClaimLog) unseen(claims []model.ResourceClaim) []model.ResourceClaim {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	var fresh []model.ResourceClaim
	for _, c := range claims {
		if _, ok := cl.seen[c.ID]; ok {
			continue
		}
		cl.seen[c.ID] = struct{}{}
		fresh = append(fresh, c)
	}
	return fresh
}

// Append publishes the claim batch on the actor topic and merges it into
// the local view immediately.
func (cl *ClaimLog) Append(ctx context.Context, claims []model.ResourceClaim) error {
	if len(claims) == 0 {
		return nil
	}
	fresh := cl.unseen(claims)
	if len(fresh) > 0 {
		if err := cl.local.Append(ctx, fresh); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	topic := cl.cfg.TopicPrefix + "/" + cl.actorID
	backoff := time.Duration(cl.cfg.BackoffMS) * time.Millisecond
	var publishErr error
	for attempt := 0; attempt <= cl.cfg.MaxRetries; attempt++ {
		token := cl.cli.Publish(topic, cl.cfg.QoS, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			cl.log.Debugf("published %d claims to %s", len(claims), topic)
			break
		}
		cl.log.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		time.Sleep(backoff * time.Duration(1<<attempt))
	}
	if publishErr != nil {
		return fmt.Errorf("%w: %v", federation.ErrLogUnavailable, publishErr)
	}
	return nil
}

// Snapshot returns the merged local view of all actors' claims.
func (cl *ClaimLog) Snapshot(ctx context.Context) ([]model.ResourceClaim, error) {
	return cl.local.Snapshot(ctx)
}

// Disconnect gracefully closes the MQTT connection.
func (cl *ClaimLog) Disconnect() {
	if cl.cli != nil && cl.cli.IsConnected() {
		cl.cli.Disconnect(250)
	}
}
