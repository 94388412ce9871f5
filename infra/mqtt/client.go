// Package mqtt connects the readiness engine to an MQTT broker: plant
// signals are consumed from per-plant topics and notifications are
// published back for field dashboards.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/gridready/core/logger"
)

// Config describes the broker connection.
type Config struct {
	// Enabled starts the signal listener.
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
	// DeviationWindow is the number of trailing 15 minute blocks the
	// deviation percentage is aggregated over.
	DeviationWindow int `json:"deviation_window_blocks"`
	// PublishNotifications forwards operator notifications to the broker.
	PublishNotifications bool `json:"publish_notifications"`

	UseTLS     bool   `json:"use_tls"`
	ClientCert string `json:"client_cert"`
	ClientKey  string `json:"client_key"`
	CABundle   string `json:"ca_bundle"`
}

// Validate checks the fields needed when the listener is enabled.
func (c Config) Validate() error {
	if (c.Enabled || c.PublishNotifications) && c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	return nil
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "gridready"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultPrefix
	}
	if c.QoS == 0 {
		c.QoS = 1
	}
	if c.DeviationWindow <= 0 {
		c.DeviationWindow = 1
	}
}

// Client is the subset of broker operations the engine needs.
type Client interface {
	Publish(topic string, payload []byte, qos byte) error
	Subscribe(topic string, qos byte, callback MessageHandler) error
	Disconnect()
}

// MessageHandler receives messages of a subscription.
type MessageHandler func(msg Message)

// Message wraps paho.Message.
type Message interface {
	Topic() string
	Payload() []byte
}

// ConnectOption configures the underlying paho client.
type ConnectOption func(opts *paho.ClientOptions)

// WithPasswordAuth adds username and password authentication.
func WithPasswordAuth(username, password string) ConnectOption {
	return func(opts *paho.ClientOptions) {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}
}

// PahoClient implements Client using paho.mqtt.golang.
type PahoClient struct {
	client paho.Client
}

// NewClientOptions builds the paho options for cfg.
func NewClientOptions(cfg Config, log logger.Logger) (*paho.ClientOptions, error) {
	log = logger.OrNop(log)
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		WithPasswordAuth(cfg.Username, cfg.Password)(opts)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("mqtt connection lost: %v", err)
	}
	return opts, nil
}

// LoadTLSConfig loads the client certificate and CA bundle of the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
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
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("ca bundle %s holds no certificate", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Connect establishes a connection to the broker of cfg.
func Connect(cfg Config, log logger.Logger, options ...ConnectOption) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg, log)
	if err != nil {
		return nil, err
	}
	for _, option := range options {
		option(opts)
	}

	c := paho.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", token.Error())
	}
	return &PahoClient{client: c}, nil
}

func (m *PahoClient) Publish(topic string, payload []byte, qos byte) error {
	if token := m.client.Publish(topic, qos, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish message: %w", token.Error())
	}
	return nil
}

func (m *PahoClient) Subscribe(topic string, qos byte, callback MessageHandler) error {
	wrapped := func(_ paho.Client, msg paho.Message) { callback(msg) }
	if token := m.client.Subscribe(topic, qos, wrapped); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic: %w", token.Error())
	}
	return nil
}

// Disconnect waits up to 250ms for in-flight work.
func (m *PahoClient) Disconnect() {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}
