package pubsub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/kavach/pkg/metrics"
)

// ErrNotConnected is returned by publishes while the broker is unreachable.
var ErrNotConnected = errors.New("pubsub: not connected")

// Alert payloads are inspected up to this many bytes.
const maxAlertPayload = 95

// Handlers receive broker events. Any field may be nil. Handlers run on
// paho's callback goroutine and must not block.
type Handlers struct {
	OnConnect        func()
	OnConnectionLost func(err error)
	OnGasLeak        func(payload string)
	OnIntruder       func(payload string)
	OnPing           func()
}

// Client publishes assistant events and routes alerts from the broker.
type Client struct {
	cfg    Config
	logger *slog.Logger
	topics *Topics

	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu       sync.RWMutex
	client   mqtt.Client
	handlers Handlers
	closed   bool

	connected atomic.Bool

	// Stats
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	reconnectCount   atomic.Int64
}

// New creates a new MQTT client.
// Call Connect() to reach the broker.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:       cfg,
		logger:    logger,
		topics:    NewTopics(cfg),
		newClient: mqtt.NewClient,
	}, nil
}

// SetHandlers installs the event handlers. Call before Connect.
func (c *Client) SetHandlers(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

func (c *Client) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.BrokerURI())
	opts.SetClientID(c.cfg.ClientID)
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		if c.cfg.Password != "" {
			opts.SetPassword(c.cfg.Password)
		}
	}
	opts.SetKeepAlive(c.cfg.KeepAlive)
	opts.SetConnectTimeout(c.cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(c.cfg.ReconnectInterval)
	opts.SetMaxReconnectInterval(c.cfg.ReconnectInterval)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		c.reconnectCount.Add(1)
	})
	opts.SetDefaultPublishHandler(c.onMessage)
	return opts
}

// Connect starts the session. paho keeps retrying in the background, so
// Connect waits at most ConnectTimeout for the first session and then
// returns nil; IsConnected reports when the broker comes up.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return io.ErrClosedPipe
	}
	if c.client != nil {
		c.mu.Unlock()
		return nil
	}
	c.client = c.newClient(c.options())
	client := c.client
	c.mu.Unlock()

	c.logger.Info("connecting to MQTT broker",
		"broker", c.cfg.BrokerURI(),
		"user", c.cfg.Username,
		"help", c.topics.Help(),
		"appliances", c.topics.Appliances(),
		"sensor", c.topics.Sensor(),
	)

	token := client.Connect()
	wait := time.NewTimer(c.cfg.ConnectTimeout)
	defer wait.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("connect to %s: %w", c.cfg.BrokerURI(), err)
		}
	case <-wait.C:
		c.logger.Warn("MQTT broker not reachable yet, retrying in background",
			"broker", c.cfg.BrokerURI(),
			"retry_in", c.cfg.ReconnectInterval,
		)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	c.logger.Info("MQTT connected", "broker", c.cfg.BrokerURI())

	for _, topic := range c.topics.Subscriptions() {
		token := client.Subscribe(topic, 0, c.onMessage)
		go func(topic string, token mqtt.Token) {
			<-token.Done()
			if err := token.Error(); err != nil {
				c.logger.Warn("subscribe failed", "topic", topic, "error", err)
				return
			}
			c.logger.Debug("subscribed", "topic", topic)
		}(topic, token)
	}

	if h := c.getHandlers(); h.OnConnect != nil {
		h.OnConnect()
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.logger.Warn("MQTT connection lost", "error", err)

	if h := c.getHandlers(); h.OnConnectionLost != nil {
		h.OnConnectionLost(err)
	}
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.messagesReceived.Add(1)
	topic := msg.Topic()
	metrics.MQTTMessages.WithLabelValues("in", topic).Inc()

	h := c.getHandlers()
	payload := msg.Payload()

	switch topic {
	case c.topics.Ping():
		if err := c.Publish(c.topics.Pong(), PongPayload); err != nil {
			c.logger.Warn("pong failed", "error", err)
		} else {
			c.logger.Info("ping received, pong sent")
		}
		if h.OnPing != nil {
			h.OnPing()
		}

	case c.topics.Gas():
		text := alertText(payload)
		if strings.Contains(text, "LEAK") {
			c.logger.Warn("gas leak alert received", "payload", text)
			if h.OnGasLeak != nil {
				h.OnGasLeak(text)
			}
		}

	case c.topics.Intruder():
		text := alertText(payload)
		if strings.Contains(text, `"motion"`) {
			c.logger.Warn("intruder alert received", "payload", text)
			if h.OnIntruder != nil {
				h.OnIntruder(text)
			}
		}

	default:
		c.logger.Debug("message on unexpected topic", "topic", topic)
	}
}

func alertText(payload []byte) string {
	if len(payload) > maxAlertPayload {
		payload = payload[:maxAlertPayload]
	}
	return string(payload)
}

func (c *Client) getHandlers() Handlers {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers
}

// Topics returns the topics helper.
func (c *Client) Topics() *Topics {
	return c.topics
}

// IsConnected returns true while the broker session is up.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Publish sends payload at QoS 0. It does not wait for delivery.
func (c *Client) Publish(topic, payload string) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil || !c.connected.Load() {
		return ErrNotConnected
	}

	token := client.Publish(topic, 0, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
	default:
	}

	c.messagesSent.Add(1)
	metrics.MQTTMessages.WithLabelValues("out", topic).Inc()
	return nil
}

// PublishHelp sends the spoken phrase to the help topic for emergency
// contacts.
func (c *Client) PublishHelp(phrase string) error {
	return c.Publish(c.topics.Help(), phrase)
}

// PublishAppliance sends {"device":"<device>","state":"<state>"} to the
// appliance topic.
func (c *Client) PublishAppliance(device, state string) error {
	return c.Publish(c.topics.Appliances(), ApplianceJSON(device, state))
}

// PublishSensor sends {"temp": <t>, "hum": <h>} to the sensor topic.
func (c *Client) PublishSensor(tempC, humidity float64) error {
	return c.Publish(c.topics.Sensor(), SensorJSON(tempC, humidity))
}

// ApplianceJSON formats an appliance command.
func ApplianceJSON(device, state string) string {
	return fmt.Sprintf(`{"device":"%s","state":"%s"}`, device, state)
}

// SensorJSON formats a sensor reading with one decimal of temperature and
// whole-percent humidity.
func SensorJSON(tempC, humidity float64) string {
	return fmt.Sprintf(`{"temp": %.1f, "hum": %.0f}`, tempC, humidity)
}

// Close disconnects from the broker.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.connected.Store(false)

	if c.client != nil {
		c.client.Disconnect(250)
		c.client = nil
	}

	c.logger.Info("MQTT client closed")
	return nil
}

// Stats returns client statistics.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		Connected:        c.connected.Load(),
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		ReconnectCount:   c.reconnectCount.Load(),
	}
}

// ClientStats contains client statistics.
type ClientStats struct {
	Connected        bool  `json:"connected"`
	MessagesSent     int64 `json:"messages_sent"`
	MessagesReceived int64 `json:"messages_received"`
	ReconnectCount   int64 `json:"reconnect_count"`
}
