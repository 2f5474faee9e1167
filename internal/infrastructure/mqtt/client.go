package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dieterch/nas-automation/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the controller's publish-only needs.
//
// The controller announces its own availability (retained status with LWT)
// and pushes decision/state events for external dashboards. It never
// subscribes: all inbound control flows through the HTTP API.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	online  bool
	stateMu sync.RWMutex

	// Optional connection-event callbacks, set via SetOnConnect/SetOnDisconnect.
	onConnect    func()
	onDisconnect func(err error)
	cbMu         sync.RWMutex
}

// Connect dials the broker, registers the offline LWT, enables
// auto-reconnect, and announces the controller online on
// nasauto/system/status (retained).
//
// Returns an error when the initial connection does not complete within
// the connect timeout. Reconnects after that point are handled by paho in
// the background; publishes during an outage fail with ErrNotConnected
// and the caller decides whether that matters.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)

	c := &Client{
		cfg:     cfg,
		options: opts,
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.brokerConnected()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.brokerLost(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously and may not have fired
	// yet; mark the client online here so IsConnected() holds on return.
	c.stateMu.Lock()
	c.online = true
	c.stateMu.Unlock()

	return c, nil
}

// brokerConnected runs on the initial connect and on every reconnect.
func (c *Client) brokerConnected() {
	c.stateMu.Lock()
	c.online = true
	c.stateMu.Unlock()

	c.announce(statusOnline, "")

	c.cbMu.RLock()
	cb := c.onConnect
	c.cbMu.RUnlock()
	if cb != nil {
		cb()
	}
}

// brokerLost runs when an established connection drops.
func (c *Client) brokerLost(err error) {
	c.stateMu.Lock()
	c.online = false
	c.stateMu.Unlock()

	c.cbMu.RLock()
	cb := c.onDisconnect
	c.cbMu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

// announce publishes a retained availability message on the status topic.
func (c *Client) announce(status, reason string) {
	payload := statusPayload(c.cfg.Broker.ClientID, status, reason)
	c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
}

// Publish sends a message to the given topic and waits for the broker
// acknowledgment appropriate to the QoS level, bounded by the publish
// timeout. Payloads above maxPayloadSize are rejected rather than handed
// to the broker.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close announces a graceful offline status (distinct from the LWT crash
// status), waits briefly for pending publishes, and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		payload := statusPayload(c.cfg.Broker.ClientID, statusOffline, reasonGraceful)
		token := c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.stateMu.Lock()
	c.online = false
	c.stateMu.Unlock()

	return nil
}

// HealthCheck reports whether the broker connection is currently up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.online && c.client.IsConnected()
}

// SetOnConnect registers a callback invoked on the initial connect and on
// every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.cbMu.Lock()
	c.onConnect = callback
	c.cbMu.Unlock()
}

// SetOnDisconnect registers a callback invoked when the connection drops.
// The error describes why it was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.cbMu.Lock()
	c.onDisconnect = callback
	c.cbMu.Unlock()
}
