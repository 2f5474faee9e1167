package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dieterch/nas-automation/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the grace (in milliseconds) paho waits
	// for in-flight messages before dropping the connection.
	defaultDisconnectQuiesce = 1000

	defaultKeepAlive = 60 * time.Second

	maxQoS = 2

	// maxPayloadSize caps a single publish at 1MB, in line with common
	// broker limits.
	maxPayloadSize = 1 << 20

	tlsMinVersion = tls.VersionTLS12
)

// Availability statuses and reasons carried on nasauto/system/status.
const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonGraceful = "graceful_shutdown"
	reasonCrash    = "unexpected_disconnect"
)

// buildClientOptions maps the controller config onto paho options:
// broker URL (tcp or ssl), client ID, optional credentials, clean
// session, auto-reconnect with bounded backoff, and the offline LWT the
// broker fires if the controller dies without saying goodbye.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// No persistent session on the broker; the controller re-announces
	// its full status on every connect anyway.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	// LWT: retained so late subscribers see the crash status, QoS 1 so
	// the broker delivers it at least once.
	opts.SetWill(
		Topics{}.SystemStatus(),
		string(statusPayload(cfg.Broker.ClientID, statusOffline, reasonCrash)),
		1, true,
	)

	return opts
}

// statusPayload builds the JSON availability message. An empty reason is
// omitted (the online status carries none).
func statusPayload(clientID, status, reason string) []byte {
	msg := map[string]string{
		"status":    status,
		"client_id": clientID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if reason != "" {
		msg["reason"] = reason
	}

	// Marshalling a map[string]string cannot fail.
	payload, _ := json.Marshal(msg)
	return payload
}
