package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dieterch/nas-automation/internal/infrastructure/config"
)

// relayTimeout bounds one relay request. Shelly devices answer on the LAN
// in tens of milliseconds; anything longer means the relay is gone.
const relayTimeout = 1500 * time.Millisecond

// Relay drives one channel of a Shelly smart relay over its local HTTP API.
type Relay struct {
	enabled bool
	host    string
	channel int
	http    *http.Client
}

// NewRelay creates a relay client from configuration.
func NewRelay(cfg config.RelayConfig) *Relay {
	return &Relay{
		enabled: cfg.Enabled,
		host:    cfg.Host,
		channel: cfg.Channel,
		http:    &http.Client{Timeout: relayTimeout},
	}
}

// Enabled reports whether the relay participates in automation.
// Disabled relays are skipped by the state machine, not errored on.
func (r *Relay) Enabled() bool {
	return r.enabled
}

// SetPower switches the relay channel on or off.
func (r *Relay) SetPower(ctx context.Context, on bool) error {
	if !r.enabled {
		return ErrRelayDisabled
	}

	turn := "off"
	if on {
		turn = "on"
	}
	url := fmt.Sprintf("http://%s/relay/%d?turn=%s", r.host, r.channel, turn)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRelayFailed, resp.StatusCode)
	}
	return nil
}

// Power reads the relay channel's current switch state.
func (r *Relay) Power(ctx context.Context) (bool, error) {
	if !r.enabled {
		return false, ErrRelayDisabled
	}

	url := fmt.Sprintf("http://%s/relay/%d", r.host, r.channel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: status %d", ErrRelayFailed, resp.StatusCode)
	}

	var status struct {
		IsOn bool `json:"ison"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("%w: decoding status: %v", ErrRelayFailed, err)
	}
	return status.IsOn, nil
}
