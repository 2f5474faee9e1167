package devices

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dieterch/nas-automation/internal/infrastructure/config"
)

// proxmoxTimeout bounds one API request against the backup host.
const proxmoxTimeout = 5 * time.Second

// defaultBackupDuration sizes the auto-generated backup window when the
// job itself carries no duration information.
const defaultBackupDuration = 2 * time.Hour

// Proxmox reads backup activity from a Proxmox VE node.
//
// The NAS serves as backup target, so a running vzdump pins it on with
// the highest priority, and the next scheduled run becomes an
// auto-generated ON window.
type Proxmox struct {
	host        string
	node        string
	tokenID     string
	tokenSecret string
	http        *http.Client
}

// BackupJob is one scheduled vzdump job.
type BackupJob struct {
	ID       string `json:"id"`
	Schedule string `json:"schedule"`
	Enabled  int    `json:"enabled"`
	NextRun  int64  `json:"next-run"`
}

// BackupWindow is the concrete interval the next backup run will occupy.
type BackupWindow struct {
	Start time.Time
	End   time.Time
}

// NewProxmox creates a backup-system client from configuration.
func NewProxmox(cfg config.ProxmoxConfig) *Proxmox {
	return &Proxmox{
		host:        cfg.Host,
		node:        cfg.Node,
		tokenID:     cfg.TokenID,
		tokenSecret: cfg.TokenSecret,
		http: &http.Client{
			Timeout: proxmoxTimeout,
			Transport: &http.Transport{
				// Proxmox nodes ship self-signed certificates on the LAN.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402
			},
		},
	}
}

// BackupRunning reports whether a vzdump task is currently active.
func (p *Proxmox) BackupRunning(ctx context.Context) (bool, error) {
	query := url.Values{
		"source":     {"active"},
		"typefilter": {"vzdump"},
	}
	endpoint := fmt.Sprintf("%s/api2/json/nodes/%s/tasks?%s", p.host, p.node, query.Encode())

	var tasks []struct {
		UPID    string `json:"upid"`
		EndTime int64  `json:"endtime"`
	}
	if err := p.get(ctx, endpoint, &tasks); err != nil {
		return false, err
	}

	for _, task := range tasks {
		if task.EndTime == 0 {
			return true, nil
		}
	}
	return false, nil
}

// NextBackupWindow returns the interval of the next scheduled backup run,
// or nil when no enabled job has a known next run.
func (p *Proxmox) NextBackupWindow(ctx context.Context) (*BackupWindow, error) {
	endpoint := p.host + "/api2/json/cluster/backup"

	var jobs []BackupJob
	if err := p.get(ctx, endpoint, &jobs); err != nil {
		return nil, err
	}

	var next int64
	for _, job := range jobs {
		if job.Enabled == 0 || job.NextRun == 0 {
			continue
		}
		if next == 0 || job.NextRun < next {
			next = job.NextRun
		}
	}
	if next == 0 {
		return nil, nil
	}

	start := time.Unix(next, 0)
	return &BackupWindow{Start: start, End: start.Add(defaultBackupDuration)}, nil
}

// get performs one authenticated API request and decodes the data envelope.
func (p *Proxmox) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackupCheckFailed, err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("PVEAPIToken=%s=%s", p.tokenID, p.tokenSecret))

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackupCheckFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrBackupCheckFailed, resp.StatusCode)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrBackupCheckFailed, err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: decoding data: %v", ErrBackupCheckFailed, err)
	}
	return nil
}
