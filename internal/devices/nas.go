package devices

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/dieterch/nas-automation/internal/infrastructure/config"
)

// sshTimeout bounds the SSH handshake for the shutdown command.
const sshTimeout = 5 * time.Second

// shutdownCommand halts the NAS gracefully. The relay is only cut once the
// machine has confirmed it is down.
const shutdownCommand = "shutdown -h now"

// NAS addresses the network storage box: reachability probing and graceful
// shutdown over SSH.
type NAS struct {
	host         string
	sshPort      int
	sshUser      string
	sshPassword  string
	probeTimeout time.Duration
}

// NewNAS creates a NAS client from configuration.
func NewNAS(cfg config.NASConfig) *NAS {
	return &NAS{
		host:         cfg.Host,
		sshPort:      cfg.SSH.Port,
		sshUser:      cfg.SSH.User,
		sshPassword:  cfg.SSH.Password,
		probeTimeout: cfg.GetProbeTimeout(),
	}
}

// Online probes the SSH port with a bounded TCP dial.
//
// A refused or timed-out dial means offline; there is no error return
// because an unreachable host is an answer, not a failure.
func (n *NAS) Online(ctx context.Context) bool {
	timeout := n.probeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	conn, err := net.DialTimeout("tcp", n.addr(), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Shutdown delivers the graceful halt command over SSH.
//
// Delivery is all this method guarantees. The machine takes its time
// syncing and unmounting afterwards; callers poll Online to confirm the
// box actually went down before cutting relay power.
func (n *NAS) Shutdown(ctx context.Context) error {
	cfg := &ssh.ClientConfig{
		User: n.sshUser,
		Auth: []ssh.AuthMethod{
			ssh.Password(n.sshPassword),
		},
		// The NAS is a LAN appliance addressed by IP; host key pinning
		// would break on every reinstall.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sshTimeout,
	}

	client, err := ssh.Dial("tcp", n.addr(), cfg)
	if err != nil {
		return fmt.Errorf("%w: dialling: %v", ErrShutdownFailed, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("%w: opening session: %v", ErrShutdownFailed, err)
	}
	defer session.Close()

	// The connection often drops mid-command as the box halts; once the
	// command is started, that is success, not failure.
	if err := session.Start(shutdownCommand); err != nil {
		return fmt.Errorf("%w: %v", ErrShutdownFailed, err)
	}

	done := make(chan struct{})
	go func() {
		session.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(sshTimeout):
	}
	return nil
}

func (n *NAS) addr() string {
	return net.JoinHostPort(n.host, strconv.Itoa(n.sshPort))
}
