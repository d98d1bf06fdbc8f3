package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"

	v1 "github.com/f9-o/warden/api/v1"
)

// checkTCP passes when a connection to host:port opens.
func (p *Probe) checkTCP(ctx context.Context, ep v1.ServiceEndpoint) error {
	if _, _, err := net.SplitHostPort(ep.Address); err != nil {
		return fmt.Errorf("tcp address %q: %w", ep.Address, err)
	}
	conn, err := p.dialer.DialContext(ctx, "tcp", ep.Address)
	if err != nil {
		return err
	}
	return conn.Close()
}

// checkCmd passes when the shell command exits 0. The address is the command.
func (p *Probe) checkCmd(ctx context.Context, ep v1.ServiceEndpoint) error {
	if strings.TrimSpace(ep.Address) == "" {
		return errors.New("cmd probe: empty command")
	}
	out, err := exec.CommandContext(ctx, "sh", "-c", ep.Address).CombinedOutput() //nolint:gosec
	if err != nil {
		return fmt.Errorf("cmd probe: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
