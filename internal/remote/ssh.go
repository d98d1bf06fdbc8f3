// Package remote manages SSH connections to the nodes that host remediated services.
// Each node gets a persistent, multiplexed SSH connection with keepalive.
package remote

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/core/logger"
	"github.com/f9-o/warden/pkg/errs"
	"github.com/f9-o/warden/pkg/sshutil"
)

const keepaliveRequest = "keepalive@warden"

type connection struct {
	client   *ssh.Client
	lastUsed time.Time
	cancel   context.CancelFunc
}

// Pool manages persistent SSH connections to remote nodes.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*connection // node name → connection
	log   *logger.Logger
}

// NewPool creates an empty connection pool.
func NewPool(log *logger.Logger) *Pool {
	return &Pool{
		conns: make(map[string]*connection),
		log:   log,
	}
}

// Connect establishes (or returns an existing) SSH connection for a node.
func (p *Pool) Connect(ctx context.Context, node v1.NodeSpec) (*ssh.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conns[node.Name]; ok {
		if _, _, err := c.client.Conn.SendRequest(keepaliveRequest, true, nil); err == nil {
			c.lastUsed = time.Now()
			return c.client, nil
		}
		c.cancel()
		_ = c.client.Close()
		delete(p.conns, node.Name)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := p.dial(node)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrNodeConnect, "remote.connect").WithResource(node.Name)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	p.conns[node.Name] = &connection{client: client, lastUsed: time.Now(), cancel: cancel}
	go p.keepalive(connCtx, node.Name, client)

	p.log.Info("ssh connected", "node", node.Name, "host", node.Host)
	return client, nil
}

// Address returns host:port for node, defaulting the port.
func Address(node v1.NodeSpec) string {
	port := node.Port
	if port == 0 {
		port = sshutil.DefaultPort
	}
	return net.JoinHostPort(node.Host, strconv.Itoa(port))
}

func (p *Pool) dial(node v1.NodeSpec) (*ssh.Client, error) {
	if node.Key == "" {
		return nil, fmt.Errorf("no SSH key configured for node %q", node.Name)
	}
	cfg, err := sshutil.Options{
		User:       node.User,
		KeyPath:    node.Key,
		KnownHosts: node.KnownHosts,
		OnUnverified: func(host, fingerprint string) {
			p.log.Warn("ssh host key not verified, set known_hosts for this node",
				"node", node.Name, "host", host, "fingerprint", fingerprint)
		},
	}.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("ssh config for node %q: %w", node.Name, err)
	}
	return sshutil.Dial(Address(node), cfg)
}

// Run executes a command on node and returns its combined output and exit code.
func (p *Pool) Run(ctx context.Context, node v1.NodeSpec, cmd string) (string, int, error) {
	client, err := p.Connect(ctx, node)
	if err != nil {
		return "", -1, err
	}

	out, code, err := sshutil.Run(ctx, client, cmd)
	if err != nil {
		return out, code, errs.Wrap(err, errs.ErrNodeCommand, "remote.run").WithResource(node.Name)
	}
	return out, code, nil
}

// Disconnect closes the connection for a named node.
func (p *Pool) Disconnect(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[name]; ok {
		c.cancel()
		_ = c.client.Close()
		delete(p.conns, name)
		p.log.Info("ssh disconnected", "node", name)
	}
}

// Close disconnects all managed connections.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, c := range p.conns {
		c.cancel()
		_ = c.client.Close()
		delete(p.conns, name)
		p.log.Info("ssh connection closed", "node", name)
	}
}

func (p *Pool) keepalive(ctx context.Context, node string, client *ssh.Client) {
	ticker := time.NewTicker(sshutil.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := client.Conn.SendRequest(keepaliveRequest, true, nil); err != nil {
				p.log.Warn("ssh keepalive failed, connection may be dead", "node", node, "err", err)
				return
			}
		}
	}
}
