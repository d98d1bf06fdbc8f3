// Package sshutil provides SSH client helpers for Warden's remote remediation layer.
package sshutil

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultPort is the standard SSH port.
const DefaultPort = 22

// ConnectTimeout is the default dial timeout for SSH connections.
const ConnectTimeout = 15 * time.Second

// KeepAliveInterval is how often a keepalive packet is sent to the server.
const KeepAliveInterval = 15 * time.Second

// Options describes how to authenticate to one node.
type Options struct {
	User         string
	KeyPath      string
	KnownHosts   string // enables strict host key checking when set
	Timeout      time.Duration
	// OnUnverified is told the fingerprint of every host key accepted
	// without a known_hosts file.
	OnUnverified func(host, fingerprint string)
}

// ClientConfig builds the ssh.ClientConfig for o using public-key auth.
func (o Options) ClientConfig() (*ssh.ClientConfig, error) {
	keyData, err := os.ReadFile(o.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read key %q: %w", o.KeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse private key %q: %w", o.KeyPath, err)
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = ConnectTimeout
	}
	cfg := &ssh.ClientConfig{
		User:    o.User,
		Auth:    []ssh.AuthMethod{ssh.PublicKeys(signer)},
		Timeout: timeout,
	}

	if o.KnownHosts != "" {
		cb, err := knownhosts.New(o.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts %q: %w", o.KnownHosts, err)
		}
		cfg.HostKeyCallback = cb
		return cfg, nil
	}

	report := o.OnUnverified
	cfg.HostKeyCallback = func(host string, _ net.Addr, key ssh.PublicKey) error {
		if report != nil {
			report(host, FingerprintSHA256(key))
		}
		return nil
	}
	return cfg, nil
}

// Dial establishes an SSH connection to addr (host:port) using cfg.
func Dial(addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %q: %w", addr, err)
	}
	return client, nil
}

// Run executes cmd in a new session and returns its combined output and exit
// status. When ctx ends first the session is signalled and closed.
func Run(ctx context.Context, client *ssh.Client, cmd string) (string, int, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", -1, fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return "", -1, ctx.Err()
	case r := <-done:
		if r.err == nil {
			return string(r.out), 0, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(r.err, &exitErr) {
			return string(r.out), exitErr.ExitStatus(), r.err
		}
		return string(r.out), -1, r.err
	}
}

// FingerprintSHA256 renders key the way OpenSSH prints it.
func FingerprintSHA256(key ssh.PublicKey) string {
	sum := sha256.Sum256(key.Marshal())
	return "SHA256:" + base64.RawStdEncoding.EncodeToString(sum[:])
}
