package sshutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

func writeKey(t *testing.T) (string, ssh.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return path, sshPub
}

func TestClientConfig(t *testing.T) {
	path, _ := writeKey(t)
	var seen []string
	cfg, err := Options{
		User:         "deploy",
		KeyPath:      path,
		OnUnverified: func(host, fp string) { seen = append(seen, host+" "+fp) },
	}.ClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "deploy", cfg.User)
	assert.Equal(t, ConnectTimeout, cfg.Timeout)

	_, hostKey := writeKey(t)
	require.NoError(t, cfg.HostKeyCallback("node-1:22", nil, hostKey))
	require.Len(t, seen, 1)
	assert.Equal(t, "node-1:22 "+FingerprintSHA256(hostKey), seen[0])

	_, err = Options{User: "deploy", KeyPath: filepath.Join(t.TempDir(), "missing")}.ClientConfig()
	assert.Error(t, err)

	_, err = Options{User: "deploy", KeyPath: path, KnownHosts: filepath.Join(t.TempDir(), "no_known_hosts")}.ClientConfig()
	assert.Error(t, err)
}

func TestKnownHostsRejectsUnknownKey(t *testing.T) {
	path, _ := writeKey(t)
	_, trusted := writeKey(t)
	_, stranger := writeKey(t)

	kh := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{"node-1:2222"}, trusted)
	require.NoError(t, os.WriteFile(kh, []byte(line+"\n"), 0o600))

	cfg, err := Options{User: "deploy", KeyPath: path, KnownHosts: kh}.ClientConfig()
	require.NoError(t, err)
	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2222}
	assert.NoError(t, cfg.HostKeyCallback("node-1:2222", addr, trusted))
	assert.Error(t, cfg.HostKeyCallback("node-1:2222", addr, stranger))
}

func TestFingerprintSHA256(t *testing.T) {
	_, pub := writeKey(t)
	fp := FingerprintSHA256(pub)
	assert.True(t, strings.HasPrefix(fp, "SHA256:"))
	assert.Equal(t, ssh.FingerprintSHA256(pub), fp)
}
