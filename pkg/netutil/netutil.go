// Package netutil provides network validation helpers used across Warden.
package netutil

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
)

// serviceNameRegex enforces DNS-label-safe service names.
var serviceNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{0,62}$`)

// IsValidServiceName returns true if name is a DNS-label-safe service name.
func IsValidServiceName(name string) bool {
	return serviceNameRegex.MatchString(name)
}

// ValidateHostPort checks that addr is host:port with a port in 1–65535.
func ValidateHostPort(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%q is not host:port: %w", addr, err)
	}
	if host == "" {
		return fmt.Errorf("%q has no host", addr)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%q has an invalid port", addr)
	}
	return nil
}

// ValidateHTTPBase checks that raw is an absolute http(s) URL.
func ValidateHTTPBase(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%q is not a URL: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// FreePort finds an available TCP port on localhost.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
