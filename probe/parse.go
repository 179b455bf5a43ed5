package probe

import (
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Parse turns a command-line target into the URL the checks run against.
// A full URL, host:port or bare host is accepted. The scheme defaults to
// http and the port to defaultPort; anything but plain HTTP is refused.
func Parse(target, defaultPort string) (*url.URL, error) {
	raw := strings.TrimSpace(target)
	if raw == "" {
		return nil, errors.New("no target given")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", target)
	}
	if u.Scheme != "http" {
		return nil, errors.Errorf("only plain HTTP can be checked, not %s", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.Errorf("%q has no host", target)
	}

	if u.Port() == "" {
		if defaultPort == "" {
			defaultPort = "80"
		}
		u.Host = net.JoinHostPort(u.Hostname(), defaultPort)
	}

	// Only the authority matters; requests always go to "/".
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}
