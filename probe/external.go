package probe

import (
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// ExternalIPs asks ipify for this machine's public addresses. If the first
// answer is IPv6, a second request forces an IPv4 answer as well.
func ExternalIPs() ([]net.IP, error) {
	ip1, err := lookupIP("https://api64.ipify.org")
	if err != nil {
		return nil, err
	}
	ips := []net.IP{ip1}

	if ip1.To4() == nil {
		ip2, err := lookupIP("https://api.ipify.org")
		if err != nil {
			return nil, err
		}
		ips = append(ips, ip2)
	}

	return ips, nil
}

func lookupIP(service string) (net.IP, error) {
	res, err := http.Get(service)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer res.Body.Close()

	ipStrBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	ip := net.ParseIP(strings.TrimSpace(string(ipStrBytes)))
	if ip == nil {
		return nil, errors.Errorf("got bad external IP from ipify: %s", string(ipStrBytes))
	}
	return ip, nil
}
