// Package probe checks a running responder from the outside: DNS, the
// listening socket, the HTTP exchange itself, and whether a stalled
// connection holds up other clients.
package probe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	humanize "github.com/dustin/go-humanize"
)

// TokenHeader carries the probe token so a sniffer can pick out the
// probe's own packets.
const TokenHeader = "X-Hello-Probe"

type Check int

const (
	CheckUnknown Check = iota
	CheckSuccess
	CheckFail
	CheckWarn
)

func (c Check) String() string {
	switch c {
	case CheckSuccess:
		return "success"
	case CheckFail:
		return "fail"
	case CheckWarn:
		return "warn"
	default:
		return "unknown"
	}
}

func (c Check) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// Report is the outcome of a probe run.
type Report struct {
	HostOK      Check `yaml:"host_ok"`
	DNSMatches  Check `yaml:"dns_matches"`
	Listening   Check `yaml:"listening"`
	HTTPSuccess Check `yaml:"http_success"`
	Concurrent  Check `yaml:"concurrent"`

	Listeners   []ListenInfo `yaml:"listeners,omitempty"`
	HTTPMessage string       `yaml:"http_message,omitempty"`
	BodySize    int          `yaml:"body_size"`
}

// Failed reports whether any check failed outright.
func (r Report) Failed() bool {
	for _, c := range []Check{r.HostOK, r.DNSMatches, r.Listening, r.HTTPSuccess, r.Concurrent} {
		if c == CheckFail {
			return true
		}
	}
	return false
}

// Sniffer watches local traffic for TCP payloads containing a token.
type Sniffer interface {
	Sniff(token string) (Capture, error)
}

// Capture is a running packet capture.
type Capture interface {
	// Close stops the capture and returns the destination port of every
	// matching segment.
	Close() []string
}

// Prober runs the checks. The zero value is usable; unset fields fall back
// to the live implementations.
type Prober struct {
	// Progress lines go here. Defaults to io.Discard.
	Out io.Writer

	Client     *http.Client
	ExpectBody string

	LookupHost  func(ctx context.Context, host string) ([]string, error)
	Listeners   func(port string) ([]ListenInfo, error)
	ExternalIPs func() ([]net.IP, error)

	// Optional. With no sniffer the listeners that served the request are
	// not reported.
	Sniffer Sniffer

	// Stall holds a second connection open mid-request while the main
	// request is made.
	Stall bool
}

func (p *Prober) printf(format string, a ...interface{}) {
	if p.Out != nil {
		fmt.Fprintf(p.Out, format, a...)
	}
}

func (p *Prober) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return &http.Client{Timeout: 5 * time.Second}
}

func (p *Prober) listeners(port string) []ListenInfo {
	lookup := p.Listeners
	if lookup == nil {
		lookup = ListeningPorts
	}
	infos, err := lookup(port)
	if err != nil {
		p.printf("ERROR: could not list listeners on port %s: %v\n", port, err)
		return nil
	}
	return infos
}

// Run checks the responder at u, which should come from Parse.
func (p *Prober) Run(ctx context.Context, u *url.URL) Report {
	var report Report

	lookupHost := p.LookupHost
	if lookupHost == nil {
		lookupHost = net.DefaultResolver.LookupHost
	}

	p.printf("Looking up host %s...\n", u.Hostname())
	hostAddrs, err := lookupHost(ctx, u.Hostname())
	if err != nil {
		p.printf("ERROR: could not look up host %s: %v\n", u.Hostname(), err)
		report.HostOK = CheckFail
		return report
	}
	p.printf("Host is valid.\n")
	report.HostOK = CheckSuccess

	if ip := net.ParseIP(hostAddrs[0]); ip == nil || !ip.IsLoopback() {
		p.printf("Looking up external IP addresses via ipify.org...\n")
		external := p.ExternalIPs
		if external == nil {
			external = ExternalIPs
		}
		externalIPs, err := external()
		if err != nil {
			p.printf("ERROR: failed to get external IP address: %v\n", err)
		}

		for _, addrString := range hostAddrs {
			addr := net.ParseIP(addrString)
			for _, extIP := range externalIPs {
				if extIP.Equal(addr) {
					report.DNSMatches = CheckSuccess
				}
			}
		}

		if report.DNSMatches != CheckSuccess {
			p.printf("POTENTIAL PROBLEM! None of the addresses for %s matched your external IP addresses.\n", u.Hostname())
			report.DNSMatches = CheckWarn
		}
	}

	if len(p.listeners(u.Port())) > 0 {
		report.Listening = CheckSuccess
	} else {
		p.printf("PROBLEM: Nothing is listening on port %s.\n", u.Port())
		report.Listening = CheckFail
	}

	token := NewToken()

	var capture Capture
	if p.Sniffer != nil {
		capture, err = p.Sniffer.Sniff(token)
		if err != nil {
			p.printf("ERROR: could not start packet capture: %v\n", err)
		}
	}

	var stalled net.Conn
	if p.Stall {
		p.printf("Holding a partial request open to %s...\n", u.Host)
		head := fmt.Sprintf("GET / HTTP/1.1\r\nHost: %s\r\n%s: %s\r\n", u.Host, TokenHeader, token)
		stalled, err = SendPartial(ctx, u.Host, head)
		if err != nil {
			p.printf("ERROR: could not open partial request: %v\n", err)
		} else {
			defer stalled.Close()
		}
	}

	p.printf("Making HTTP request to %s...\n", u.Host)
	report.HTTPSuccess, report.HTTPMessage, report.BodySize = p.request(ctx, u, token)

	if stalled != nil {
		report.Concurrent = p.finishStalled(stalled, report.HTTPSuccess)
	}

	if capture != nil {
		p.printf("Checking packets...\n")
		for _, port := range uniquePorts(capture.Close()) {
			listeners := p.listeners(port)
			if len(listeners) == 0 {
				p.printf("WARNING: saw the token going to port %s but nothing listens there\n", port)
				continue
			}
			report.Listeners = append(report.Listeners, listeners[0])
		}
	}

	return report
}

func (p *Prober) request(ctx context.Context, u *url.URL, token string) (Check, string, int) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/", u.Host), nil)
	if err != nil {
		p.printf("ERROR: could not build request: %v\n", err)
		return CheckFail, "", 0
	}
	req.Header.Add(TokenHeader, token)

	res, err := p.client().Do(req)
	if err != nil {
		p.printf("ERROR: HTTP request failed: %v\n", err)
		return CheckFail, "", 0
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		p.printf("ERROR: reading HTTP response failed: %v\n", err)
		return CheckFail, "", 0
	}
	p.printf("Got HTTP response (%s).\n", humanize.Bytes(uint64(len(body))))

	switch {
	case res.StatusCode == http.StatusBadGateway:
		p.printf("PROBLEM: Got 502 Bad Gateway response.\n")
		return CheckWarn, "but got 502 Bad Gateway response", len(body)
	case res.StatusCode != http.StatusOK:
		p.printf("PROBLEM: Got status %s.\n", res.Status)
		return CheckWarn, "but got status " + strconv.Itoa(res.StatusCode), len(body)
	case p.ExpectBody != "" && string(body) != p.ExpectBody:
		p.printf("PROBLEM: Expected body %q, got %q.\n", p.ExpectBody, body)
		return CheckWarn, "but the body was unexpected", len(body)
	}
	return CheckSuccess, "", len(body)
}

// finishStalled completes the held request and reads its response. The
// main request has already finished, so a success there means it was
// served while this one was still in flight.
func (p *Prober) finishStalled(conn net.Conn, main Check) Check {
	if main == CheckFail {
		p.printf("PROBLEM: The request failed while another connection was held open.\n")
		return CheckFail
	}

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.WriteString(conn, "Connection: close\r\n\r\n"); err != nil {
		p.printf("ERROR: could not finish partial request: %v\n", err)
		return CheckWarn
	}

	res, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		p.printf("ERROR: no response to the partial request: %v\n", err)
		return CheckWarn
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.StatusCode != http.StatusOK {
		p.printf("PROBLEM: The held request got status %s.\n", res.Status)
		return CheckWarn
	}
	return CheckSuccess
}

// uniquePorts drops repeats, keeping first-seen order. The held request and
// the main request both carry the token, so one server shows up twice.
func uniquePorts(ports []string) []string {
	seen := make(map[string]bool, len(ports))
	var res []string
	for _, port := range ports {
		if !seen[port] {
			seen[port] = true
			res = append(res, port)
		}
	}
	return res
}
