// Package sniff captures live TCP traffic with libpcap so the probe can see
// which port its request actually reached.
package sniff

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bvisness/hello/probe"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
)

const (
	DefaultDevice  = "any"
	DefaultFilter  = "tcp and not tcp port 22"
	DefaultSnaplen = 1600
)

// Live sniffs a network device. Capturing usually needs root or
// CAP_NET_RAW.
type Live struct {
	Device  string
	Filter  string
	Snaplen int32
}

var _ probe.Sniffer = Live{}

// Sniff starts capturing. Any TCP segment whose payload contains token has
// its destination port recorded.
func (l Live) Sniff(token string) (probe.Capture, error) {
	device, filter, snaplen := l.Device, l.Filter, l.Snaplen
	if device == "" {
		device = DefaultDevice
	}
	if filter == "" {
		filter = DefaultFilter
	}
	if snaplen == 0 {
		snaplen = DefaultSnaplen
	}

	handle, err := pcap.OpenLive(device, snaplen, true, pcap.BlockForever)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", device)
	}

	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, errors.Wrapf(err, "set filter %q", filter)
	}

	c := &Capture{handle: handle}
	c.wg.Add(1)
	go c.read(gopacket.NewPacketSource(handle, handle.LinkType()), token)
	return c, nil
}

// Capture is a running live capture.
type Capture struct {
	handle *pcap.Handle
	wg     sync.WaitGroup

	mu    sync.Mutex
	ports []string
}

func (c *Capture) read(source *gopacket.PacketSource, token string) {
	defer c.wg.Done()
	for packet := range source.Packets() {
		if port, ok := matchToken(packet, token); ok {
			c.mu.Lock()
			c.ports = append(c.ports, port)
			c.mu.Unlock()
		}
	}
}

// Close stops the capture and returns the destination ports seen.
func (c *Capture) Close() []string {
	time.Sleep(time.Millisecond * 100) // TODO: stop on the HTTP response instead of waiting
	c.handle.Close()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ports
}

func matchToken(p gopacket.Packet, token string) (string, bool) {
	tcpLayer := p.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return "", false
	}
	tcp, _ := tcpLayer.(*layers.TCP)
	if !strings.Contains(string(tcp.Payload), token) {
		return "", false
	}
	return strconv.Itoa(int(tcp.DstPort)), true
}
