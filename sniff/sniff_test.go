package sniff

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/theothertomelliott/must"
)

func buildPacket(t *testing.T, payload string, dst layers.TCPPort) gopacket.Packet {
	t.Helper()

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IP{127, 0, 0, 1},
		DstIP:    net.IP{127, 0, 0, 1},
	}
	tcp := &layers.TCP{
		SrcPort: 50000,
		DstPort: dst,
		PSH:     true,
		ACK:     true,
		Window:  1024,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatal(err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, tcp, gopacket.Payload(payload)); err != nil {
		t.Fatal(err)
	}
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeIPv4, gopacket.Default)
}

func TestMatchToken(t *testing.T) {
	const token = "bcdfBCDF01234567"

	tests := []struct {
		name     string
		payload  string
		wantPort string
		wantOK   bool
	}{
		{
			name:     "token in header",
			payload:  "GET / HTTP/1.1\r\nHost: localhost:8080\r\nX-Hello-Probe: " + token + "\r\n\r\n",
			wantPort: "8080",
			wantOK:   true,
		},
		{
			name:    "other traffic",
			payload: "GET / HTTP/1.1\r\nHost: localhost:8080\r\n\r\n",
		},
		{
			name: "empty segment",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			port, ok := matchToken(buildPacket(t, test.payload, 8080), token)
			must.BeEqual(t, test.wantOK, ok, "match was not as expected")
			must.BeEqual(t, test.wantPort, port, "port was not as expected")
		})
	}
}

func TestMatchTokenNotTCP(t *testing.T) {
	udp := gopacket.NewPacket([]byte{0x00}, layers.LayerTypeUDP, gopacket.Default)
	_, ok := matchToken(udp, "anything")
	must.BeEqual(t, false, ok, "non-TCP packet should not match")
}
