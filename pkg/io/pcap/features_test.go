package pcap

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPacket(t *testing.T, ts time.Time, proto layers.IPProtocol, transport gopacket.SerializableLayer, payload []byte) gopacket.Packet {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	if tcp, ok := transport.(*layers.TCP); ok {
		require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	}
	if udp, ok := transport.(*layers.UDP); ok {
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(payload)))

	packet := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	packet.Metadata().Timestamp = ts
	return packet
}

func TestFeatureExtractor(t *testing.T) {
	start := time.Unix(1700000000, 0)
	payload := bytes.Repeat([]byte{0xab}, 100)

	tests := []struct {
		name      string
		ts        time.Time
		proto     layers.IPProtocol
		transport gopacket.SerializableLayer
		payload   []byte
		want      []float64
	}{
		{
			name:  "tcp syn-ack",
			ts:    start,
			proto: layers.IPProtocolTCP,
			transport: &layers.TCP{
				SrcPort: 1234,
				DstPort: 80,
				SYN:     true,
				ACK:     true,
				Window:  1024,
			},
			payload: payload,
			want:    []float64{154, 0, 6, 1234, 80, 3, 64, 100},
		},
		{
			name:      "udp after 250ms",
			ts:        start.Add(250 * time.Millisecond),
			proto:     layers.IPProtocolUDP,
			transport: &layers.UDP{SrcPort: 53, DstPort: 5353},
			payload:   payload[:50],
			want:      []float64{92, 0.25, 17, 53, 5353, 0, 64, 50},
		},
	}

	// One extractor across cases: the inter-arrival time depends on order.
	e := NewFeatureExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet := buildPacket(t, tt.ts, tt.proto, tt.transport, tt.payload)
			got := e.Extract(packet)
			require.Len(t, got, len(e.FeatureNames()))
			assert.InDeltaSlice(t, tt.want, got, 1e-9)
		})
	}
}

func TestFeatureExtractorICMP(t *testing.T) {
	e := NewFeatureExtractor()
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}
	packet := buildPacket(t, time.Unix(1, 0), layers.IPProtocolICMPv4, icmp, []byte("ping"))

	got := e.Extract(packet)
	require.Len(t, got, 8)
	assert.Equal(t, float64(protoICMP), got[2])
	assert.Zero(t, got[3])
	assert.Zero(t, got[5])
	assert.Equal(t, float64(64), got[6])
}

func TestFeatureExtractorNilPacket(t *testing.T) {
	assert.Nil(t, NewFeatureExtractor().Extract(nil))
}

func TestEncodeTCPFlags(t *testing.T) {
	tests := []struct {
		name string
		tcp  layers.TCP
		want float64
	}{
		{"none", layers.TCP{}, 0},
		{"syn", layers.TCP{SYN: true}, 1},
		{"fin-ack", layers.TCP{FIN: true, ACK: true}, 6},
		{"rst", layers.TCP{RST: true}, 8},
		{"all", layers.TCP{SYN: true, ACK: true, FIN: true, RST: true, PSH: true, URG: true}, 63},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encodeTCPFlags(&tt.tcp))
		})
	}
}
