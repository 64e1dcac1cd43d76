package scanning

import (
	"github.com/gosnmp/gosnmp"
	"github.com/miekg/dns"
)

const (
	portDNS  = 53
	portNTP  = 123
	portSNMP = 161

	ntpPacketSize = 48
	// LI=0, VN=3, Mode=3 (client).
	ntpClientHeader = 0x1b

	snmpCommunity = "public"
	oidSysDescr   = ".1.3.6.1.2.1.1.1.0"
)

// payloadBuilders produce datagrams that well-known UDP services answer.
// Services that ignore an empty datagram would otherwise always look
// open|filtered.
var payloadBuilders = map[int]func() ([]byte, error){
	portDNS:  dnsPayload,
	portNTP:  ntpPayload,
	portSNMP: snmpPayload,
}

// UDPPayload returns the probe datagram for port. Ports without a known
// protocol, and any payload that fails to build, get an empty datagram.
func UDPPayload(port int) []byte {
	build, ok := payloadBuilders[port]
	if !ok {
		return nil
	}
	payload, err := build()
	if err != nil {
		return nil
	}
	return payload
}

func dnsPayload() ([]byte, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(".", dns.TypeNS)
	msg.RecursionDesired = false
	return msg.Pack()
}

func ntpPayload() ([]byte, error) {
	packet := make([]byte, ntpPacketSize)
	packet[0] = ntpClientHeader
	return packet, nil
}

func snmpPayload() ([]byte, error) {
	packet := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		Community: snmpCommunity,
		PDUType:   gosnmp.GetRequest,
		RequestID: 1,
		Variables: []gosnmp.SnmpPDU{
			{Name: oidSysDescr, Type: gosnmp.Null},
		},
	}
	return packet.MarshalMsg()
}
