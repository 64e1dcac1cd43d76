package scanning

import (
	"bytes"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPPayloadDNS(t *testing.T) {
	payload := UDPPayload(53)
	require.NotEmpty(t, payload)

	msg := new(dns.Msg)
	require.NoError(t, msg.Unpack(payload))
	require.Len(t, msg.Question, 1)
	assert.Equal(t, ".", msg.Question[0].Name)
	assert.Equal(t, dns.TypeNS, msg.Question[0].Qtype)
	assert.False(t, msg.Response)
}

func TestUDPPayloadNTP(t *testing.T) {
	payload := UDPPayload(123)
	require.Len(t, payload, 48)
	assert.Equal(t, byte(0x1b), payload[0])
	assert.Equal(t, make([]byte, 47), payload[1:])
}

func TestUDPPayloadSNMP(t *testing.T) {
	payload := UDPPayload(161)
	require.NotEmpty(t, payload)

	// BER SEQUENCE, then INTEGER version 1 (v2c).
	assert.Equal(t, byte(0x30), payload[0])
	assert.True(t, bytes.Contains(payload, []byte{0x02, 0x01, 0x01}))
	assert.True(t, bytes.Contains(payload, []byte("public")))
}

func TestUDPPayloadUnknownPort(t *testing.T) {
	assert.Nil(t, UDPPayload(9999))
	assert.Nil(t, UDPPayload(22))
}
