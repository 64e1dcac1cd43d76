package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	rng := PortRange{Start: 52, End: 54}
	tcp := map[int]TCPResult{
		52: {Port: 52},
		53: {Port: 53, Open: true, Service: "domain", Banner: "hi"},
		54: {Port: 54},
	}
	udp := map[int]UDPResult{
		52: {Port: 52, State: UDPOpenOrFiltered},
		53: {Port: 53, State: UDPOpen},
		54: {Port: 54, State: UDPClosed},
	}
	lookup := stubLookup(map[string]string{"52/udp": "xns-time", "54/udp": "xns-ch"})

	rows := Aggregate(rng, tcp, udp, lookup)

	require.Len(t, rows, 3)
	assert.Equal(t, PortReport{Port: 52, Service: "xns-time", UDPState: UDPOpenOrFiltered}, rows[0])
	assert.Equal(t, PortReport{Port: 53, Service: "domain", Banner: "hi", TCPOpen: true, UDPState: UDPOpen}, rows[1])
	assert.Equal(t, PortReport{Port: 54, Service: "xns-ch", UDPState: UDPClosed}, rows[2])

	assert.True(t, rows[0].Visible())
	assert.True(t, rows[1].Visible())
	assert.False(t, rows[2].Visible())
}

func TestAggregateOrderingIgnoresMapOrder(t *testing.T) {
	rng := PortRange{Start: 1, End: 200}
	tcp := make(map[int]TCPResult)
	udp := make(map[int]UDPResult)
	// Fill in reverse to mimic out-of-order completion.
	for p := rng.End; p >= rng.Start; p-- {
		tcp[p] = TCPResult{Port: p, Open: p%7 == 0}
		udp[p] = UDPResult{Port: p}
	}

	rows := Aggregate(rng, tcp, udp, stubLookup(nil))

	require.Len(t, rows, rng.Size())
	for i := 1; i < len(rows); i++ {
		assert.Less(t, rows[i-1].Port, rows[i].Port)
	}
}

func TestAggregateMissingEntriesAreClosed(t *testing.T) {
	rows := Aggregate(PortRange{Start: 10, End: 11}, nil, nil, stubLookup(nil))

	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.False(t, row.TCPOpen)
		assert.Equal(t, UDPClosed, row.UDPState)
		assert.False(t, row.Visible())
	}
}

func TestAggregateBannerOnlyForOpenTCP(t *testing.T) {
	tcp := map[int]TCPResult{7: {Port: 7, Banner: "stale"}}
	rows := Aggregate(PortRange{Start: 7, End: 7}, tcp, nil, stubLookup(nil))
	assert.Empty(t, rows[0].Banner)
}
