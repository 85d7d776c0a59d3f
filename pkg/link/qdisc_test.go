package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vishvananda/netlink"

	"github.com/cs244-team/sidekick/api"
)

func TestNetemAttrs(t *testing.T) {
	attrs := NetemAttrs(api.LinkProperties{Latency: 25, Loss: 3.6, Rate: 10})
	assert.Equal(t, uint32(25000), attrs.Latency)
	assert.Equal(t, float32(3.6), attrs.Loss)
	assert.Equal(t, uint32(netemLimit), attrs.Limit)

	attrs = NetemAttrs(api.LinkProperties{Latency: api.MaxLatency, Rate: 1})
	assert.Equal(t, uint32(api.MaxLatency)*1000, attrs.Latency)
}

func TestHtbRate(t *testing.T) {
	assert.Equal(t, uint64(100_000_000), HtbRate(api.LinkProperties{Rate: 100}))
	assert.Equal(t, uint64(10_000_000), HtbRate(api.LinkProperties{Rate: 10}))
}

func TestHandles(t *testing.T) {
	assert.Equal(t, netlink.MakeHandle(1, 0), rootHandle)
	assert.NotEqual(t, classHandle, netemHandle)
}
