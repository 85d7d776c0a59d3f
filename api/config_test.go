package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, LinkProperties{Latency: 1, Loss: 3.6, Rate: 100}, cfg.Links.Access)
	assert.Equal(t, LinkProperties{Latency: 25, Loss: 0, Rate: 10}, cfg.Links.Backbone)
	assert.Equal(t, 2, cfg.Proxy.Quack)
	assert.Equal(t, 8, cfg.Proxy.Threshold)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "./logs", cfg.LogDir)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative loss", func(c *Config) { c.Links.Access.Loss = -1 }},
		{"loss above 100", func(c *Config) { c.Links.Backbone.Loss = 100.5 }},
		{"zero rate", func(c *Config) { c.Links.Backbone.Rate = 0 }},
		{"latency above netem range", func(c *Config) { c.Links.Access.Latency = MaxLatency + 1 }},
		{"backbone latency overflowing rtt", func(c *Config) { c.Links.Backbone.Latency = 1 << 31 }},
		{"unknown runtime", func(c *Config) { c.Runtime = "vm" }},
		{"zero quack", func(c *Config) { c.Proxy.Quack = 0 }},
		{"zero threshold", func(c *Config) { c.Proxy.Threshold = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfig)
		})
	}
}

func TestLinkPropertiesBounds(t *testing.T) {
	assert.NoError(t, LinkProperties{Latency: 0, Loss: 0, Rate: 1}.Validate())
	assert.NoError(t, LinkProperties{Latency: 0, Loss: 100, Rate: 1}.Validate())
	assert.NoError(t, LinkProperties{Latency: MaxLatency, Rate: 1}.Validate())
	assert.ErrorIs(t, LinkProperties{Latency: 4294968, Rate: 1}.Validate(), ErrConfig)
	assert.Equal(t, "delay=25ms loss=0.0% bw=10Mbit", LinkProperties{Latency: 25, Rate: 10}.String())
}

func TestLinkIntfOn(t *testing.T) {
	l := Link{
		SrcNode: "client",
		DstNode: "router",
		SrcIntf: NodeInterface{Name: "client-eth0"},
		DstIntf: NodeInterface{Name: "router-eth0"},
	}
	intf, ok := l.IntfOn("router")
	require.True(t, ok)
	assert.Equal(t, "router-eth0", intf.Name)
	_, ok = l.IntfOn("server")
	assert.False(t, ok)
	assert.True(t, l.Attaches("client"))
	assert.False(t, l.Attaches("server"))
}
