package orchestrator

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs244-team/sidekick/api"
	"github.com/cs244-team/sidekick/pkg/netconf"
	"github.com/cs244-team/sidekick/pkg/proc"
	"github.com/cs244-team/sidekick/pkg/topo"
)

func setup(t *testing.T, cfg *api.Config) (*topo.Topology, *netconf.Plan) {
	t.Helper()
	tp := topo.Build(cfg.Links.Access, cfg.Links.Backbone)
	plan, err := netconf.DefaultPlan(tp)
	require.NoError(t, err)
	return tp, plan
}

func TestDeriveRTT(t *testing.T) {
	assert.Equal(t, uint64(52), DeriveRTT(1, 25))
	assert.Equal(t, uint64(0), DeriveRTT())
	for _, d := range [][2]uint32{{0, 0}, {7, 3}, {100, 250}} {
		assert.Equal(t, 2*(uint64(d[0])+uint64(d[1])), DeriveRTT(d[0], d[1]))
	}
	assert.Equal(t, uint64(4*math.MaxUint32), DeriveRTT(math.MaxUint32, math.MaxUint32))
}

func TestDeriveDefaults(t *testing.T) {
	cfg := api.DefaultConfig()
	tp, plan := setup(t, cfg)

	p, err := New(cfg).Derive(tp, plan)
	require.NoError(t, err)
	assert.Equal(t, &Params{
		ServerIP:       "35.240.20.220",
		ProxyInterface: "router-eth0",
		Filter:         api.DefaultFilter,
		Quack:          2,
		Threshold:      8,
		RTT:            52,
		Port:           9000,
	}, p)
}

func TestDeriveFillsZeroValues(t *testing.T) {
	cfg := api.DefaultConfig()
	cfg.Proxy = api.ProxyConfig{}
	cfg.Server = api.ServerConfig{}
	tp, plan := setup(t, cfg)

	p, err := New(cfg).Derive(tp, plan)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Quack)
	assert.Equal(t, 8, p.Threshold)
	assert.Equal(t, 9000, p.Port)
	assert.Equal(t, api.DefaultFilter, p.Filter)
}

func TestPlan(t *testing.T) {
	cfg := api.DefaultConfig()
	tp, plan := setup(t, cfg)

	procs, err := New(cfg).Plan(tp, plan)
	require.NoError(t, err)
	require.Len(t, procs, 3)

	assert.Equal(t, api.Process{
		Node:    "client",
		Program: "webrtc_client",
		Path:    "../build/src/webrtc_client",
		Args:    []string{"--server-ip", "35.240.20.220"},
		LogPath: "./logs/webrtc_client.log",
	}, procs[0])

	assert.Equal(t, api.Process{
		Node:    "router",
		Program: "sidekick_proxy",
		Path:    "../build/src/sidekick_proxy",
		Args: []string{
			"--interface", "router-eth0",
			"--filter", "ip and udp and not dst net 192.168 and not dst net 224",
			"--quack", "2",
			"--threshold", "8",
		},
		LogPath: "./logs/sidekick_proxy.log",
	}, procs[1])

	assert.Equal(t, api.Process{
		Node:    "server",
		Program: "webrtc_server",
		Path:    "../build/src/webrtc_server",
		Args:    []string{"--rtt", "52", "--port", "9000"},
		LogPath: "./logs/webrtc_server.log",
	}, procs[2])

	cmdline := proc.NewArgv(procs[1].Path, procs[1].Args...).String()
	assert.Contains(t, cmdline, "--quack 2 --threshold 8")
	assert.Contains(t, cmdline, "not dst net 192.168")
	assert.Contains(t, cmdline, "not dst net 224")
}

func TestPlanOverrides(t *testing.T) {
	cfg := api.DefaultConfig()
	cfg.Links.Backbone.Latency = 40
	cfg.Proxy.Quack = 5
	cfg.Proxy.Threshold = 3
	cfg.Server.Port = 9100
	cfg.Server.ExtraArgs = `--label "long haul"`
	cfg.LogDir = "/tmp/run1/"
	tp, plan := setup(t, cfg)

	procs, err := New(cfg).Plan(tp, plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"--interface", "router-eth0", "--filter", api.DefaultFilter,
		"--quack", "5", "--threshold", "3"}, procs[1].Args)
	assert.Equal(t, []string{"--rtt", "82", "--port", "9100", "--label", "long haul"}, procs[2].Args)
	assert.Equal(t, "/tmp/run1/webrtc_server.log", procs[2].LogPath)
}

func TestPlanLargestDelays(t *testing.T) {
	cfg := api.DefaultConfig()
	cfg.Links.Access.Latency = api.MaxLatency
	cfg.Links.Backbone.Latency = api.MaxLatency
	require.NoError(t, cfg.Validate())
	tp, plan := setup(t, cfg)

	procs, err := New(cfg).Plan(tp, plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"--rtt", "17179868", "--port", "9000"}, procs[2].Args)
}

func TestPlanBadExtraArgs(t *testing.T) {
	cfg := api.DefaultConfig()
	cfg.Client.ExtraArgs = `--name "unterminated`
	tp, plan := setup(t, cfg)

	_, err := New(cfg).Plan(tp, plan)
	assert.ErrorIs(t, err, api.ErrConfig)
}

func TestLaunchOrderAndFireAndForget(t *testing.T) {
	cfg := api.DefaultConfig()
	tp, plan := setup(t, cfg)
	procs, err := New(cfg).Plan(tp, plan)
	require.NoError(t, err)

	nodes := map[string]*api.Node{}
	for _, n := range tp.Nodes {
		n.NetNs = "/var/run/netns/test-" + n.Name
		nodes[n.Name] = n
	}

	var started []string
	start := func(h *proc.Handle) error {
		started = append(started, h.Name+"@"+h.NetNs)
		if h.Name == api.ProgramProxy {
			return errors.New("exec format error")
		}
		return nil
	}

	handles := New(cfg).Launch(procs, nodes, start)
	require.Len(t, handles, 3)
	assert.Equal(t, []string{
		"webrtc_client@/var/run/netns/test-client",
		"sidekick_proxy@/var/run/netns/test-router",
		"webrtc_server@/var/run/netns/test-server",
	}, started)
	assert.True(t, strings.HasSuffix(handles[2].Argv.String(), "--rtt 52 --port 9000"))
}

func TestLaunchMissingBinaries(t *testing.T) {
	cfg := api.DefaultConfig()
	cfg.ExecDir = filepath.Join(t.TempDir(), "bin")
	cfg.LogDir = filepath.Join(t.TempDir(), "logs")
	tp, plan := setup(t, cfg)
	procs, err := New(cfg).Plan(tp, plan)
	require.NoError(t, err)

	// no namespaces: run in the current one
	handles := New(cfg).Launch(procs, nil, nil)
	require.Len(t, handles, 3)
	for _, h := range handles {
		assert.Equal(t, proc.StatusFailed, h.Status())
		assert.FileExists(t, h.LogPath)
	}
}
