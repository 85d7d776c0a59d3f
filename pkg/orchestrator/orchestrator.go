// Package orchestrator derives the collaborators' parameters from the
// emulated topology and launches them.
//
// Launches are fire-and-forget, in the fixed order client, proxy, server.
// Nothing waits for a collaborator to become ready: the client may start
// talking before the proxy or the server listen, and that race is kept.
package orchestrator

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apex/log"

	"github.com/cs244-team/sidekick/api"
	"github.com/cs244-team/sidekick/pkg/netconf"
	"github.com/cs244-team/sidekick/pkg/proc"
	"github.com/cs244-team/sidekick/pkg/topo"
)

// DeriveRTT returns the round-trip time along the chain in ms: every link
// is crossed once each way.
func DeriveRTT(delays ...uint32) uint64 {
	var sum uint64
	for _, d := range delays {
		sum += uint64(d)
	}
	return 2 * sum
}

// Params are the values handed to the collaborators.
type Params struct {
	ServerIP       string
	ProxyInterface string
	Filter         string
	Quack          int
	Threshold      int
	RTT            uint64 // ms
	Port           int
}

type Orchestrator struct {
	cfg *api.Config
}

func New(cfg *api.Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// Derive computes the collaborator parameters. The server address comes
// from the plan, the proxy interface is the router end of the client
// link and the RTT only depends on the link properties.
func (o *Orchestrator) Derive(t *topo.Topology, plan *netconf.Plan) (*Params, error) {
	client := t.NodeByRole(api.RoleClient)
	router := t.Router()
	server := t.NodeByRole(api.RoleServer)
	if client == nil || router == nil || server == nil {
		return nil, fmt.Errorf("%w: incomplete topology", api.ErrConfig)
	}

	serverIP := plan.HostIP(server.Name)
	if serverIP == "" {
		return nil, fmt.Errorf("%w: no address planned for %s", api.ErrConfig, server.Name)
	}
	access := t.LinkBetween(client.Name, router.Name)
	if access == nil {
		return nil, fmt.Errorf("%w: no link between %s and %s", api.ErrConfig, client.Name, router.Name)
	}
	proxyIntf, _ := access.IntfOn(router.Name)

	p := &Params{
		ServerIP:       serverIP,
		ProxyInterface: proxyIntf.Name,
		Filter:         o.cfg.Proxy.Filter,
		Quack:          o.cfg.Proxy.Quack,
		Threshold:      o.cfg.Proxy.Threshold,
		RTT:            DeriveRTT(t.Delays()...),
		Port:           o.cfg.Server.Port,
	}
	if p.Filter == "" {
		p.Filter = api.DefaultFilter
	}
	if p.Quack == 0 {
		p.Quack = api.DefaultQuack
	}
	if p.Threshold == 0 {
		p.Threshold = api.DefaultThreshold
	}
	if p.Port == 0 {
		p.Port = api.DefaultPort
	}
	return p, nil
}

// Plan returns the three process descriptors in launch order.
func (o *Orchestrator) Plan(t *topo.Topology, plan *netconf.Plan) ([]api.Process, error) {
	p, err := o.Derive(t, plan)
	if err != nil {
		return nil, err
	}

	client := o.process(t.NodeByRole(api.RoleClient), api.ProgramClient,
		"--server-ip", p.ServerIP)
	proxy := o.process(t.Router(), api.ProgramProxy,
		"--interface", p.ProxyInterface,
		"--filter", p.Filter,
		"--quack", strconv.Itoa(p.Quack),
		"--threshold", strconv.Itoa(p.Threshold))
	server := o.process(t.NodeByRole(api.RoleServer), api.ProgramServer,
		"--rtt", strconv.FormatUint(p.RTT, 10),
		"--port", strconv.Itoa(p.Port))

	procs := []api.Process{client, proxy, server}
	extras := []string{o.cfg.Client.ExtraArgs, o.cfg.Proxy.ExtraArgs, o.cfg.Server.ExtraArgs}
	for i := range procs {
		args, err := proc.SplitArgs(extras[i])
		if err != nil {
			return nil, fmt.Errorf("%w: extra args of %s: %v", api.ErrConfig, procs[i].Program, err)
		}
		procs[i].Args = append(procs[i].Args, args...)
	}
	return procs, nil
}

func (o *Orchestrator) process(n *api.Node, program string, args ...string) api.Process {
	return api.Process{
		Node:    n.Name,
		Program: program,
		Path:    filepath.Join(o.execDir(), program),
		Args:    args,
		LogPath: LogPath(o.logDir(), program),
	}
}

// LogPath returns <dir>/<program>.log, keeping a leading "./" as given.
func LogPath(dir, program string) string {
	return strings.TrimRight(dir, "/") + "/" + program + ".log"
}

func (o *Orchestrator) execDir() string {
	if o.cfg.ExecDir == "" {
		return api.DefaultExecDir
	}
	return o.cfg.ExecDir
}

func (o *Orchestrator) logDir() string {
	if o.cfg.LogDir == "" {
		return api.DefaultLogDir
	}
	return o.cfg.LogDir
}

// Starter starts a handle. It is proc.Handle.Start outside of tests.
type Starter func(h *proc.Handle) error

func startHandle(h *proc.Handle) error { return h.Start() }

// Launch starts every process on its node, in order. A failed start is
// not an error of the harness: it is logged and left in the program's
// log file, and the next process is launched anyway.
func (o *Orchestrator) Launch(procs []api.Process, nodes map[string]*api.Node, start Starter) []*proc.Handle {
	if start == nil {
		start = startHandle
	}
	handles := make([]*proc.Handle, 0, len(procs))
	for _, p := range procs {
		var netns string
		if n, ok := nodes[p.Node]; ok {
			netns = n.NetNs
		}
		h := proc.NewHandle(p.Program, proc.NewArgv(p.Path, p.Args...), p.LogPath, netns)
		h.Node = p.Node
		if err := start(h); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"node":    p.Node,
				"program": p.Program,
				"log":     p.LogPath,
			}).Warn("launch failed")
		}
		handles = append(handles, h)
	}
	return handles
}
