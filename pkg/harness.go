package pkg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/rs/xid"
	"gopkg.in/yaml.v3"

	"github.com/cs244-team/sidekick/api"
	"github.com/cs244-team/sidekick/pkg/link"
	"github.com/cs244-team/sidekick/pkg/netconf"
	"github.com/cs244-team/sidekick/pkg/node"
	"github.com/cs244-team/sidekick/pkg/orchestrator"
	"github.com/cs244-team/sidekick/pkg/proc"
	"github.com/cs244-team/sidekick/pkg/topo"
)

// Engine bundles the emulation primitives a run needs.
type Engine struct {
	Nodes  NodeRuntime
	Links  LinkRuntime
	Sysctl node.Sysctl
}

// EngineFactory creates the engine for a run id.
type EngineFactory func(cfg *api.Config, id string) (*Engine, error)

// HostEngine is the EngineFactory backed by the host kernel.
func HostEngine(cfg *api.Config, id string) (*Engine, error) {
	prefix := "sk-" + id
	e := &Engine{
		Links:  link.NewLinkManager(id),
		Sysctl: node.NsSysctl{},
	}
	switch cfg.Runtime {
	case api.RuntimeDocker:
		cm, err := node.NewContainerManager(prefix, cfg.Image)
		if err != nil {
			return nil, err
		}
		e.Nodes = cm
	default:
		e.Nodes = node.NewNamespaceManager(prefix)
	}
	return e, nil
}

// Harness wires one evaluation run: topology, addressing, emulation and
// collaborators. Everything up to Run is pure planning.
type Harness struct {
	ID    string
	cfg   *api.Config
	topo  *topo.Topology
	plan  *netconf.Plan
	procs []api.Process
	orch  *orchestrator.Orchestrator

	engine EngineFactory
	start  orchestrator.Starter
	m      *Manager
}

// LoadConfig reads a YAML config on top of the defaults. An empty path
// returns the defaults.
func LoadConfig(filepath string) (*api.Config, error) {
	cfg := api.DefaultConfig()
	if filepath == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %v", err)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: error unmarshaling YAML file: %v", api.ErrConfig, err)
	}
	return cfg, nil
}

// NewHarness validates cfg and plans the run without touching the host.
func NewHarness(cfg *api.Config) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := topo.Build(cfg.Links.Access, cfg.Links.Backbone)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	plan, err := netconf.DefaultPlan(t)
	if err != nil {
		return nil, err
	}
	if err = plan.Verify(); err != nil {
		return nil, err
	}
	orch := orchestrator.New(cfg)
	procs, err := orch.Plan(t, plan)
	if err != nil {
		return nil, err
	}
	return &Harness{
		ID:     xid.New().String(),
		cfg:    cfg,
		topo:   t,
		plan:   plan,
		procs:  procs,
		orch:   orch,
		engine: HostEngine,
	}, nil
}

// Run builds, configures and starts the emulated network, then launches
// the collaborators. It returns as soon as they are launched. On error,
// including ctx being cancelled between steps, the partial emulation is
// torn down.
func (h *Harness) Run(ctx context.Context) (err error) {
	if h.m != nil {
		return fmt.Errorf("%w: harness already ran", ErrBadState)
	}
	e, err := h.engine(h.cfg, h.ID)
	if err != nil {
		return err
	}
	h.m = NewManager(h.ID, e.Nodes, e.Links, e.Sysctl)
	defer func() {
		if err != nil {
			err = errors.Join(err, h.m.Stop(context.WithoutCancel(ctx)))
		}
	}()

	if err = h.m.Build(ctx, h.topo); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = h.m.Configure(h.plan); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = h.m.Start(); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	params, err := h.orch.Derive(h.topo, h.plan)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"server-ip": params.ServerIP,
		"rtt":       params.RTT,
		"iface":     params.ProxyInterface,
	}).Info("launching collaborators")
	h.m.Adopt(h.orch.Launch(h.procs, h.m.Nodes, h.start)...)
	return nil
}

// Stop tears down the emulation, if any.
func (h *Harness) Stop(ctx context.Context) error {
	if h.m == nil {
		return nil
	}
	return h.m.Stop(ctx)
}

func (h *Harness) Manager() *Manager { return h.m }

func (h *Harness) Topology() *topo.Topology { return h.topo }

func (h *Harness) Plan() *netconf.Plan { return h.plan }

func (h *Harness) Processes() []api.Process { return h.procs }

func (h *Harness) ShowNodes(w io.Writer) {
	for _, n := range h.topo.Nodes {
		fmt.Fprintf(w, "Node: %s, Uid: %d, Role: %s, NetNs: %s\n", n.Name, n.Uid, n.Role, n.NetNs)
		for _, intf := range n.Interfaces {
			fmt.Fprintf(w, "  Interface: %s, IPv4: %s\n", intf.Name, h.plan.Address(n.Name, intf.Name))
		}
	}
}

func (h *Harness) ShowLinks(w io.Writer) {
	for _, l := range h.topo.Links {
		fmt.Fprintf(w, "Link: %s <-> %s, Bw: %dMbps, Delay: %dms, Loss: %.2f\n",
			l.SrcIntf.Name, l.DstIntf.Name, l.Properties.Rate, l.Properties.Latency, l.Properties.Loss)
	}
}

func (h *Harness) ShowAddrs(w io.Writer) {
	for _, a := range h.plan.Assignments {
		fmt.Fprintf(w, "Addr: %s %s %s\n", a.Node, a.Interface, a.Address)
	}
	for _, r := range h.plan.Routes {
		fmt.Fprintf(w, "Route: %s default via %s\n", r.Node, r.Via)
	}
}

func (h *Harness) ShowProcs(w io.Writer) {
	var status []string
	if h.m != nil {
		for _, p := range h.m.Processes() {
			status = append(status, p.Status().String())
		}
	}
	for i, p := range h.procs {
		line := fmt.Sprintf("Proc: %s on %s: %s > %s 2>&1",
			p.Program, p.Node, argvString(p), p.LogPath)
		if i < len(status) {
			line += " [" + status[i] + "]"
		}
		fmt.Fprintln(w, line)
	}
}

func argvString(p api.Process) string {
	return proc.NewArgv(p.Path, p.Args...).String()
}
