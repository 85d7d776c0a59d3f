package pkg

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/tebeka/atexit"

	"github.com/cs244-team/sidekick/api"
	"github.com/cs244-team/sidekick/pkg/netconf"
	"github.com/cs244-team/sidekick/pkg/node"
	"github.com/cs244-team/sidekick/pkg/proc"
	"github.com/cs244-team/sidekick/pkg/topo"
)

// NodeRuntime turns topology nodes into network namespaces.
type NodeRuntime interface {
	AddNode(ctx context.Context, n *api.Node) error
	DeleteNode(ctx context.Context, n *api.Node) error
}

// LinkRuntime creates shaped links and configures interfaces.
type LinkRuntime interface {
	AddLink(l *api.Link, src, dst *api.Node) error
	netconf.Configurer
}

type state int

const (
	stateNew state = iota
	stateBuilt
	stateConfigured
	stateStarted
	stateStopped
)

var ErrBadState = errors.New("emulation not in the required state")

// Manager owns one emulated network instance: its nodes, links, the
// router's forwarding state and the processes launched on it.
type Manager struct {
	ID    string
	Nodes map[string]*api.Node // map node name to node

	nr     NodeRuntime
	lm     LinkRuntime
	sysctl node.Sysctl
	router *node.Router
	order  []*api.Node
	procs  []*proc.Handle
	state  state

	stopOnce sync.Once
	stopErr  error
}

// NewManager creates a Manager on top of the given engine primitives.
func NewManager(id string, nr NodeRuntime, lm LinkRuntime, s node.Sysctl) *Manager {
	return &Manager{
		ID:     id,
		Nodes:  make(map[string]*api.Node),
		nr:     nr,
		lm:     lm,
		sysctl: s,
	}
}

// Build instantiates the topology: nodes first, then links with their
// shaping. The network is not started yet. On error, whatever was
// created is released by Stop.
func (m *Manager) Build(ctx context.Context, t *topo.Topology) error {
	if m.state != stateNew {
		return fmt.Errorf("%w: build", ErrBadState)
	}
	if err := t.Validate(); err != nil {
		return err
	}
	m.state = stateBuilt
	m.router = node.NewRouter(t.Router(), m.sysctl)

	for _, n := range t.Nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.Nodes[n.Name] = n
		m.order = append(m.order, n)
		if err := m.nr.AddNode(ctx, n); err != nil {
			return fmt.Errorf("failed to add node %s: %w", n.Name, err)
		}
		log.WithFields(log.Fields{"node": n.Name, "role": n.Role}).Info("node added")
	}

	for _, l := range t.Links {
		if err := ctx.Err(); err != nil {
			return err
		}
		src, dst := m.Nodes[l.SrcNode], m.Nodes[l.DstNode]
		if err := m.lm.AddLink(l, src, dst); err != nil {
			return fmt.Errorf("failed to add link %s-%s: %w", l.SrcNode, l.DstNode, err)
		}
	}
	return nil
}

// Configure assigns addresses and routes. It runs between Build and Start.
func (m *Manager) Configure(plan *netconf.Plan) error {
	if m.state != stateBuilt {
		return fmt.Errorf("%w: configure", ErrBadState)
	}
	if err := plan.Verify(); err != nil {
		return err
	}
	if err := plan.Apply(m.Nodes, m.lm); err != nil {
		return err
	}
	m.state = stateConfigured
	return nil
}

// Start activates the router. From here on Stop is also registered as an
// exit handler, so atexit.Exit and atexit.Fatal release forwarding too.
func (m *Manager) Start() error {
	if m.state != stateConfigured {
		return fmt.Errorf("%w: start", ErrBadState)
	}
	if err := m.router.Activate(); err != nil {
		return err
	}
	m.state = stateStarted
	atexit.Register(func() {
		_ = m.Stop(context.Background())
	})
	log.WithField("id", m.ID).Info("emulation started")
	return nil
}

// Adopt hands launched processes to the manager, which terminates them on
// Stop.
func (m *Manager) Adopt(handles ...*proc.Handle) {
	m.procs = append(m.procs, handles...)
}

func (m *Manager) Router() *node.Router { return m.router }

func (m *Manager) Processes() []*proc.Handle { return m.procs }

func (m *Manager) Running() bool { return m.state == stateStarted }

// Stop tears the emulation down: processes are terminated, the router
// releases forwarding whatever else fails, then nodes are removed. Stop
// runs once; later calls return the first result.
func (m *Manager) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.stopErr = m.stop(ctx)
		m.state = stateStopped
		if m.stopErr != nil {
			log.WithError(m.stopErr).Warn("teardown finished with errors")
		} else {
			log.WithField("id", m.ID).Info("emulation stopped")
		}
	})
	return m.stopErr
}

func (m *Manager) stop(ctx context.Context) error {
	var errv []error

	// 1. processes, inside the router teardown so that forwarding is
	// released even if terminating them fails
	if m.router != nil {
		if err := m.router.Terminate(m.terminateProcesses); err != nil {
			errv = append(errv, err)
		}
	} else if err := m.terminateProcesses(); err != nil {
		errv = append(errv, err)
	}

	// 2. nodes, in reverse creation order
	for i := len(m.order) - 1; i >= 0; i-- {
		n := m.order[i]
		if err := m.nr.DeleteNode(ctx, n); err != nil {
			errv = append(errv, fmt.Errorf("failed to delete node %s: %w", n.Name, err))
		}
	}
	return errors.Join(errv...)
}

// terminateProcesses stops launched processes in reverse launch order.
func (m *Manager) terminateProcesses() error {
	var errv []error
	for i := len(m.procs) - 1; i >= 0; i-- {
		if err := m.procs[i].Terminate(); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}
