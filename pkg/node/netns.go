package node

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/apex/log"
	"github.com/vishvananda/netns"

	"github.com/cs244-team/sidekick/api"
)

const netnsDir = "/var/run/netns"

// NamespaceManager backs every node with a named network namespace, the
// way mininet hosts are plain namespaces sharing the host filesystem.
type NamespaceManager struct {
	prefix string
}

// NewNamespaceManager names namespaces <prefix>-<node>; the prefix is
// usually the run id so that concurrent runs do not collide.
func NewNamespaceManager(prefix string) *NamespaceManager {
	return &NamespaceManager{prefix: prefix}
}

func (nm *NamespaceManager) nsName(name string) string {
	return nm.prefix + "-" + name
}

// AddNode creates the namespace and records its path in n.NetNs.
func (nm *NamespaceManager) AddNode(_ context.Context, n *api.Node) error {
	name := nm.nsName(n.Name)

	// netns.NewNamed switches the calling thread, so pin it and switch back
	runtime.LockOSThread()
	origin, err := netns.Get()
	if err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("failed to get current namespace: %v", err)
	}
	defer origin.Close()

	handle, err := netns.NewNamed(name)
	if err != nil {
		if serr := netns.Set(origin); serr == nil {
			runtime.UnlockOSThread()
		}
		return fmt.Errorf("failed to create namespace %s: %v", name, err)
	}
	handle.Close()
	if err = netns.Set(origin); err != nil {
		// leave the thread locked: it dies with the goroutine
		return fmt.Errorf("failed to restore namespace: %v", err)
	}
	runtime.UnlockOSThread()

	n.NetNs = filepath.Join(netnsDir, name)
	log.WithFields(log.Fields{"node": n.Name, "netns": n.NetNs}).Debug("namespace created")
	return nil
}

func (nm *NamespaceManager) DeleteNode(_ context.Context, n *api.Node) error {
	if n.NetNs == "" {
		return nil
	}
	if err := netns.DeleteNamed(nm.nsName(n.Name)); err != nil {
		return fmt.Errorf("failed to delete namespace of %s: %v", n.Name, err)
	}
	n.NetNs = ""
	return nil
}
