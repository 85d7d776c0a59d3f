package util

import (
	"fmt"

	ns "github.com/containernetworking/plugins/pkg/ns"
)

// InNetNs runs fn with the calling OS thread switched into the network
// namespace at path. An empty path runs fn in the current namespace.
func InNetNs(path string, fn func() error) error {
	if path == "" {
		return fn()
	}
	nodeNs, err := ns.GetNS(path)
	if err != nil {
		return fmt.Errorf("failed to get namespace %s: %v", path, err)
	}
	defer nodeNs.Close()

	return nodeNs.Do(func(_ ns.NetNS) error {
		return fn()
	})
}
