package node

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/cs244-team/sidekick/api"
)

const DefaultImage = "alpine:3.20"

// ContainerManager backs every node with a privileged, network-less docker
// container. Only the container's network namespace is used: collaborator
// binaries still run from the host filesystem.
type ContainerManager struct {
	dClient *client.Client
	prefix  string
	image   string
}

func NewContainerManager(prefix, image string) (*ContainerManager, error) {
	dClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %v", err)
	}
	if image == "" {
		image = DefaultImage
	}
	return &ContainerManager{
		dClient: dClient,
		prefix:  prefix,
		image:   image,
	}, nil
}

func (cm *ContainerManager) containerName(n *api.Node) string {
	return cm.prefix + "-" + n.Name
}

// AddNode creates and starts the container, then records its NetNS path.
// ip_forward stays at the kernel default; Router owns it.
func (cm *ContainerManager) AddNode(ctx context.Context, n *api.Node) error {
	if n.Image == "" {
		n.Image = cm.image
	}
	name := cm.containerName(n)

	// 1. Create the container
	_, err := cm.dClient.ContainerCreate(ctx, &container.Config{
		Image:           n.Image,
		Cmd:             []string{"sleep", "infinity"},
		NetworkDisabled: true,
		User:            "root",
		Hostname:        n.Name,
	}, &container.HostConfig{
		Privileged: true,
		Binds:      []string{},
	}, nil, nil, name)
	if err != nil {
		return fmt.Errorf("failed to create container %s: %v", name, err)
	}

	// 2. Start it
	if err = cm.dClient.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %v", name, err)
	}

	// 3. Get NetNS from the container init process
	res, err := cm.dClient.ContainerInspect(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to inspect container %s: %v", name, err)
	}
	n.NetNs = fmt.Sprintf("/proc/%d/ns/net", res.State.Pid)
	log.WithFields(log.Fields{"node": n.Name, "netns": n.NetNs}).Debug("container started")
	return nil
}

func (cm *ContainerManager) DeleteNode(ctx context.Context, n *api.Node) error {
	err := cm.dClient.ContainerRemove(ctx, cm.containerName(n), container.RemoveOptions{Force: true})
	if err != nil {
		return err
	}
	n.NetNs = ""
	return nil
}
