package doctor

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/sitrep/internal/docker"
	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/swarm"
	"github.com/rileyhilliard/sitrep/internal/util"
)

// DockerDaemonCheck pings the daemon behind the Containers view. A missing
// daemon only hides that view, so it warns rather than fails.
type DockerDaemonCheck struct {
	API docker.API

	// ConnectErr is set when the client couldn't even be built.
	ConnectErr error
}

func (c *DockerDaemonCheck) Name() string     { return "docker_daemon" }
func (c *DockerDaemonCheck) Category() string { return CategoryDocker }

func (c *DockerDaemonCheck) Run(ctx context.Context) CheckResult {
	if c.ConnectErr != nil || c.API == nil {
		return warn(c.Name(), "Docker client unavailable: "+errors.OneLine(c.ConnectErr),
			"Check DOCKER_HOST or docker.host in .sitrep.yaml")
	}
	if err := c.API.Ping(ctx); err != nil {
		return warn(c.Name(), "Docker daemon not reachable: "+errors.OneLine(err),
			"Start Docker or check you can access its socket; the Containers view stays hidden until then")
	}
	containers, err := c.API.List(ctx)
	if err != nil {
		return warn(c.Name(), "Daemon reachable but listing failed: "+errors.OneLine(err), "")
	}
	return pass(c.Name(), fmt.Sprintf("Daemon reachable, %d running %s",
		len(containers), util.Pluralize(len(containers), "container", "containers")))
}

// SwarmCLICheck verifies the docker CLI the Swarm view drives.
type SwarmCLICheck struct {
	CLI *swarm.CLI
	Bin string
}

func (c *SwarmCLICheck) Name() string     { return "swarm_cli" }
func (c *SwarmCLICheck) Category() string { return CategorySwarm }

func (c *SwarmCLICheck) Run(ctx context.Context) CheckResult {
	if !c.CLI.Available(ctx) {
		return warn(c.Name(), fmt.Sprintf("%s CLI not found or not working", c.Bin),
			"Install the Docker CLI or point swarm.cli at it; the Swarm view stays hidden until then")
	}
	return pass(c.Name(), c.Bin+" CLI available")
}

// SwarmMembershipCheck reports the local node's role in the cluster.
type SwarmMembershipCheck struct {
	CLI *swarm.CLI
}

func (c *SwarmMembershipCheck) Name() string     { return "swarm_membership" }
func (c *SwarmMembershipCheck) Category() string { return CategorySwarm }

func (c *SwarmMembershipCheck) Run(ctx context.Context) CheckResult {
	if !c.CLI.Available(ctx) {
		return pass(c.Name(), "Skipped: no docker CLI")
	}
	cluster, err := c.CLI.Detect(ctx)
	if err != nil {
		return warn(c.Name(), "Couldn't read swarm state: "+errors.OneLine(err), "")
	}
	if cluster == nil {
		return pass(c.Name(), "Standalone engine (not in a swarm)")
	}
	if !cluster.IsManager {
		return warn(c.Name(), fmt.Sprintf("Worker node %s", cluster.NodeID),
			"Node and service listings need a manager; run sitrep on a manager for the full Swarm view")
	}
	return pass(c.Name(), fmt.Sprintf("Manager node %s, %d %s in the cluster",
		cluster.NodeID, cluster.Nodes, util.Pluralize(cluster.Nodes, "node", "nodes")))
}

// NewDockerChecks creates the daemon and swarm checks.
func NewDockerChecks(api docker.API, connectErr error, cli *swarm.CLI, bin string) []Check {
	return []Check{
		&DockerDaemonCheck{API: api, ConnectErr: connectErr},
		&SwarmCLICheck{CLI: cli, Bin: bin},
		&SwarmMembershipCheck{CLI: cli},
	}
}
