// Package swarm reads and mutates a Docker Swarm cluster through the docker
// CLI, and pairs that with a background action executor and a service log
// tailer for the dashboard.
package swarm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/exec"
	"github.com/rileyhilliard/sitrep/internal/logger"
	"github.com/rileyhilliard/sitrep/internal/logstream"
)

const (
	stackLabelFormat = `{{.ID}} {{index .Spec.Labels "com.docker.stack.namespace"}}`
	noValue          = "<no value>"

	// minPrefixMatch is the shortest service id matched by prefix against
	// the full ids `service inspect` prints.
	minPrefixMatch = 10
)

// CLI wraps the docker binary.
type CLI struct {
	runner exec.Runner
	bin    string
	log    logger.Logger
}

// NewCLI returns a CLI that runs bin (usually "docker") through runner.
func NewCLI(runner exec.Runner, bin string, log logger.Logger) *CLI {
	if bin == "" {
		bin = "docker"
	}
	if log == nil {
		log = logger.Noop()
	}
	return &CLI{runner: runner, bin: bin, log: log}
}

func (c *CLI) run(ctx context.Context, args ...string) ([]byte, error) {
	out, err := c.runner.Run(ctx, c.bin, args...)
	if err != nil {
		what := c.bin
		if len(args) > 0 {
			what += " " + args[0]
		}
		if len(args) > 1 && !strings.HasPrefix(args[1], "-") {
			what += " " + args[1]
		}
		return out, errors.WrapWithCode(err, errors.ErrSwarm, what+" failed", "")
	}
	return out, nil
}

// Available reports whether the docker CLI runs at all.
func (c *CLI) Available(ctx context.Context) bool {
	_, err := c.runner.Run(ctx, c.bin, "version")
	return err == nil
}

type dockerInfo struct {
	Swarm *struct {
		LocalNodeState   string
		NodeID           string
		NodeAddr         string
		ControlAvailable bool
		Managers         int
		Nodes            int
	}
}

// Detect returns cluster info when the local node is an active swarm
// member, and nil otherwise.
func (c *CLI) Detect(ctx context.Context) (*ClusterInfo, error) {
	out, err := c.run(ctx, "info", "--format", "{{json .}}")
	if err != nil {
		return nil, err
	}
	var info dockerInfo
	if err := json.Unmarshal(bytes.TrimSpace(out), &info); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSwarm, "Couldn't parse docker info", "")
	}
	if info.Swarm == nil || info.Swarm.LocalNodeState != "active" {
		return nil, nil
	}
	return &ClusterInfo{
		NodeID:    info.Swarm.NodeID,
		NodeAddr:  info.Swarm.NodeAddr,
		IsManager: info.Swarm.ControlAvailable,
		Managers:  info.Swarm.Managers,
		Nodes:     info.Swarm.Nodes,
	}, nil
}

// Nodes lists cluster nodes with their addresses.
func (c *CLI) Nodes(ctx context.Context) ([]Node, error) {
	out, err := c.run(ctx, "node", "ls", "--format", "{{json .}}")
	if err != nil {
		return nil, err
	}
	nodes := decodeLines[Node](out, c.log)

	ips := c.nodeIPs(ctx, nodes)
	for i := range nodes {
		nodes[i].IPAddress = ips[nodes[i].ID]
	}
	return nodes, nil
}

// nodeIPs inspects every node in one call. Failures leave addresses empty.
func (c *CLI) nodeIPs(ctx context.Context, nodes []Node) map[string]string {
	ips := make(map[string]string, len(nodes))
	if len(nodes) == 0 {
		return ips
	}
	args := []string{"node", "inspect", "--format", "{{.ID}} {{.Status.Addr}}"}
	for _, n := range nodes {
		args = append(args, n.ID)
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		c.log.Debug("node inspect: %v", err)
		return ips
	}
	for _, line := range splitLines(out) {
		id, ip, ok := strings.Cut(line, " ")
		if ip = strings.TrimSpace(ip); ok && ip != "" {
			ips[id] = ip
		}
	}
	return ips
}

// Services lists services with their stack labels.
func (c *CLI) Services(ctx context.Context) ([]Service, error) {
	out, err := c.run(ctx, "service", "ls", "--format", "{{json .}}")
	if err != nil {
		return nil, err
	}
	services := decodeLines[Service](out, c.log)
	if len(services) == 0 {
		return services, nil
	}

	args := []string{"service", "inspect", "--format", stackLabelFormat}
	for _, s := range services {
		args = append(args, s.ID)
	}
	labels, err := c.run(ctx, args...)
	if err != nil {
		c.log.Debug("service inspect: %v", err)
		return services, nil
	}
	stacks := matchStackLabels(services, labels)
	for i := range services {
		services[i].Stack = stacks[services[i].ID]
	}
	return services, nil
}

// matchStackLabels maps short service ids to stack names. inspect prints
// full ids, so each line is matched by prefix against ids long enough to be
// unambiguous.
func matchStackLabels(services []Service, out []byte) map[string]string {
	result := make(map[string]string, len(services))
	for _, line := range splitLines(out) {
		fullID, label, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		if label == noValue {
			label = ""
		}
		for _, s := range services {
			if len(s.ID) >= minPrefixMatch && strings.HasPrefix(fullID, s.ID) {
				result[s.ID] = label
				break
			}
		}
	}
	return result
}

// RunningTasks lists tasks meant to be running for the given services.
func (c *CLI) RunningTasks(ctx context.Context, serviceIDs []string) ([]Task, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}
	args := append([]string{"service", "ps", "--format", "{{json .}}", "--filter", "desired-state=running"}, serviceIDs...)
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return decodeLines[Task](out, c.log), nil
}

// ServiceTasks lists every task of one service with untruncated fields.
func (c *CLI) ServiceTasks(ctx context.Context, serviceID string) ([]Task, error) {
	out, err := c.run(ctx, "service", "ps", serviceID, "--format", "{{json .}}", "--no-trunc")
	if err != nil {
		return nil, err
	}
	return decodeLines[Task](out, c.log), nil
}

// ForceUpdate triggers a rolling restart of every replica.
func (c *CLI) ForceUpdate(ctx context.Context, serviceID string) error {
	_, err := c.run(ctx, "service", "update", "--force", serviceID)
	return err
}

// Scale sets a service's replica count.
func (c *CLI) Scale(ctx context.Context, serviceID string, replicas int) error {
	_, err := c.run(ctx, "service", "scale", fmt.Sprintf("%s=%d", serviceID, replicas))
	return err
}

// LogSource follows a service's logs, starting tail lines back.
func (c *CLI) LogSource(serviceID string, tail int) *logstream.ProcessSource {
	return logstream.NewProcessSource(c.bin,
		"service", "logs", "--follow", "--tail", fmt.Sprintf("%d", tail), "--timestamps", serviceID)
}

// decodeLines parses one JSON object per line, skipping lines that don't parse.
func decodeLines[T any](out []byte, log logger.Logger) []T {
	var items []T
	for _, line := range splitLines(out) {
		var item T
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			log.Debug("skipping malformed line %q: %v", line, err)
			continue
		}
		items = append(items, item)
	}
	return items
}

func splitLines(out []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
