package swarm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseReplicas parses "current/desired". ok is false for anything else.
func ParseReplicas(s string) (current, desired int, ok bool) {
	cur, des, found := strings.Cut(s, "/")
	if !found {
		return 0, 0, false
	}
	c, err := strconv.Atoi(strings.TrimSpace(cur))
	if err != nil {
		return 0, 0, false
	}
	d, err := strconv.Atoi(strings.TrimSpace(des))
	if err != nil {
		return 0, 0, false
	}
	return c, d, true
}

// IsDegraded reports whether fewer replicas run than desired. Malformed
// strings are never degraded.
func IsDegraded(replicas string) bool {
	c, d, ok := ParseReplicas(replicas)
	return ok && d > 0 && c < d
}

// BuildStacks groups services by stack name: named stacks alphabetically,
// then NoStack.
func BuildStacks(services []Service) []Stack {
	byName := make(map[string][]int)
	for i, s := range services {
		name := s.Stack
		if name == "" {
			name = NoStack
		}
		byName[name] = append(byName[name], i)
	}

	stacks := make([]Stack, 0, len(byName))
	for name, idx := range byName {
		stacks = append(stacks, Stack{Name: name, Services: idx})
	}
	sort.Slice(stacks, func(i, j int) bool {
		a, b := stacks[i].Name, stacks[j].Name
		if a == NoStack || b == NoStack {
			return b == NoStack && a != NoStack
		}
		return a < b
	})
	return stacks
}

// GroupTasks assigns tasks to services by name. Task names look like
// "stack_service.1"; the trailing ".N" is the slot.
func GroupTasks(tasks []Task, services []Service) map[string][]Task {
	idByName := make(map[string]string, len(services))
	for _, s := range services {
		idByName[s.Name] = s.ID
	}
	grouped := make(map[string][]Task)
	for _, t := range tasks {
		name := t.Name
		if dot := strings.LastIndex(name, "."); dot >= 0 {
			name = name[:dot]
		}
		if id, ok := idByName[name]; ok {
			grouped[id] = append(grouped[id], t)
		}
	}
	return grouped
}

// Warnings summarizes cluster health problems worth surfacing.
func Warnings(cliAvailable bool, cluster *ClusterInfo, nodes []Node, services []Service) []string {
	if !cliAvailable {
		return []string{"docker CLI not found in PATH, swarm data unavailable"}
	}

	var warnings []string
	var down, drained []string
	for _, n := range nodes {
		if strings.Contains(strings.ToLower(n.Status), "down") {
			down = append(down, n.Hostname)
		}
		if strings.Contains(strings.ToLower(n.Availability), "drain") {
			drained = append(drained, n.Hostname)
		}
	}
	if len(down) > 0 {
		warnings = append(warnings, fmt.Sprintf("NODE DOWN: %d node(s) unreachable: %s",
			len(down), strings.Join(down, ", ")))
	}
	if len(drained) > 0 {
		warnings = append(warnings, fmt.Sprintf("DRAINED: %d node(s) in drain mode: %s",
			len(drained), strings.Join(drained, ", ")))
	}

	for _, s := range services {
		if c, d, ok := ParseReplicas(s.Replicas); ok && d > 0 && c < d {
			warnings = append(warnings, fmt.Sprintf("SERVICE DEGRADED: %s has %d/%d replicas", s.Name, c, d))
		}
	}

	if cluster != nil && cluster.Managers < 3 && cluster.Nodes > 3 {
		warnings = append(warnings, fmt.Sprintf("LOW MANAGERS: Only %d manager(s) for %d nodes (recommend 3+)",
			cluster.Managers, cluster.Nodes))
	}
	return warnings
}
