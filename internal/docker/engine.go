// Package docker talks to the local container daemon: listing running
// containers with their CPU usage, start/stop/restart, and log tailing.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/rileyhilliard/sitrep/internal/errors"
)

// DefaultTail is how many historical lines a log stream starts with.
const DefaultTail = 200

// Container is a running container as shown in the dashboard.
type Container struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Image      string  `json:"image" yaml:"image"`
	State      string  `json:"state" yaml:"state"`
	Status     string  `json:"status" yaml:"status"`
	Uptime     string  `json:"uptime" yaml:"uptime"`
	CPUPercent float64 `json:"cpu_percent" yaml:"cpu_percent"`
	Ports      string  `json:"ports" yaml:"ports"`
	IPAddress  string  `json:"ip_address" yaml:"ip_address"`
}

// API is the subset of the daemon the monitor needs.
type API interface {
	Ping(ctx context.Context) error
	List(ctx context.Context) ([]Container, error)
	CPUPercent(ctx context.Context, id string) (float64, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error

	// Logs follows a container's combined stdout and stderr as plain text.
	Logs(ctx context.Context, id string, tail int) (io.ReadCloser, error)
}

// Engine implements API with the Docker Engine SDK.
type Engine struct {
	cli         *client.Client
	stopTimeout time.Duration
	now         func() time.Time
}

// NewEngine connects using DOCKER_HOST and friends, or host when set.
// stopTimeout is the grace period for stop and restart.
func NewEngine(host string, stopTimeout time.Duration) (*Engine, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrDocker,
			"Couldn't create a Docker client",
			"Check DOCKER_HOST or docker.host in your config")
	}
	return &Engine{cli: cli, stopTimeout: stopTimeout, now: time.Now}, nil
}

// Close releases the client's connections.
func (e *Engine) Close() error {
	return e.cli.Close()
}

// Ping checks the daemon is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if _, err := e.cli.Ping(ctx); err != nil {
		return errors.WrapWithCode(err, errors.ErrDocker,
			"Docker daemon is not reachable",
			"Start Docker or check that your user can access the socket")
	}
	return nil
}

// List returns running containers without CPU figures.
func (e *Engine) List(ctx context.Context) ([]Container, error) {
	summaries, err := e.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrDocker,
			"Couldn't list containers",
			"Check that the Docker daemon is running")
	}
	now := e.now()
	out := make([]Container, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, fromSummary(s, now))
	}
	return out, nil
}

// statsSample is the part of a stats response CPU percent needs.
type statsSample struct {
	CPUStats    cpuStats `json:"cpu_stats"`
	PreCPUStats cpuStats `json:"precpu_stats"`
}

type cpuStats struct {
	CPUUsage struct {
		TotalUsage uint64 `json:"total_usage"`
	} `json:"cpu_usage"`
	SystemUsage uint64 `json:"system_cpu_usage"`
	OnlineCPUs  uint32 `json:"online_cpus"`
}

// CPUPercent reads one stats sample for a container.
func (e *Engine) CPUPercent(ctx context.Context, id string) (float64, error) {
	resp, err := e.cli.ContainerStatsOneShot(ctx, id)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrDocker,
			fmt.Sprintf("Couldn't read stats for %s", id), "")
	}
	defer resp.Body.Close()

	var sample statsSample
	if err := json.NewDecoder(resp.Body).Decode(&sample); err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrDocker,
			fmt.Sprintf("Couldn't decode stats for %s", id), "")
	}
	return cpuPercent(sample), nil
}

// cpuPercent is the share of host CPU used between the two samples in a
// stats response, scaled by online CPUs.
func cpuPercent(s statsSample) float64 {
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(s.CPUStats.SystemUsage) - float64(s.PreCPUStats.SystemUsage)
	if cpuDelta <= 0 || sysDelta <= 0 {
		return 0
	}
	cpus := float64(s.CPUStats.OnlineCPUs)
	if cpus == 0 {
		cpus = 1
	}
	return cpuDelta / sysDelta * cpus * 100
}

// Start starts a container.
func (e *Engine) Start(ctx context.Context, id string) error {
	if err := e.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return errors.WrapWithCode(err, errors.ErrDocker, "Couldn't start "+id, "")
	}
	return nil
}

// Stop stops a container, killing it after the grace period.
func (e *Engine) Stop(ctx context.Context, id string) error {
	timeout := int(e.stopTimeout.Seconds())
	if err := e.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return errors.WrapWithCode(err, errors.ErrDocker, "Couldn't stop "+id, "")
	}
	return nil
}

// Restart restarts a container with the same grace period as Stop.
func (e *Engine) Restart(ctx context.Context, id string) error {
	timeout := int(e.stopTimeout.Seconds())
	if err := e.cli.ContainerRestart(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return errors.WrapWithCode(err, errors.ErrDocker, "Couldn't restart "+id, "")
	}
	return nil
}

// Logs follows a container's output with timestamps, starting tail lines
// back. Multiplexed streams are demultiplexed; containers with a TTY are
// passed through.
func (e *Engine) Logs(ctx context.Context, id string, tail int) (io.ReadCloser, error) {
	tty := false
	if info, err := e.cli.ContainerInspect(ctx, id); err == nil && info.Config != nil {
		tty = info.Config.Tty
	}

	rc, err := e.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Timestamps: true,
		Tail:       fmt.Sprintf("%d", tail),
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrDocker, "Couldn't open logs for "+id, "")
	}
	if tty {
		return rc, nil
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		pw.CloseWithError(err)
	}()
	return &demuxed{PipeReader: pr, src: rc}, nil
}

// demuxed closes both the pipe and the daemon stream.
type demuxed struct {
	*io.PipeReader
	src io.Closer
}

func (d *demuxed) Close() error {
	_ = d.PipeReader.Close()
	return d.src.Close()
}

func fromSummary(s types.Container, now time.Time) Container {
	short := ShortID(s.ID)
	name := short
	if len(s.Names) > 0 {
		name = strings.TrimPrefix(s.Names[0], "/")
	}
	c := Container{
		ID:     short,
		Name:   name,
		Image:  s.Image,
		State:  s.State,
		Status: s.Status,
		Uptime: "unknown",
		Ports:  FormatPorts(s.Ports),
	}
	if s.Created > 0 {
		c.Uptime = FormatUptime(now.Sub(time.Unix(s.Created, 0)))
	}
	if s.NetworkSettings != nil {
		names := make([]string, 0, len(s.NetworkSettings.Networks))
		for n := range s.NetworkSettings.Networks {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			if ep := s.NetworkSettings.Networks[n]; ep != nil && ep.IPAddress != "" {
				c.IPAddress = ep.IPAddress
				break
			}
		}
	}
	return c
}

// ShortID truncates a container id to 12 characters.
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// FormatUptime renders "45s", "12m", "3h 4m", or "2d 5h".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	default:
		return fmt.Sprintf("%dd %dh", secs/86400, (secs%86400)/3600)
	}
}

// FormatPorts renders published ports as "ip:public->private/proto" and
// unpublished ones as "private/proto".
func FormatPorts(ports []types.Port) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		proto := p.Type
		if proto == "" {
			proto = "tcp"
		}
		if p.PublicPort != 0 {
			parts = append(parts, fmt.Sprintf("%s:%d->%d/%s", p.IP, p.PublicPort, p.PrivatePort, proto))
		} else {
			parts = append(parts, fmt.Sprintf("%d/%s", p.PrivatePort, proto))
		}
	}
	return strings.Join(parts, ", ")
}
