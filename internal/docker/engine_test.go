package docker

import (
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/network"
	"github.com/stretchr/testify/assert"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{-time.Second, "0s"},
		{45 * time.Second, "45s"},
		{59 * time.Second, "59s"},
		{60 * time.Second, "1m"},
		{12*time.Minute + 30*time.Second, "12m"},
		{3*time.Hour + 4*time.Minute, "3h 4m"},
		{2*24*time.Hour + 5*time.Hour + 10*time.Minute, "2d 5h"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUptime(tt.in))
		})
	}
}

func TestFormatPorts(t *testing.T) {
	ports := []types.Port{
		{IP: "0.0.0.0", PrivatePort: 80, PublicPort: 8080, Type: "tcp"},
		{PrivatePort: 5432, Type: "tcp"},
		{PrivatePort: 53, Type: "udp"},
		{PrivatePort: 9000},
	}
	assert.Equal(t, "0.0.0.0:8080->80/tcp, 5432/tcp, 53/udp, 9000/tcp", FormatPorts(ports))
	assert.Empty(t, FormatPorts(nil))
}

func TestCPUPercent(t *testing.T) {
	sample := func(total, prevTotal, sys, prevSys uint64, cpus uint32) statsSample {
		var s statsSample
		s.CPUStats.CPUUsage.TotalUsage = total
		s.PreCPUStats.CPUUsage.TotalUsage = prevTotal
		s.CPUStats.SystemUsage = sys
		s.PreCPUStats.SystemUsage = prevSys
		s.CPUStats.OnlineCPUs = cpus
		return s
	}

	tests := []struct {
		name string
		in   statsSample
		want float64
	}{
		{"quarter of four cpus", sample(200, 100, 1400, 1000, 4), 100},
		{"single cpu default", sample(150, 100, 1100, 1000, 0), 50},
		{"no system delta", sample(200, 100, 1000, 1000, 2), 0},
		{"no cpu delta", sample(100, 100, 2000, 1000, 2), 0},
		{"first sample has no precpu", sample(100, 0, 0, 0, 2), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cpuPercent(tt.in), 0.0001)
		})
	}
}

func TestFromSummary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := types.Container{
		ID:      "0123456789abcdef0123",
		Names:   []string{"/web"},
		Image:   "nginx:1.25",
		State:   "running",
		Status:  "Up 2 hours",
		Created: now.Add(-(2*time.Hour + 5*time.Minute)).Unix(),
		Ports:   []types.Port{{IP: "0.0.0.0", PrivatePort: 80, PublicPort: 8080, Type: "tcp"}},
		NetworkSettings: &types.SummaryNetworkSettings{
			Networks: map[string]*network.EndpointSettings{
				"zeta":   {IPAddress: "10.0.9.2"},
				"alpha":  {IPAddress: ""},
				"bridge": {IPAddress: "172.17.0.2"},
			},
		},
	}

	c := fromSummary(s, now)

	assert.Equal(t, "0123456789ab", c.ID)
	assert.Equal(t, "web", c.Name)
	assert.Equal(t, "nginx:1.25", c.Image)
	assert.Equal(t, "running", c.State)
	assert.Equal(t, "2h 5m", c.Uptime)
	assert.Equal(t, "0.0.0.0:8080->80/tcp", c.Ports)
	assert.Equal(t, "172.17.0.2", c.IPAddress, "first network with an address, by name")
}

func TestFromSummary_Sparse(t *testing.T) {
	c := fromSummary(types.Container{ID: "abc"}, time.Now())
	assert.Equal(t, "abc", c.ID)
	assert.Equal(t, "abc", c.Name, "falls back to the short id")
	assert.Equal(t, "unknown", c.Uptime)
	assert.Empty(t, c.IPAddress)
}
