package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/logstream"
	"github.com/rileyhilliard/sitrep/internal/swarm"
)

func resetSwarmFlags(t *testing.T) {
	t.Helper()
	out, yes, tail, filter := swarmOutput, swarmYes, swarmTail, swarmFilter
	t.Cleanup(func() {
		swarmOutput, swarmYes, swarmTail, swarmFilter = out, yes, tail, filter
	})
	swarmOutput.Format = OutputText
}

func setupSwarm(t *testing.T, responses map[string]string) *fakeCLI {
	t.Helper()
	useTestConfig(t, "interval: 1s\n")
	resetSwarmFlags(t)
	cli := newFakeCLI(responses)
	useFakeCLI(t, cli)
	return cli
}

func TestSwarmStatus_Active(t *testing.T) {
	setupSwarm(t, swarmResponses())

	var buf bytes.Buffer
	require.NoError(t, swarmStatusCommand(context.Background(), &buf))

	out := buf.String()
	assert.Contains(t, out, "Swarm: active")
	assert.Contains(t, out, "n1 (manager) at 10.0.0.1")
	assert.Contains(t, out, "1 manager, 1 node")
	assert.Contains(t, out, "2 in 2 stacks")
	assert.Contains(t, out, "SERVICE DEGRADED: shop_web has 2/3 replicas")
}

func TestSwarmStatus_Standalone(t *testing.T) {
	responses := swarmResponses()
	responses["info"] = `{"Swarm":{"LocalNodeState":"inactive"}}`
	setupSwarm(t, responses)

	var buf bytes.Buffer
	require.NoError(t, swarmStatusCommand(context.Background(), &buf))
	assert.Contains(t, buf.String(), "Swarm: inactive")
}

func TestSwarmStatus_JSON(t *testing.T) {
	setupSwarm(t, swarmResponses())
	swarmOutput.Format = OutputJSON

	var buf bytes.Buffer
	require.NoError(t, swarmStatusCommand(context.Background(), &buf))

	var env struct {
		Success bool        `json:"success"`
		Data    swarm.State `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.True(t, env.Success)
	assert.True(t, env.Data.CLIAvailable)
	require.NotNil(t, env.Data.Cluster)
	assert.Equal(t, "n1", env.Data.Cluster.NodeID)
	assert.Len(t, env.Data.Services, 2)
}

func TestSwarmNodes_RequiresSwarm(t *testing.T) {
	t.Run("no docker CLI", func(t *testing.T) {
		setupSwarm(t, map[string]string{})
		err := swarmNodesCommand(context.Background(), &bytes.Buffer{})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrSwarm))
		assert.Contains(t, err.Error(), "docker CLI isn't available")
	})

	t.Run("standalone node", func(t *testing.T) {
		responses := swarmResponses()
		responses["info"] = `{"Swarm":{"LocalNodeState":"inactive"}}`
		setupSwarm(t, responses)
		err := swarmNodesCommand(context.Background(), &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "isn't part of an active swarm")
	})
}

func TestSwarmNodes(t *testing.T) {
	setupSwarm(t, swarmResponses())

	var buf bytes.Buffer
	require.NoError(t, swarmNodesCommand(context.Background(), &buf))
	out := buf.String()
	assert.Contains(t, out, "HOSTNAME")
	assert.Contains(t, out, "alpha *")
	assert.Contains(t, out, "Leader")
	assert.Contains(t, out, "10.0.0.1")
}

func TestSwarmServices(t *testing.T) {
	setupSwarm(t, swarmResponses())

	var buf bytes.Buffer
	require.NoError(t, swarmServicesCommand(context.Background(), &buf))
	out := buf.String()
	assert.Contains(t, out, "shop")
	assert.Contains(t, out, "2/3 degraded")
	assert.Contains(t, out, swarm.NoStack)
	assert.Contains(t, out, "redis:7")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("shop_web")), bytes.Index(buf.Bytes(), []byte("lonely")),
		"named stacks come before unstacked services")
}

func TestSwarmTasks(t *testing.T) {
	setupSwarm(t, swarmResponses())

	var buf bytes.Buffer
	require.NoError(t, swarmTasksCommand(context.Background(), &buf, "shop_web"))
	out := buf.String()
	assert.Contains(t, out, "shop_web.1")
	assert.Contains(t, out, "Failed 2 minutes ago")
	assert.Contains(t, out, "task: non-zero exit (137)")
}

func TestSwarmTasks_UnknownService(t *testing.T) {
	setupSwarm(t, swarmResponses())

	err := swarmTasksCommand(context.Background(), &bytes.Buffer{}, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `No service matches "nope"`)
}

func TestFindService(t *testing.T) {
	services := []swarm.Service{
		{ID: "s1aaaaaaaaaa", Name: "shop_web"},
		{ID: "s1bbbbbbbbbb", Name: "shop_api"},
		{ID: "s2cccccccccc", Name: "lonely"},
	}

	tests := []struct {
		ref     string
		want    string
		wantErr string
	}{
		{"shop_api", "s1bbbbbbbbbb", ""},
		{"s2cccccccccc", "s2cccccccccc", ""},
		{"s1a", "s1aaaaaaaaaa", ""},
		{"s1", "", "matches 2 services"},
		{"zzz", "", "No service matches"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := findService(services, tt.ref)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestSwarmRestart(t *testing.T) {
	cli := setupSwarm(t, swarmResponses())
	swarmYes = true

	var buf bytes.Buffer
	require.NoError(t, swarmRestartCommand(context.Background(), &buf, "shop_web"))
	assert.True(t, cli.called("service update --force s1aaaaaaaaaa"))
	assert.Contains(t, buf.String(), "Rolling restart initiated for shop_web")
}

func TestSwarmRestart_RefusedWithoutTerminal(t *testing.T) {
	cli := setupSwarm(t, swarmResponses())
	stubConfirm(t, false, true, nil)

	err := swarmRestartCommand(context.Background(), &bytes.Buffer{}, "shop_web")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Refusing to restart shop_web")
	assert.False(t, cli.called("service update"))
}

func TestSwarmScale(t *testing.T) {
	t.Run("scaling up needs no confirmation", func(t *testing.T) {
		cli := setupSwarm(t, swarmResponses())
		stubConfirm(t, false, false, nil)

		var buf bytes.Buffer
		require.NoError(t, swarmScaleCommand(context.Background(), &buf, "shop_web", "5"))
		assert.True(t, cli.called("service scale s1aaaaaaaaaa=5"))
		assert.Contains(t, buf.String(), "Scaled shop_web to 5 replicas")
	})

	t.Run("scaling down asks first", func(t *testing.T) {
		cli := setupSwarm(t, swarmResponses())
		titles := stubConfirm(t, true, false, nil)

		var buf bytes.Buffer
		require.NoError(t, swarmScaleCommand(context.Background(), &buf, "shop_web", "1"))
		assert.Equal(t, []string{"Scale shop_web to 1?"}, *titles)
		assert.Contains(t, buf.String(), "Cancelled.")
		assert.False(t, cli.called("service scale"))
	})

	t.Run("scaling down with yes", func(t *testing.T) {
		cli := setupSwarm(t, swarmResponses())
		swarmYes = true

		require.NoError(t, swarmScaleCommand(context.Background(), &bytes.Buffer{}, "shop_web", "0"))
		assert.True(t, cli.called("service scale s1aaaaaaaaaa=0"))
	})

	t.Run("invalid count", func(t *testing.T) {
		setupSwarm(t, swarmResponses())
		for _, arg := range []string{"-1", "three"} {
			err := swarmScaleCommand(context.Background(), &bytes.Buffer{}, "shop_web", arg)
			require.Error(t, err, arg)
			assert.Contains(t, err.Error(), "isn't a valid replica count")
		}
	})
}

func TestSwarmLogs(t *testing.T) {
	setupSwarm(t, swarmResponses())
	swarmFilter = LogFilter{Grep: "timeout"}

	var gotID string
	var gotTail int
	orig := newServiceLogSource
	t.Cleanup(func() { newServiceLogSource = orig })
	newServiceLogSource = func(_ *swarm.CLI, serviceID string, tail int) logstream.Source {
		gotID, gotTail = serviceID, tail
		return logstream.SourceFunc(func(_ context.Context, emit logstream.Emit) error {
			for _, line := range []string{"shop_web.1 | ok", "shop_web.2 | upstream Timeout", "shop_web.1 | ok"} {
				if !emit(line) {
					return nil
				}
			}
			return nil
		})
	}

	var buf bytes.Buffer
	require.NoError(t, swarmLogsCommand(context.Background(), &buf, "shop_web"))
	assert.Equal(t, "shop_web.2 | upstream Timeout\n", buf.String())
	assert.Equal(t, "s1aaaaaaaaaa", gotID)
	assert.Equal(t, 200, gotTail)
}
