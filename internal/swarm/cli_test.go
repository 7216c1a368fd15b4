package swarm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/exec"
)

// fakeDocker answers docker CLI invocations from a table keyed by the
// space-joined arguments. Keys ending in "*" match by prefix.
type fakeDocker struct {
	mu       sync.Mutex
	outputs  map[string]string
	failures map[string]error
	calls    []string
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{outputs: map[string]string{}, failures: map[string]error{}}
}

func (f *fakeDocker) runner() exec.Runner {
	return exec.FuncRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		key := strings.Join(args, " ")
		f.mu.Lock()
		f.calls = append(f.calls, name+" "+key)
		f.mu.Unlock()
		if err, ok := f.lookupErr(key); ok {
			return nil, err
		}
		if out, ok := f.lookup(key); ok {
			return []byte(out), nil
		}
		return nil, &errors.ExitError{Code: 1, Stderr: "unexpected call: " + key}
	})
}

func (f *fakeDocker) lookup(key string) (string, bool) {
	if out, ok := f.outputs[key]; ok {
		return out, true
	}
	for k, out := range f.outputs {
		if strings.HasSuffix(k, "*") && strings.HasPrefix(key, strings.TrimSuffix(k, "*")) {
			return out, true
		}
	}
	return "", false
}

func (f *fakeDocker) lookupErr(key string) (error, bool) {
	for k, err := range f.failures {
		if k == key || (strings.HasSuffix(k, "*") && strings.HasPrefix(key, strings.TrimSuffix(k, "*"))) {
			return err, true
		}
	}
	return nil, false
}

func (f *fakeDocker) called(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

const infoActive = `{"ID":"x","Swarm":{"LocalNodeState":"active","NodeID":"node1","NodeAddr":"10.0.0.1","ControlAvailable":true,"Managers":1,"Nodes":5}}`

func TestCLI_Detect(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    *ClusterInfo
		wantErr bool
	}{
		{
			name: "active",
			out:  infoActive,
			want: &ClusterInfo{NodeID: "node1", NodeAddr: "10.0.0.1", IsManager: true, Managers: 1, Nodes: 5},
		},
		{name: "inactive", out: `{"Swarm":{"LocalNodeState":"inactive"}}`},
		{name: "no swarm section", out: `{"ID":"x"}`},
		{name: "garbage", out: `not json`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeDocker()
			f.outputs["info --format {{json .}}"] = tt.out
			cli := NewCLI(f.runner(), "", nil)

			got, err := cli.Detect(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCLI_Nodes(t *testing.T) {
	f := newFakeDocker()
	f.outputs["node ls --format {{json .}}"] = `{"ID":"n1","Hostname":"alpha","Status":"Ready","Availability":"Active","ManagerStatus":"Leader","EngineVersion":"24.0","Self":true}
{"ID":"n2","Hostname":"beta","Status":"Down","Availability":"Drain","ManagerStatus":"","EngineVersion":"24.0","Self":false}
this line is broken

`
	f.outputs["node inspect --format {{.ID}} {{.Status.Addr}} n1 n2"] = "n1 10.0.0.1\nn2 \n"
	cli := NewCLI(f.runner(), "docker", nil)

	nodes, err := cli.Nodes(context.Background())

	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "alpha", nodes[0].Hostname)
	assert.True(t, nodes[0].Self)
	assert.Equal(t, "Leader", nodes[0].ManagerStatus)
	assert.Equal(t, "10.0.0.1", nodes[0].IPAddress)
	assert.Empty(t, nodes[1].IPAddress)
}

func TestCLI_NodesInspectFailureKeepsNodes(t *testing.T) {
	f := newFakeDocker()
	f.outputs["node ls --format {{json .}}"] = `{"ID":"n1","Hostname":"alpha"}`
	f.failures["node inspect*"] = &errors.ExitError{Code: 1, Stderr: "denied"}
	cli := NewCLI(f.runner(), "docker", nil)

	nodes, err := cli.Nodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Empty(t, nodes[0].IPAddress)
}

func TestCLI_Services(t *testing.T) {
	f := newFakeDocker()
	f.outputs["service ls --format {{json .}}"] = `{"ID":"abcdef123456","Name":"shop_web","Mode":"replicated","Replicas":"2/3","Image":"nginx","Ports":"*:80->80/tcp"}
{"ID":"0123456789ab","Name":"standalone","Mode":"global","Replicas":"1/1","Image":"redis","Ports":""}
{"ID":"short","Name":"tiny","Replicas":"1/1"}`
	f.outputs[`service inspect*`] = "abcdef123456fffffffffffffff shop\n0123456789abeeeeeeeeeeeeee <no value>\nshortxxxxxxxxxxxxxxxxx other\n"
	cli := NewCLI(f.runner(), "docker", nil)

	services, err := cli.Services(context.Background())

	require.NoError(t, err)
	require.Len(t, services, 3)
	assert.Equal(t, "shop", services[0].Stack)
	assert.Empty(t, services[1].Stack, "<no value> means no stack")
	assert.Empty(t, services[2].Stack, "ids shorter than 10 characters are never prefix-matched")
}

func TestCLI_ServicesErrors(t *testing.T) {
	f := newFakeDocker()
	f.failures["service ls*"] = &errors.ExitError{Code: 1, Stderr: "This node is not a swarm manager."}
	cli := NewCLI(f.runner(), "docker", nil)

	_, err := cli.Services(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSwarm))
	assert.Equal(t, "docker service ls failed: exit code 1: This node is not a swarm manager.", errors.OneLine(err))
	code, ok := errors.GetExitCode(err)
	assert.True(t, ok)
	assert.Equal(t, 1, code)
}

func TestCLI_Tasks(t *testing.T) {
	f := newFakeDocker()
	f.outputs["service ps --format {{json .}} --filter desired-state=running s1 s2"] = `{"ID":"t1","Name":"shop_web.1","Node":"alpha","DesiredState":"Running","CurrentState":"Running 2 hours ago"}`
	f.outputs["service ps s1 --format {{json .}} --no-trunc"] = `{"ID":"t1full","Name":"shop_web.1","Error":""}
{"ID":"t2full","Name":"shop_web.2","Error":"task: non-zero exit (1)"}`
	cli := NewCLI(f.runner(), "docker", nil)

	running, err := cli.RunningTasks(context.Background(), []string{"s1", "s2"})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "alpha", running[0].Node)

	none, err := cli.RunningTasks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := cli.ServiceTasks(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "task: non-zero exit (1)", all[1].Error)
}

func TestCLI_Mutations(t *testing.T) {
	f := newFakeDocker()
	f.outputs["service update --force svc1"] = "svc1\n"
	f.outputs["service scale svc1=4"] = "svc1 scaled to 4\n"
	cli := NewCLI(f.runner(), "docker", nil)

	require.NoError(t, cli.ForceUpdate(context.Background(), "svc1"))
	require.NoError(t, cli.Scale(context.Background(), "svc1", 4))
	assert.True(t, f.called("docker service update --force svc1"))
	assert.True(t, f.called("docker service scale svc1=4"))
}

func TestCLI_Available(t *testing.T) {
	f := newFakeDocker()
	cli := NewCLI(f.runner(), "docker", nil)
	assert.False(t, cli.Available(context.Background()))

	f.outputs["version"] = "Docker version 24.0"
	assert.True(t, cli.Available(context.Background()))
}

func TestCLI_LogSource(t *testing.T) {
	cli := NewCLI(newFakeDocker().runner(), "docker", nil)
	src := cli.LogSource("svc1", 200)
	assert.Equal(t, "docker", src.Name)
	assert.Equal(t, []string{"service", "logs", "--follow", "--tail", "200", "--timestamps", "svc1"}, src.Args)
}

func TestMatchStackLabels(t *testing.T) {
	services := []Service{{ID: "aaaaaaaaaa"}, {ID: "aaaaaaaaab"}}
	out := []byte(fmt.Sprintf("%s one\n%s two\nmalformed\n", "aaaaaaaaaa0000", "aaaaaaaaab1111"))

	got := matchStackLabels(services, out)

	assert.Equal(t, map[string]string{"aaaaaaaaaa": "one", "aaaaaaaaab": "two"}, got)
}
