package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/sitrep/internal/config"
	"github.com/rileyhilliard/sitrep/internal/docker"
	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/exec"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// useTestConfig points --config at a temp file holding body and sends logs
// to a temp file so command output stays clean.
func useTestConfig(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ".sitrep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	origCfg, origLog := cfgFile, logFile
	t.Cleanup(func() { cfgFile, logFile = origCfg, origLog })
	cfgFile = path
	logFile = filepath.Join(dir, "sitrep.log")
}

type fakeDocker struct {
	mu         sync.Mutex
	containers []docker.Container
	listErr    error
	actionErr  error
	calls      []string
	logs       string
	logsID     string
	logsTail   int
}

func (f *fakeDocker) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.actionErr
}

func (f *fakeDocker) Ping(context.Context) error { return nil }

func (f *fakeDocker) List(context.Context) ([]docker.Container, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]docker.Container(nil), f.containers...), nil
}

func (f *fakeDocker) CPUPercent(context.Context, string) (float64, error) { return 12.5, nil }

func (f *fakeDocker) Start(_ context.Context, id string) error   { return f.record("start " + id) }
func (f *fakeDocker) Stop(_ context.Context, id string) error    { return f.record("stop " + id) }
func (f *fakeDocker) Restart(_ context.Context, id string) error { return f.record("restart " + id) }

func (f *fakeDocker) Logs(_ context.Context, id string, tail int) (io.ReadCloser, error) {
	f.mu.Lock()
	f.logsID, f.logsTail = id, tail
	f.mu.Unlock()
	return io.NopCloser(strings.NewReader(f.logs)), nil
}

func (f *fakeDocker) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// useFakeDocker routes newDockerAPI to api for the test's duration.
func useFakeDocker(t *testing.T, api docker.API) {
	t.Helper()
	orig := newDockerAPI
	t.Cleanup(func() { newDockerAPI = orig })
	newDockerAPI = func(*config.Config) (docker.API, io.Closer, error) {
		return api, nopCloser{}, nil
	}
}

// fakeCLI answers docker CLI invocations by argument prefix. Unmatched calls
// fail like an unknown docker subcommand would.
type fakeCLI struct {
	mu        sync.Mutex
	responses map[string]string
	calls     []string
}

func newFakeCLI(responses map[string]string) *fakeCLI {
	return &fakeCLI{responses: responses}
}

func (f *fakeCLI) runner() exec.Runner {
	return exec.FuncRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		cmd := strings.Join(args, " ")
		f.mu.Lock()
		f.calls = append(f.calls, cmd)
		f.mu.Unlock()

		best := ""
		for prefix := range f.responses {
			if strings.HasPrefix(cmd, prefix) && len(prefix) > len(best) {
				best = prefix
			}
		}
		if best == "" {
			return nil, &errors.ExitError{Code: 1, Stderr: "unexpected call: " + cmd}
		}
		return []byte(f.responses[best]), nil
	})
}

func (f *fakeCLI) called(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// useFakeCLI routes newRunner to cli for the test's duration.
func useFakeCLI(t *testing.T, cli *fakeCLI) {
	t.Helper()
	orig := newRunner
	t.Cleanup(func() { newRunner = orig })
	newRunner = cli.runner
}

// swarmResponses is a healthy one-node swarm with one degraded service.
func swarmResponses() map[string]string {
	return map[string]string{
		"version":      "24.0.7",
		"info":         `{"Swarm":{"LocalNodeState":"active","NodeID":"n1","NodeAddr":"10.0.0.1","ControlAvailable":true,"Managers":1,"Nodes":1}}`,
		"node ls":      `{"ID":"n1","Hostname":"alpha","Status":"Ready","Availability":"Active","ManagerStatus":"Leader","EngineVersion":"24.0.7","Self":true}`,
		"node inspect": "n1 10.0.0.1\n",
		"service ls": `{"ID":"s1aaaaaaaaaa","Name":"shop_web","Replicas":"2/3","Mode":"replicated","Image":"nginx:1.25"}
{"ID":"s2bbbbbbbbbb","Name":"lonely","Replicas":"1/1","Mode":"replicated","Image":"redis:7"}`,
		"service inspect": "s1aaaaaaaaaa111 shop\ns2bbbbbbbbbb222 <no value>\n",
		"service ps s1aaaaaaaaaa": `{"ID":"t1","Name":"shop_web.1","Node":"alpha","DesiredState":"Running","CurrentState":"Running 1 hour ago"}
{"ID":"t2","Name":"shop_web.2","Node":"alpha","DesiredState":"Shutdown","CurrentState":"Failed 2 minutes ago","Error":"task: non-zero exit (137)"}`,
		"service update --force": "s1aaaaaaaaaa\n",
		"service scale":          "s1aaaaaaaaaa scaled\n",
	}
}
