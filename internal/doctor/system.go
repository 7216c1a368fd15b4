package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rileyhilliard/sitrep/internal/collector"
	"github.com/rileyhilliard/sitrep/internal/metrics"
	"github.com/rileyhilliard/sitrep/internal/util"
)

// dataSource is a file or binary and the part of the System view it feeds.
type dataSource struct {
	name  string
	feeds string
}

var procFiles = []dataSource{
	{"diskstats", "disk busy %"},
	{"sys/fs/file-nr", "descriptor pressure"},
	{"net/tcp", "socket census"},
	{"net/dev", "interface rates"},
	{"self/status", "context switches"},
}

// ProcfsCheck verifies the kernel files the Linux collector reads.
type ProcfsCheck struct {
	Root string
}

func (c *ProcfsCheck) Name() string     { return "procfs" }
func (c *ProcfsCheck) Category() string { return CategorySystem }

func (c *ProcfsCheck) Run(context.Context) CheckResult {
	root := c.Root
	if root == "" {
		root = collector.DefaultProcRoot
	}
	var missing []string
	for _, f := range procFiles {
		fh, err := os.Open(filepath.Join(root, f.name))
		if err != nil {
			missing = append(missing, fmt.Sprintf("%s (%s)", f.name, f.feeds))
			continue
		}
		_ = fh.Close()
	}
	switch {
	case len(missing) == len(procFiles):
		return fail(c.Name(), "Can't read "+root,
			"Is procfs mounted? In a container, run with the host's /proc mounted")
	case len(missing) > 0:
		return warn(c.Name(), "Unreadable under "+root+": "+strings.Join(missing, ", "),
			"Those readings will show as zero")
	}
	return pass(c.Name(), fmt.Sprintf("%s readable", root))
}

// darwinTools are the utilities the macOS collector shells out to.
var darwinTools = []dataSource{
	{"sysctl", "descriptor pressure"},
	{"lsof", "descriptors and sockets per process"},
	{"netstat", "socket census"},
	{"nettop", "per-process network"},
	{"ps", "context switches"},
}

// ToolsCheck verifies the command-line utilities the macOS collector runs.
type ToolsCheck struct {
	// LookPath resolves a binary; defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

func (c *ToolsCheck) Name() string     { return "collector_tools" }
func (c *ToolsCheck) Category() string { return CategorySystem }

func (c *ToolsCheck) Run(context.Context) CheckResult {
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	var found, missing []string
	for _, t := range darwinTools {
		if _, err := lookPath(t.name); err != nil {
			missing = append(missing, fmt.Sprintf("%s (%s)", t.name, t.feeds))
			continue
		}
		found = append(found, t.name)
	}
	if len(missing) > 0 {
		return warn(c.Name(), "Missing from PATH: "+strings.Join(missing, ", "),
			"Those readings will show as zero")
	}
	return pass(c.Name(), "Collector tools found: "+util.JoinOrNone(found))
}

// ProcessTableCheck samples the process table once.
type ProcessTableCheck struct {
	Host metrics.HostSource

	// Euid returns the effective user id; defaults to os.Geteuid.
	Euid func() int
}

func (c *ProcessTableCheck) Name() string     { return "process_table" }
func (c *ProcessTableCheck) Category() string { return CategorySystem }

func (c *ProcessTableCheck) Run(ctx context.Context) CheckResult {
	procs := c.Host.Processes(ctx)
	if len(procs) == 0 {
		return fail(c.Name(), "No processes visible",
			"Check sitrep can read the process table (procfs mount or sandbox restrictions)")
	}

	euid := c.Euid
	if euid == nil {
		euid = os.Geteuid
	}
	msg := fmt.Sprintf("%d %s visible, %d %s",
		len(procs), util.Pluralize(len(procs), "process", "processes"),
		c.Host.CoreCount(ctx), util.Pluralize(c.Host.CoreCount(ctx), "core", "cores"))
	if runtime.GOOS != "windows" && euid() != 0 {
		msg += " (not root: other users' disk I/O and sockets may be hidden)"
	}
	return pass(c.Name(), msg)
}

// NewSystemChecks creates the checks for the running platform.
func NewSystemChecks(goos string, host metrics.HostSource) []Check {
	checks := []Check{&ProcessTableCheck{Host: host}}
	switch goos {
	case "linux":
		checks = append(checks, &ProcfsCheck{})
	case "darwin":
		checks = append(checks, &ToolsCheck{})
	}
	return checks
}
