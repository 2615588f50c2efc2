//go:build linux

package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/xerrors"
)

// LinuxBackend isolates an action via user+mount+pid namespaces and
// cgroups v2 for CPU/memory accounting, per §4.9's Linux row. Grounded on
// internal/build/build.go's Hermetic path: Cloneflags with
// CLONE_NEWNS|CLONE_NEWUSER|CLONE_NEWPID, UidMappings/GidMappings mapping
// the invoking user to root inside the namespace, and bind-mounting the
// declared input tree read-only.
type LinuxBackend struct {
	// CgroupRoot is the cgroup v2 mount point, typically /sys/fs/cgroup.
	CgroupRoot string
}

func NewLinuxBackend() *LinuxBackend {
	return &LinuxBackend{CgroupRoot: "/sys/fs/cgroup"}
}

func (b *LinuxBackend) Run(ctx context.Context, spec Spec) (Output, error) {
	if len(spec.Command) == 0 {
		return Output{}, xerrors.Errorf("sandbox: empty command")
	}

	root, err := ioutil.TempDir("", "forge-sandbox")
	if err != nil {
		return Output{}, xerrors.Errorf("sandbox: create root: %w", err)
	}
	defer os.RemoveAll(root)

	if err := b.stageInputs(root, spec); err != nil {
		return Output{}, err
	}

	cgroup, cleanupCgroup, err := b.newCgroup(spec)
	if err != nil {
		// cgroups v2 may be unavailable (e.g. rootless without delegation);
		// degrade to no resource limiting rather than failing the build,
		// matching distri's own "hermetic, best-effort" posture.
		cgroup = ""
	}
	if cleanupCgroup != nil {
		defer cleanupCgroup()
	}

	cmd := exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
	cmd.Dir = "/"
	cmd.Env = mapEnv(spec.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS | syscall.CLONE_NEWUSER | syscall.CLONE_NEWPID,
		UidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getuid(), Size: 1},
		},
		GidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getgid(), Size: 1},
		},
		Chroot: root,
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if suggestion := usernsError(); suggestion != "" {
			return Output{}, xerrors.Errorf("sandbox: start %v: %w (%s)", cmd.Args, err, suggestion)
		}
		return Output{}, xerrors.Errorf("sandbox: start %v: %w", cmd.Args, err)
	}

	if cgroup != "" {
		_ = joinCgroup(cgroup, cmd.Process.Pid)
	}

	stop, timedOut := watch(ctx, cmd, spec.Timeout, gracePeriod(spec))
	err = cmd.Wait()
	stop()

	out := Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: *timedOut,
	}
	if cgroup != "" {
		out.CPUTimeNs, out.MaxRSSBytes = readCgroupUsage(cgroup)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, xerrors.Errorf("sandbox: wait %v: %w", cmd.Args, err)
	}
	return out, nil
}

// stageInputs bind-mounts each declared input path read-only into root,
// mirroring build.go's mount1/mountpoint dependency-tree staging, and
// creates writable temp/output directories.
func (b *LinuxBackend) stageInputs(root string, spec Spec) error {
	for _, in := range spec.InputPaths {
		dst := filepath.Join(root, in)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return xerrors.Errorf("sandbox: stage input %s: %w", in, err)
		}
		fi, err := os.Stat(in)
		if err != nil {
			return xerrors.Errorf("sandbox: stat input %s: %w", in, err)
		}
		if fi.IsDir() {
			if err := os.MkdirAll(dst, 0755); err != nil {
				return err
			}
		} else {
			if err := ioutil.WriteFile(dst, nil, 0644); err != nil {
				return err
			}
		}
		if err := syscall.Mount(in, dst, "none", syscall.MS_BIND|syscall.MS_RDONLY, ""); err != nil {
			return xerrors.Errorf("sandbox: bind mount %s: %w", in, err)
		}
	}
	for _, p := range append(append([]string{}, spec.TempPaths...), spec.OutputPaths...) {
		if err := os.MkdirAll(filepath.Join(root, p), 0755); err != nil {
			return err
		}
	}
	return nil
}

// newCgroup creates a fresh cgroup v2 leaf for this action with CPU and
// memory limits, returning its path and a cleanup function.
func (b *LinuxBackend) newCgroup(spec Spec) (string, func(), error) {
	dir := filepath.Join(b.CgroupRoot, fmt.Sprintf("forge-%d", os.Getpid()))
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", nil, xerrors.Errorf("sandbox: create cgroup: %w", err)
	}
	if spec.MaxMemoryBytes > 0 {
		_ = ioutil.WriteFile(filepath.Join(dir, "memory.max"), []byte(strconv.FormatInt(spec.MaxMemoryBytes, 10)), 0644)
	}
	if spec.MaxCPUCores > 0 {
		quota := int64(spec.MaxCPUCores * 100000)
		_ = ioutil.WriteFile(filepath.Join(dir, "cpu.max"), []byte(fmt.Sprintf("%d 100000", quota)), 0644)
	}
	cleanup := func() {
		os.Remove(dir)
	}
	return dir, cleanup, nil
}

func joinCgroup(dir string, pid int) error {
	return ioutil.WriteFile(filepath.Join(dir, "cgroup.procs"), []byte(strconv.Itoa(pid)), 0644)
}

func readCgroupUsage(dir string) (cpuNs int64, maxRSS int64) {
	if b, err := ioutil.ReadFile(filepath.Join(dir, "cpu.stat")); err == nil {
		cpuNs = parseCPUStatUsec(b)
	}
	if b, err := ioutil.ReadFile(filepath.Join(dir, "memory.peak")); err == nil {
		maxRSS = parseInt64(b)
	}
	return cpuNs, maxRSS
}

func parseCPUStatUsec(b []byte) int64 {
	var usecs int64
	fmt.Sscanf(string(b), "usage_usec %d", &usecs)
	return usecs * 1000
}

func parseInt64(b []byte) int64 {
	n, _ := strconv.ParseInt(string(bytes.TrimSpace(b)), 10, 64)
	return n
}

// usernsError mirrors internal/build/userns.go's diagnostics for the
// common "unprivileged user namespaces disabled" failure mode.
func usernsError() string {
	var runningInDocker bool
	if b, err := ioutil.ReadFile("/proc/1/cgroup"); err == nil {
		if bytes.Contains(b, []byte("docker")) {
			runningInDocker = true
		}
	}

	var fixes []string
	if b, err := ioutil.ReadFile("/proc/sys/kernel/unprivileged_userns_clone"); err == nil {
		if val := string(bytes.TrimSpace(b)); val != "1" {
			fixes = append(fixes, "sysctl -w kernel.unprivileged_userns_clone=1")
		}
	}
	if b, err := ioutil.ReadFile("/proc/sys/user/max_user_namespaces"); err == nil {
		if val := string(bytes.TrimSpace(b)); val == "0" {
			fixes = append(fixes, "sysctl -w user.max_user_namespaces=1000")
		}
	}
	if len(fixes) == 0 {
		return ""
	}
	suggestion := ""
	for i, f := range fixes {
		if i > 0 {
			suggestion += "\n"
		}
		suggestion += f
	}
	if runningInDocker {
		return "on the Docker host (not in the container), try:\n" + suggestion
	}
	return "try:\n" + suggestion
}
