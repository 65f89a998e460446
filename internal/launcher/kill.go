package launcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// KillResult reports what Kill did.
type KillResult struct {
	ShutdownAccepted bool
	Terminated       []int32
}

// Stopped reports whether any daemon was found to stop.
func (r KillResult) Stopped() bool {
	return r.ShutdownAccepted || len(r.Terminated) > 0
}

// Kill asks the daemon to shut down and then terminates any daemon process
// still alive, including ones listening on another port.
func (l *Launcher) Kill(ctx context.Context) (KillResult, error) {
	var res KillResult
	if err := l.client.Shutdown(ctx); err == nil {
		res.ShutdownAccepted = true
		sleep(ctx, l.settle)
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return res, err
	}
	self := int32(os.Getpid())
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil || !isDaemonProcess(args) {
			continue
		}
		if err := p.TerminateWithContext(ctx); err != nil {
			log.Printf("terminate daemon pid %d: %v", p.Pid, err)
			continue
		}
		res.Terminated = append(res.Terminated, p.Pid)
	}
	return res, nil
}

// isDaemonProcess matches "sp daemon" and "plate-spinner ... daemon"
// command lines.
func isDaemonProcess(args []string) bool {
	if len(args) < 2 {
		return false
	}
	exe := filepath.Base(args[0])
	if exe != "sp" && !strings.HasPrefix(exe, "plate-spinner") {
		return false
	}
	return slices.Contains(args[1:], "daemon")
}
