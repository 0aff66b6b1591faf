package lockfile

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// acquired tracks lock markers created by this process so they can be
// removed when the process is interrupted. A marker left behind by an
// abrupt kill is still reclaimable because the pid inside it is dead.
var (
	acquiredMu sync.Mutex
	acquired   = make(map[string]struct{})

	installOnce sync.Once
)

func registerAcquired(dir string) {
	acquiredMu.Lock()
	defer acquiredMu.Unlock()
	acquired[dir] = struct{}{}
}

func unregisterAcquired(dir string) {
	acquiredMu.Lock()
	defer acquiredMu.Unlock()
	delete(acquired, dir)
}

// ReleaseAll removes every lock marker acquired by this process.
func ReleaseAll() {
	acquiredMu.Lock()
	dirs := make([]string, 0, len(acquired))
	for dir := range acquired {
		dirs = append(dirs, dir)
	}
	acquired = make(map[string]struct{})
	acquiredMu.Unlock()

	for _, dir := range dirs {
		_, _ = Release(dir, true)
	}
}

// InstallExitHandler arranges for locks held by this process to be released
// when it receives SIGINT or SIGTERM. Safe to call more than once.
func InstallExitHandler() {
	installOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-ch
			ReleaseAll()
			signal.Stop(ch)
			// Re-raise so the default disposition still applies.
			proc, err := os.FindProcess(os.Getpid())
			if err == nil {
				_ = proc.Signal(sig)
			}
		}()
	})
}
