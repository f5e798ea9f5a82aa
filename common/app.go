package common

import (
	"sync"

	"github.com/nimbusline/platform-core/common/mlog"
)

// App represents a long-running process registered with a Launcher —
// typically an outbox dispatcher, a consumer runtime worker pool, or the
// health/metrics HTTP surface of an example service.
type App interface {
	Run(launcher *Launcher) error
}

// LauncherOption defines a function option for Launcher.
type LauncherOption func(l *Launcher)

// WithLogger adds a mlog.Logger component to launcher.
func WithLogger(logger mlog.Logger) LauncherOption {
	return func(l *Launcher) {
		l.Logger = logger
	}
}

// RunApp registers app under name with the launcher.
func RunApp(name string, app App) LauncherOption {
	return func(l *Launcher) {
		l.Add(name, app)
	}
}

// Launcher runs a fixed set of Apps concurrently and blocks until all of
// them return.
type Launcher struct {
	Logger  mlog.Logger
	apps    map[string]App
	wg      *sync.WaitGroup
	Verbose bool
}

// Add registers an App under appName.
func (l *Launcher) Add(appName string, a App) *Launcher {
	l.apps[appName] = a
	return l
}

// Run starts every registered App in its own goroutine and waits for all
// of them to finish.
func (l *Launcher) Run() {
	count := len(l.apps)
	l.wg.Add(count)

	l.Logger.Infof("Starting %d app(s)\n", count)

	for name, app := range l.apps {
		go func(name string, app App) {
			defer l.wg.Done()

			l.Logger.Infof("Launcher: app %q starting", name)

			if err := app.Run(l); err != nil {
				l.Logger.Errorf("Launcher: app %q error: %v", name, err)
			}

			l.Logger.Infof("Launcher: app %q finished", name)
		}(name, app)
	}

	l.wg.Wait()

	l.Logger.Info("Launcher: terminated")
}

// NewLauncher creates a Launcher, applying every LauncherOption in order.
func NewLauncher(opts ...LauncherOption) *Launcher {
	l := &Launcher{
		apps:    make(map[string]App),
		wg:      new(sync.WaitGroup),
		Verbose: true,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}
