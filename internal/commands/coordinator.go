package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-exthost/internal/adapters"
	"github.com/ctagard/dap-exthost/internal/breakpoints"
	"github.com/ctagard/dap-exthost/internal/config"
	"github.com/ctagard/dap-exthost/internal/contributions"
	"github.com/ctagard/dap-exthost/internal/event"
	"github.com/ctagard/dap-exthost/internal/exthost"
	"github.com/ctagard/dap-exthost/internal/launchconfig"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/internal/sign"
	"github.com/ctagard/dap-exthost/internal/tracker/luatracker"
	"github.com/ctagard/dap-exthost/internal/workbench"
	"github.com/ctagard/dap-exthost/pkg/types"
)

const clientID = "dap-exthost"

// coordinator is the extension host and the in-process workbench wired
// together with everything the configuration asks for.
type coordinator struct {
	log       logr.Logger
	folders   *workbench.Folders
	launch    *launchconfig.Provider
	wb        *workbench.Workbench
	host      *exthost.Service
	factories []*adapters.ServerFactory
	persister *breakpoints.Persister

	disposables []*exthost.Disposable
	subs        []*event.Subscription
	stopWatch   context.CancelFunc
}

func newCoordinator(ctx context.Context, cfg *config.Config, log logr.Logger) (*coordinator, error) {
	c := &coordinator{log: log.WithName("coordinator")}
	if err := c.build(ctx, cfg, log); err != nil {
		c.Close(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *coordinator) build(ctx context.Context, cfg *config.Config, log logr.Logger) error {
	c.folders = workbench.NewFolders(cfg.Workspace)
	c.launch = launchconfig.NewProvider(cfg.LaunchJSON, log)

	contribs := contributions.NewRegistry(log, adapters.BuiltinContribution(cfg.Adapters))
	if cfg.Contributions != "" {
		if err := contribs.Load(cfg.Contributions); err != nil {
			return fmt.Errorf("failed to load contributions: %w", err)
		}
		if cfg.WatchContributions {
			watchCtx, cancel := context.WithCancel(ctx)
			c.stopWatch = cancel
			if err := contribs.Watch(watchCtx, cfg.Contributions); err != nil {
				return fmt.Errorf("failed to watch contributions: %w", err)
			}
		}
	}

	c.wb = workbench.New(workbench.Options{
		MaxSessions: cfg.MaxSessions,
		ClientID:    clientID,
		ClientName:  "dap-exthost",
		Log:         log,
	})
	opts := exthost.Options{
		MainThread:     c.wb,
		Contributions:  contribs,
		Folders:        c.folders,
		Variables:      c.launch,
		TrackerTimeout: time.Duration(cfg.TrackerTimeout),
		Log:            log,
	}
	if cfg.IsWorker() {
		c.host = exthost.NewWorkerService(opts)
	} else {
		if cfg.SigningKey != "" {
			opts.Signer = sign.NewHMAC(cfg.SigningKey)
		}
		c.host = exthost.NewService(opts)
	}
	c.wb.Attach(c.host)

	c.disposables = append(c.disposables,
		c.host.RegisterDebugConfigurationProvider("*", c.launch.ConfigurationProvider(), types.TriggerInitial))

	// built-in server adapters are spawned processes, which workers cannot run
	if !cfg.IsWorker() {
		if err := c.registerBuiltinFactories(cfg.Adapters, log); err != nil {
			return err
		}
	}

	for _, script := range cfg.LuaTrackers {
		f, err := luatracker.Load(script, log)
		if err != nil {
			return err
		}
		c.disposables = append(c.disposables, c.host.RegisterDebugAdapterTrackerFactory(f.DebugType(), f))
	}

	if cfg.BreakpointDB != "" {
		p, err := breakpoints.OpenPersister(cfg.BreakpointDB, log)
		if err != nil {
			return err
		}
		c.persister = p
		if err := c.persister.Restore(ctx, c.host.Breakpoints()); err != nil {
			return fmt.Errorf("failed to restore breakpoints: %w", err)
		}
		c.subs = append(c.subs, c.persister.Attach(c.host.Breakpoints()))
	}

	return nil
}

func (c *coordinator) registerBuiltinFactories(cfg config.AdapterConfigs, log logr.Logger) error {
	c.factories = adapters.BuiltinFactories(cfg, log)
	for _, f := range c.factories {
		d, err := c.host.RegisterDebugAdapterDescriptorFactory(adapters.BuiltinExtensionID, f.DebugType(), f)
		if err != nil {
			return err
		}
		c.disposables = append(c.disposables, d)
	}
	c.subs = append(c.subs, c.host.OnDidTerminateDebugSession(func(s *session.Session) {
		for _, f := range c.factories {
			f.Release(s.ID())
		}
	}))
	return nil
}

// Close stops every session and adapter and releases what newCoordinator
// acquired. It tolerates a partially built coordinator.
func (c *coordinator) Close(ctx context.Context) {
	if c.wb != nil {
		for _, info := range c.wb.Sessions() {
			_ = c.wb.StopDebugging(ctx, info.ID)
		}
	}
	if c.host != nil {
		c.host.Close(ctx)
	}
	for _, f := range c.factories {
		f.Close()
	}
	for _, sub := range c.subs {
		sub.Dispose()
	}
	for _, d := range c.disposables {
		d.Dispose()
	}
	if c.stopWatch != nil {
		c.stopWatch()
	}
	if c.persister != nil {
		if err := c.persister.Close(); err != nil {
			c.log.Error(err, "failed to close the breakpoint database")
		}
	}
}
