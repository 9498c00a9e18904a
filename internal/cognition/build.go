package cognition

import (
	"go.uber.org/zap"

	"github.com/danielpatrickdp/affect-tick/internal/action"
	"github.com/danielpatrickdp/affect-tick/internal/affect"
	"github.com/danielpatrickdp/affect-tick/internal/bus"
	"github.com/danielpatrickdp/affect-tick/internal/config"
	"github.com/danielpatrickdp/affect-tick/internal/dialogue"
	"github.com/danielpatrickdp/affect-tick/internal/memory"
	"github.com/danielpatrickdp/affect-tick/internal/oracle"
	"github.com/danielpatrickdp/affect-tick/internal/pipeline"
	"github.com/danielpatrickdp/affect-tick/internal/scheduler"
	"github.com/danielpatrickdp/affect-tick/internal/store"
)

// #region build
// Externals are the outside-world dependencies of a runtime. Any may be nil:
// without a store nothing is persisted, without an oracle every decision is
// a local fallback, and the dispatcher defaults to logging.
type Externals struct {
	Store      *store.Store
	Oracle     oracle.Client
	Dispatcher action.Dispatcher
	Bus        *bus.Bus
}

// Build assembles a runtime from cfg.
func Build(cfg config.Config, ext Externals, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b := ext.Bus
	if b == nil {
		b = bus.New()
	}

	eng, err := affect.NewEngine(cfg.Affect, log)
	if err != nil {
		return nil, err
	}
	pipe, err := pipeline.New(cfg.Personality, log)
	if err != nil {
		return nil, err
	}
	sched, err := scheduler.New(cfg.Scheduler, eng, pipe, nil, b, log)
	if err != nil {
		return nil, err
	}

	rf, err := dialogue.NewReframer(log)
	if err != nil {
		return nil, err
	}
	dopts := dialogue.Options{
		Reframer: rf,
		Stimulus: sched,
		Bus:      b,
		Snapshot: sched.Snapshot,
		Logger:   log,
	}
	mopts := memory.Options{Bus: b, Logger: log}
	var decisions DecisionLog
	if ext.Store != nil {
		dopts.AuditSink = ext.Store
		mopts.Store = ext.Store
		decisions = ext.Store
	}
	dlg, err := dialogue.New(cfg.Dialogue, cfg.Personality, dopts)
	if err != nil {
		return nil, err
	}
	mem, err := memory.New(cfg.Memory, mopts)
	if err != nil {
		return nil, err
	}

	// the watch is opened last; Run owns and closes it
	var watcher *dialogue.RulesWatcher
	if cfg.Dialogue.RulesPath != "" {
		if watcher, err = dialogue.NewRulesWatcher(cfg.Dialogue.RulesPath, rf, log); err != nil {
			return nil, err
		}
	}

	var client oracle.Client
	if ext.Oracle != nil {
		client = oracle.NewGuarded(ext.Oracle, cfg.Oracle.Guard, log)
	}
	disp := ext.Dispatcher
	if disp == nil {
		disp = action.NewLogDispatcher(log, cfg.Actions...)
	}

	return New(Components{
		Affect:           eng,
		Scheduler:        sched,
		Dialogue:         dlg,
		Memory:           mem,
		Oracle:           client,
		Router:           action.NewRouter(disp, log),
		Decisions:        decisions,
		Watcher:          watcher,
		Bus:              b,
		Logger:           log,
		BroadcastContext: cfg.BroadcastContext,
	})
}
// #endregion build
