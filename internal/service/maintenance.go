package service

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"settingsvc/internal/store"
	"settingsvc/internal/store/findchain"
	"settingsvc/internal/taskengine"
)

// maintenanceSweeper runs the low-priority periodic sweep (spec §4.4.6):
// purge volatile entries for any app the uninstall-event path missed, and
// log description-cache size metrics. It is itself dispatched as an
// ordinary internal mutating task so it still serializes against
// concurrent writers rather than racing them.
type maintenanceSweeper struct {
	svc  *Service
	spec string
	log  *slog.Logger
	c    *cron.Cron
}

func newMaintenanceSweeper(svc *Service, spec string, log *slog.Logger) *maintenanceSweeper {
	if spec == "" {
		spec = "@every 1m"
	}
	return &maintenanceSweeper{svc: svc, spec: spec, log: log}
}

func (m *maintenanceSweeper) Start(ctx context.Context) {
	m.c = cron.New()
	_, err := m.c.AddFunc(m.spec, func() { m.sweep(ctx) })
	if err != nil {
		m.log.Error("service: invalid maintenance cron spec, sweep disabled", "spec", m.spec, "error", err)
		return
	}
	m.c.Start()
}

func (m *maintenanceSweeper) Stop() {
	if m.c != nil {
		m.c.Stop()
	}
}

// sweep is dispatched through the task engine as a mutating task (§4.3.4
// style internal method) so it observes the writer-quiesce discipline the
// same as any client-originated write.
func (m *maintenanceSweeper) sweep(ctx context.Context) {
	_, err := m.svc.engine.Submit(true, "maintenance-sweep", func(taskCtx context.Context, _ *taskengine.Task) error {
		m.runSweep(taskCtx)
		return nil
	})
	if err != nil {
		m.log.Error("service: maintenance sweep failed to enqueue", "error", err)
	}
}

// runSweep purges volatile entries for any app that no longer owns a
// single store record (belt-and-suspenders for the uninstall-event path,
// spec §4.3.4/§4.4.6), and logs description-cache size metrics.
func (m *maintenanceSweeper) runSweep(ctx context.Context) {
	for _, appID := range m.svc.volatile.AppIDs() {
		installed, err := m.appStillInstalled(ctx, appID)
		if err != nil {
			m.log.Error("service: maintenance sweep failed checking app", "app_id", appID, "error", err)
			continue
		}
		if !installed {
			m.svc.volatile.PurgeApp(appID)
			m.log.Info("service: maintenance sweep purged orphaned volatile entries", "app_id", appID)
		}
	}

	known := m.svc.model.KnownKeys()
	m.log.Debug("maintenance sweep", "known_keys", len(known))
}

// appStillInstalled reports whether the store still holds at least one
// record owned by appID, following every page of the result via
// findchain so a large per-app record set can't hide a stale app behind
// its first page.
func (m *maintenanceSweeper) appStillInstalled(ctx context.Context, appID string) (bool, error) {
	found := false
	err := findchain.ForEach(ctx, m.svc.store, store.Query{AppID: appID, AppScoped: true}, func(recs []store.Record) error {
		if len(recs) > 0 {
			found = true
		}
		return nil
	})
	return found, err
}
