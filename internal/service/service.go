// Package service assembles every collaborator package into the single
// process-scoped object the teacher's bootstrap layer would call a "service":
// description model, resolver, task engine, notification engine, and bus
// transport, wired the way spec §9's design note describes ("a process-
// scoped service object owning one of each collaborator").
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"settingsvc/internal/bus"
	"settingsvc/internal/bus/wsbus"
	"settingsvc/internal/config"
	"settingsvc/internal/derivedfile"
	"settingsvc/internal/descmodel"
	"settingsvc/internal/descmodel/condition"
	"settingsvc/internal/descmodel/diskstore"
	"settingsvc/internal/errs"
	"settingsvc/internal/notify"
	"settingsvc/internal/resolver"
	"settingsvc/internal/store/sqlstore"
	"settingsvc/internal/taskengine"
	"settingsvc/pkg/dimensionformat"
	"settingsvc/pkg/exceptionlist"
)

// Service owns every long-lived collaborator and the single bus-request
// dispatch loop (spec §5 "one request-worker thread").
type Service struct {
	cfg config.Config
	log *slog.Logger

	db       *sqlstore.DB
	store    *sqlstore.Store
	model    *descmodel.Model
	volatile *resolver.VolatileMap
	resolver *resolver.Resolver

	engine *taskengine.Engine
	reg    *notify.Registry
	emit   *notify.Emitter
	bus    bus.Bus

	derived *derivedfile.Writer

	maintenance *maintenanceSweeper
}

// New wires every collaborator from cfg: opens the sqlite pool, loads the
// on-disk description artifacts, constructs the resolver, the goqite-backed
// task engine, the subscription registry/emitter, the websocket bus, and
// the derived-file writer. New starts no goroutines: Start launches the task
// engine worker and the maintenance sweep, and Run is the dispatch loop.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sqlstore.Open(ctx, log, cfg.DataDir, cfg.DBFileName)
	if err != nil {
		return nil, fmt.Errorf("service: open store: %w", err)
	}

	exceptions, err := loadExceptions(cfg.ExceptionFile)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("service: load exceptions: %w", err)
	}
	dims, err := loadDimensionFormat(cfg.DimensionFile)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("service: load dimension format: %w", err)
	}

	base, err := diskstore.Load(filepath.Join(cfg.DescriptionDir, "description.bson"))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("service: load base descriptions: %w", err)
	}
	override, err := diskstore.Load(filepath.Join(cfg.DescriptionDir, "override.bson"))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("service: load override descriptions: %w", err)
	}

	categoryDims := map[string][]string{}
	for _, cat := range base.Categories() {
		if d, ok := dims.DimensionOf(cat); ok {
			categoryDims[cat] = d
		}
	}

	model := descmodel.New(descmodel.Config{
		Base:         base,
		Override:     override,
		CategoryDims: categoryDims,
		Exceptions:   exceptions,
		Scorer:       condition.DefaultScorer{},
	})

	st := sqlstore.New(db)
	volatile := resolver.NewVolatileMap()
	cat := errs.NewCatalog(cfg.Locale)
	res := resolver.New(st, model, volatile, exceptions, cat, log)

	engine, err := taskengine.New(db.SQLWriteDB(), log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("service: new task engine: %w", err)
	}

	derived, err := derivedfile.New(cfg.DescriptionDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("service: new derived-file writer: %w", err)
	}

	reg := notify.NewRegistry()
	hub := wsbus.New(log)
	hub.OnDisconnect = reg.Unsubscribe

	fetch := func(fctx context.Context, category, appID string, keys []string) (map[string]any, error) {
		result, ferr := res.Get(fctx, resolver.GetRequest{Category: category, AppID: appID, Keys: keys})
		if ferr != nil {
			return nil, ferr
		}
		return result.Settings, nil
	}
	emit := notify.NewEmitter(reg, hub, engine, fetch, derived, log)

	svc := &Service{
		cfg:      cfg,
		log:      log,
		db:       db,
		store:    st,
		model:    model,
		volatile: volatile,
		resolver: res,
		engine:   engine,
		reg:      reg,
		emit:     emit,
		bus:      hub,
		derived:  derived,
	}
	svc.maintenance = newMaintenanceSweeper(svc, cfg.MaintenanceCron, log)
	return svc, nil
}

func loadExceptions(path string) (*exceptionlist.List, error) {
	if path == "" || !config.FileExists(path) {
		return exceptionlist.Empty(), nil
	}
	return exceptionlist.Load(path)
}

func loadDimensionFormat(path string) (*dimensionformat.Table, error) {
	if path == "" || !config.FileExists(path) {
		return dimensionformat.Empty(), nil
	}
	return dimensionformat.Load(path)
}

// Hub exposes the wsbus listener for main.go to mount on an HTTP server.
func (s *Service) Hub() *wsbus.Hub {
	return s.bus.(*wsbus.Hub)
}

// Start launches the task engine worker and the maintenance sweep. Call
// once, before serving bus traffic.
func (s *Service) Start(ctx context.Context) {
	s.engine.Start(ctx)
	s.maintenance.Start(ctx)
}

// Stop stops the maintenance cron, drains the task engine, and closes the
// sqlite pool, in that order (spec §5 "process teardown: worker thread
// drains and joins").
func (s *Service) Stop() error {
	s.maintenance.Stop()
	s.engine.Stop()
	return s.db.Close()
}
