package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/chazu/hotswap/config"
	"github.com/chazu/hotswap/journal"
	"github.com/chazu/hotswap/reload"
	"github.com/chazu/hotswap/server"
	"github.com/chazu/hotswap/telemetry"
	"github.com/chazu/hotswap/unit"
	"github.com/chazu/hotswap/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("hotswap")

// unitFile is an encoded unit found on disk.
type unitFile struct {
	path  string
	data  []byte
	name  string
	super string
}

// readUnits reads every unit under dirs. Missing directories are skipped.
func readUnits(dirs []string) ([]unitFile, error) {
	var files []unitFile
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, os.ErrNotExist) && path == dir {
					log.Warningf("unit directory %s does not exist", dir)
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, UnitExt) {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			u, err := unit.Parse(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			files = append(files, unitFile{path: path, data: data, name: u.Name, super: u.Super})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// orderUnits sorts files so that every type follows its supertype and the
// interfaces it names when they are among files.
func orderUnits(files []unitFile, deps func(unitFile) []string) ([]unitFile, error) {
	byName := make(map[string]unitFile, len(files))
	for _, f := range files {
		if _, dup := byName[f.name]; dup {
			return nil, fmt.Errorf("type %s is defined twice", f.name)
		}
		byName[f.name] = f
	}
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int)
	var out []unitFile
	var visit func(name string) error
	visit = func(name string) error {
		f, ok := byName[name]
		if !ok {
			return nil
		}
		switch state[name] {
		case visiting:
			return fmt.Errorf("type %s inherits from itself", name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range deps(f) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		out = append(out, f)
		return nil
	}
	for _, n := range names {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func unitDeps(f unitFile) []string {
	deps := []string{f.super}
	if u, err := unit.Parse(f.data); err == nil {
		deps = append(deps, u.Interfaces...)
	}
	return deps
}

// loadUnits defines the units under the configured directories in reg.
func loadUnits(reg *reload.Registry, dirs []string) (int, error) {
	files, err := readUnits(dirs)
	if err != nil {
		return 0, err
	}
	files, err = orderUnits(files, unitDeps)
	if err != nil {
		return 0, err
	}
	for _, f := range files {
		if _, err := reg.Define(f.data); err != nil {
			return 0, fmt.Errorf("%s: %w", f.path, err)
		}
		log.Debugf("loaded %s from %s", f.name, f.path)
	}
	return len(files), nil
}

func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint: cfg.Telemetry.Endpoint,
		Service:  cfg.Telemetry.Service,
		Insecure: cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warningf("telemetry shutdown: %s", err)
		}
	}()

	opts := append(cfg.RuntimeOptions(), reload.WithTracerProvider(tp))
	var srvOpts []server.Option
	if path := cfg.JournalPath(); path != "" {
		j, err := journal.Open(path)
		if err != nil {
			return err
		}
		defer j.Close()
		opts = append(opts, reload.WithListener(j))
		srvOpts = append(srvOpts, server.WithJournal(j))
	}

	machine := vm.New()
	rt := reload.NewRuntime(opts...)
	defer rt.Close()
	reg, err := rt.NewRegistry(cfg.Units.Scope, machine.Loader())
	if err != nil {
		return err
	}
	n, err := loadUnits(reg, cfg.UnitDirPaths())
	if err != nil {
		return err
	}
	log.Noticef("loaded %d units, %d reload-aware, into scope %s", n, len(reg.Types()), reg.Scope)

	srv := server.New(rt, srvOpts...)
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(cfg.Server.Addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
