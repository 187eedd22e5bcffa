// cmd/runtime.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mitchellh/go-homedir"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/browser/cdp"
	"github.com/xkilldash9x/locus/internal/browser/dom"
	"github.com/xkilldash9x/locus/internal/browser/memory"
	"github.com/xkilldash9x/locus/internal/config"
	"github.com/xkilldash9x/locus/internal/engine"
	"github.com/xkilldash9x/locus/internal/store"
)

// maxDocumentSize caps documents fetched over HTTP for memory pages.
const maxDocumentSize = 32 << 20

// pooledPostgres closes the pool it owns along with the store.
type pooledPostgres struct {
	*store.Postgres
	pool *pgxpool.Pool
}

func (p *pooledPostgres) Close() error {
	p.pool.Close()
	return nil
}

// openStore connects the configured key-value backend.
func (a *app) openStore(ctx context.Context) (store.KV, error) {
	sc := a.cfg.StoreCfg
	connectCtx, cancel := context.WithTimeout(ctx, sc.ConnectTimeout)
	defer cancel()

	switch sc.Backend {
	case config.StoreMemory:
		return store.NewMemory(), nil
	case config.StoreSQLite:
		kv, err := store.OpenSQLite(connectCtx, sc.Path, a.logger)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Using SQLite store.", zap.String("path", sc.Path))
		return kv, nil
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, sc.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		if err := pool.Ping(connectCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		pg := store.NewPostgres(pool, a.logger)
		if err := pg.Migrate(connectCtx); err != nil {
			pool.Close()
			return nil, err
		}
		a.logger.Info("Using Postgres store.")
		return &pooledPostgres{Postgres: pg, pool: pool}, nil
	}
	return nil, fmt.Errorf("unsupported store backend %q", sc.Backend)
}

// pageHandle is a page plus its teardown.
type pageHandle struct {
	browser.Page
	close func()
}

// openPage loads target, a URL or a local file, into the configured page implementation.
func (a *app) openPage(ctx context.Context, target string) (*pageHandle, error) {
	rawURL, err := targetURL(target)
	if err != nil {
		return nil, err
	}
	bc := a.cfg.BrowserCfg

	switch bc.Mode {
	case config.BrowserCDP:
		// The launch context owns the browser process, so only navigation is time-boxed.
		p, err := cdp.Launch(ctx, cdp.Config{Headless: bc.Headless, Args: bc.Args, PollInterval: bc.PollInterval}, "", a.logger)
		if err != nil {
			return nil, err
		}
		navCtx, cancel := context.WithTimeout(ctx, bc.NavigationTimeout)
		defer cancel()
		if err := p.Navigate(navCtx, rawURL); err != nil {
			p.Close()
			return nil, err
		}
		return &pageHandle{Page: p, close: p.Close}, nil

	default:
		fetchCtx, cancel := context.WithTimeout(ctx, bc.NavigationTimeout)
		defer cancel()
		markup, err := fetchDocument(fetchCtx, target, rawURL)
		if err != nil {
			return nil, err
		}
		doc, err := dom.ParseString(markup, rawURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", target, err)
		}
		if bc.Viewport.Width > 0 && bc.Viewport.Height > 0 {
			doc.Viewport = dom.Viewport{Width: bc.Viewport.Width, Height: bc.Viewport.Height}
		}
		p := memory.NewPageFromDocument(doc, a.logger)
		a.logger.Info("Loaded document.", zap.String("url", rawURL), zap.Int("bytes", len(markup)))
		return &pageHandle{Page: p, close: p.Close}, nil
	}
}

func isRemote(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

func targetURL(target string) (string, error) {
	if isRemote(target) || strings.HasPrefix(target, "file://") {
		return target, nil
	}
	path, err := homedir.Expand(target)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", target, err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func fetchDocument(ctx context.Context, target, rawURL string) (string, error) {
	if !isRemote(target) {
		path := strings.TrimPrefix(rawURL, "file://")
		raw, err := os.ReadFile(filepath.FromSlash(path))
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", target, err)
		}
		return string(raw), nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("failed to fetch %s: %s", rawURL, resp.Status)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rawURL, err)
	}
	return string(raw), nil
}

// session is an engine bound to one page and one store.
type session struct {
	engine   *engine.Engine
	registry *prometheus.Registry
	page     *pageHandle
	kv       store.KV
	logger   *zap.Logger
}

func (a *app) engineConfig() engine.Config {
	c := a.cfg
	return engine.Config{
		Scanner:     c.ScannerCfg,
		Recovery:    c.RecoveryCfg,
		Executor:    c.ExecutorCfg,
		Humanoid:    c.HumanoidCfg,
		FormState:   c.FormStateCfg,
		Telemetry:   c.TelemetryCfg,
		Profile:     c.EngineCfg.Profile,
		AutoCapture: c.EngineCfg.AutoCapture,
	}
}

// openSession opens the store and the page and wires an engine over them.
func (a *app) openSession(ctx context.Context, target string) (*session, error) {
	kv, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	page, err := a.openPage(ctx, target)
	if err != nil {
		kv.Close()
		return nil, err
	}
	registry := prometheus.NewRegistry()
	eng, err := engine.New(a.engineConfig(), engine.Deps{
		Page:       page,
		KV:         kv,
		Registerer: registry,
		Logger:     a.logger,
	})
	if err != nil {
		page.close()
		kv.Close()
		return nil, err
	}
	s := &session{engine: eng, registry: registry, page: page, kv: kv, logger: a.logger}
	if err := a.seedProfiles(ctx, s); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (a *app) seedProfiles(ctx context.Context, s *session) error {
	path := a.cfg.EngineCfg.ProfileSeed
	if path == "" {
		return nil
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open profile seed: %w", err)
	}
	defer f.Close()
	n, err := s.engine.Profiles().Seed(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to seed profiles from %s: %w", path, err)
	}
	a.logger.Info("Seeded profiles.", zap.String("path", path), zap.Int("count", n))
	return nil
}

// Close stops the engine, then releases the page and the store.
func (s *session) Close() {
	s.engine.Close()
	s.page.close()
	if err := s.kv.Close(); err != nil {
		s.logger.Warn("Failed to close store.", zap.Error(err))
	}
}
