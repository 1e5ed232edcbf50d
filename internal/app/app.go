// Package app wires the configuration, stores, session and HTTP
// surface into one runnable unit.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"wabot/internal/config"
	"wabot/internal/dispatch"
	"wabot/internal/httpapi"
	"wabot/internal/media"
	"wabot/internal/schedule"
	"wabot/internal/session"
	"wabot/internal/store/contacts"
	"wabot/internal/store/settings"
	logx "wabot/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store    contacts.Store
	settings *settings.Store
	media    *media.Locator

	session *session.Manager
	disp    *dispatch.Dispatcher
	sched   *schedule.Service
	http    *httpapi.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	dataDir := cfg.Data.Dir
	for _, d := range []string{dataDir, filepath.Join(dataDir, "message"), filepath.Join(dataDir, "assets")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir %s: %w", d, err)
		}
	}

	busyTimeout, err := config.ParseDurationOrDefault("data.contacts.busy_timeout", cfg.Data.Contacts.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	contactsPath := cfg.Data.Contacts.Path
	if contactsPath == "" {
		switch strings.ToLower(cfg.Data.Contacts.Driver) {
		case "sqlite", "sqlite3":
			contactsPath = filepath.Join(dataDir, "contacts.db")
		default:
			contactsPath = filepath.Join(dataDir, "contacts.csv")
		}
	}
	store, err := contacts.Open(contacts.Config{
		Driver:      cfg.Data.Contacts.Driver,
		Path:        contactsPath,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "contacts")))
	if err != nil {
		return nil, err
	}

	set := settings.New(filepath.Join(dataDir, "message", "message.json"), log.With(logx.String("comp", "settings")))
	if err := set.Init(); err != nil {
		store.Close()
		return nil, err
	}
	loc := media.NewLocator(filepath.Join(dataDir, "assets"), log.With(logx.String("comp", "media")))

	connectTimeout, err := config.ParseDurationOrDefault("session.connect_timeout", cfg.Session.ConnectTimeout, 60*time.Second)
	if err != nil {
		store.Close()
		return nil, err
	}
	storePath := cfg.Session.StorePath
	if storePath == "" {
		storePath = filepath.Join(dataDir, "session.db")
	}
	sess := session.NewManager(session.Config{
		StorePath:      storePath,
		ConnectTimeout: connectTimeout,
	}, log.With(logx.String("comp", "session")))

	sendDelay, err := config.ParseDurationOrDefault("dispatch.send_delay", cfg.Dispatch.SendDelay, 2*time.Second)
	if err != nil {
		store.Close()
		return nil, err
	}
	disp := dispatch.New(dispatch.Config{
		CountryCode: cfg.Session.CountryCode,
		ChatSuffix:  cfg.Session.ChatSuffix,
		SendDelay:   sendDelay,
	}, store, set, loc, sess, log.With(logx.String("comp", "dispatch")))

	sched := schedule.New(schedule.Config{
		Enabled:  cfg.Schedule.Enabled,
		Spec:     cfg.Schedule.Spec,
		UseImage: cfg.Schedule.UseImage,
		Timezone: cfg.Schedule.Timezone,
	}, disp, log.With(logx.String("comp", "schedule")))

	handlers := httpapi.NewHandlers(sess, disp, store, set, loc, log.With(logx.String("comp", "http")))

	readTimeout, err := config.ParseDurationOrDefault("server.read_timeout", cfg.Server.ReadTimeout, 30*time.Second)
	if err != nil {
		store.Close()
		return nil, err
	}
	writeTimeout, err := config.ParseDurationOrDefault("server.write_timeout", cfg.Server.WriteTimeout, 2*time.Minute)
	if err != nil {
		store.Close()
		return nil, err
	}
	idleTimeout, err := config.ParseDurationOrDefault("server.idle_timeout", cfg.Server.IdleTimeout, time.Minute)
	if err != nil {
		store.Close()
		return nil, err
	}
	srv := httpapi.NewServer(httpapi.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}, handlers, log.With(logx.String("comp", "http")))

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		store:    store,
		settings: set,
		media:    loc,
		session:  sess,
		disp:     disp,
		sched:    sched,
		http:     srv,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		for path, raw := range map[string]string{
			"server.read_timeout":        cfg.Server.ReadTimeout,
			"server.write_timeout":       cfg.Server.WriteTimeout,
			"server.idle_timeout":        cfg.Server.IdleTimeout,
			"data.contacts.busy_timeout": cfg.Data.Contacts.BusyTimeout,
			"session.connect_timeout":    cfg.Session.ConnectTimeout,
			"dispatch.send_delay":        cfg.Dispatch.SendDelay,
		} {
			if _, err := config.ParseDurationField(path, raw); err != nil {
				return err
			}
		}
		if cfg.Schedule.Enabled {
			if _, err := schedule.NormalizeSpec(cfg.Schedule.Spec); err != nil {
				return err
			}
		}
		if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
			}
		}
		return nil
	})

	if err := a.http.Start(runCtx); err != nil {
		cancel()
		return err
	}
	if err := a.sched.Start(runCtx); err != nil {
		a.http.Stop(context.Background())
		cancel()
		return err
	}

	// Hot-reload: the logging sinks follow the config file; everything
	// else requires a restart.
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.log.Info("config reloaded")
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}

	a.sched.Stop()
	a.http.Stop(ctx)

	a.session.Disconnect()

	done := make(chan struct{})
	go func() { a.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("contact store close", logx.Err(err))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
}
