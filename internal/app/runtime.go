package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"eatup/internal/bus"
	"eatup/internal/chat"
	"eatup/internal/config"
	"eatup/internal/domain"
	"eatup/internal/events"
	"eatup/internal/history"
	"eatup/internal/logging"
	"eatup/internal/notifications"
	"eatup/internal/notify"
	"eatup/internal/persistence"
	"eatup/internal/transport"
)

// Runtime owns the signed-in session: config, cache, the group store, the
// shared notification watcher, and the factory for per-group chat sessions.
type Runtime struct {
	mu sync.RWMutex

	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig
	Token  string

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	DB         *sql.DB

	GroupRepo   *persistence.GroupRepo
	MessageRepo *persistence.MessageRepo
	WriterQueue *persistence.WriterQueue

	GroupStore *domain.GroupStore
	History    *history.Client

	Watcher       *notify.Watcher
	Notifications *NotificationService
}

func Initialize(parent context.Context) (*Runtime, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
		Token:  config.Token(),
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		cancel()

		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Info("starting eatup runtime", "version", VersionString(), "user", cfg.User.Email)
	if rt.Token == "" {
		slog.Warn("no session token in environment, staying offline", "env", config.TokenEnvVar)
	}

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b

	groupStore := domain.NewGroupStore()
	rt.GroupStore = groupStore

	if cfg.Cache.Enabled {
		dbFile := cfg.Cache.Path
		if dbFile == "" {
			dbFile = paths.DBFile
		}
		db, err := persistence.Open(ctx, dbFile)
		if err != nil {
			_ = rt.Close()

			return nil, err
		}
		rt.DB = db
		rt.GroupRepo = persistence.NewGroupRepo(db)
		rt.MessageRepo = persistence.NewMessageRepo(db)

		if err := domain.LoadGroupStoreFromCache(ctx, groupStore, rt.GroupRepo); err != nil {
			slog.Warn("seed group store from cache", "error", err)
		}

		writerQueue := persistence.NewWriterQueue(logMgr.Logger("persistence"), 512)
		writerQueue.Start(ctx)
		rt.WriterQueue = writerQueue
		domain.StartPersistenceProjection(ctx, b, writerQueue, rt.GroupRepo, rt.MessageRepo)
	}

	groupStore.Start(ctx, b, events.TopicUnread, events.TopicGroupsChanged)

	rt.History = history.NewClient(cfg.Server.BaseURL, rt.Token, logMgr.Logger("history"))

	sender := notifications.Sender(notifications.Discard{})
	if cfg.Notifications.Enabled {
		sender = notifications.NewBeeepSender(Name, logMgr.Logger("notifications"))
	}
	rt.Notifications = NewNotificationService(b, groupStore, rt.CurrentConfig, sender, logMgr.Logger("app.notifications"))
	rt.Notifications.Start(ctx)

	if rt.Token != "" {
		watcherBroker := transport.NewClient(transport.Options{
			URL:     cfg.Server.WebsocketURL,
			Token:   rt.Token,
			Session: "notifications",
			Logger:  logMgr.Logger("transport"),
			Bus:     b,
		})
		rt.Watcher = notify.NewWatcher(notify.Config{
			UserID: cfg.User.ID,
			Broker: watcherBroker,
			Bus:    b,
			Logger: logMgr.Logger("notify"),
		})
	}

	return rt, nil
}

// Start brings the online side up: fetches the group list, starts the
// watcher, and keeps the store in sync. Offline (tokenless) runtimes serve
// the cache only.
func (r *Runtime) Start(ctx context.Context) error {
	groups, err := r.History.FetchGroups(ctx, r.Config.User.Email)
	if err != nil {
		slog.Warn("fetch groups failed, serving cached list", "error", err)
		groups = r.GroupStore.ListSorted()
	} else {
		r.GroupStore.Load(groups)
		r.Bus.Publish(events.TopicGroupsChanged, groups)
	}

	if r.Watcher != nil {
		r.Watcher.Start(r.Ctx, groups)
	}

	return nil
}

// RefreshGroups re-fetches the group list and resyncs the watcher without
// touching its connection.
func (r *Runtime) RefreshGroups(ctx context.Context) error {
	groups, err := r.History.FetchGroups(ctx, r.Config.User.Email)
	if err != nil {
		return err
	}

	r.GroupStore.Load(groups)
	r.Bus.Publish(events.TopicGroupsChanged, groups)
	if r.Watcher != nil {
		r.Watcher.Resync(groups)
	}

	return nil
}

// CreateGroup creates a group, invites the listed members, and refreshes the
// local list. Failed invites are reported, not fatal.
func (r *Runtime) CreateGroup(ctx context.Context, name string, memberEmails []string) (domain.Group, []string, error) {
	group, failed, err := r.History.CreateGroup(ctx, name, memberEmails, r.Config.User.Email)
	if err != nil {
		return domain.Group{}, nil, err
	}

	if refreshErr := r.RefreshGroups(ctx); refreshErr != nil {
		slog.Warn("refresh groups after create", "error", refreshErr)
		r.GroupStore.Upsert(group)
	}

	return group, failed, nil
}

// OpenChat builds a realtime session for one group. Each open chat owns its
// connection; Close on the session releases it. The group's unread counter
// clears because opening the chat joins the group server-side. Without a
// token the session stays read-only: the broker refuses to connect and the
// history loader serves the cached snapshot.
func (r *Runtime) OpenChat(group domain.Group) (*chat.Session, error) {
	cfg := r.CurrentConfig()
	broker := transport.NewClient(transport.Options{
		URL:     cfg.Server.WebsocketURL,
		Token:   r.Token,
		Session: "chat:" + group.Name,
		Logger:  r.LogManager.Logger("transport"),
		Bus:     r.Bus,
	})

	session := chat.NewSession(chat.Config{
		Group:     group,
		UserEmail: cfg.User.Email,
		Broker:    broker,
		History:   r.historyLoader(),
		Bus:       r.Bus,
		Logger:    r.LogManager.Logger("chat"),
	})
	r.resetMissed(group.ID)

	return session, nil
}

// historyLoader wraps the REST client with the sqlite fallback when the
// cache is enabled.
func (r *Runtime) historyLoader() chat.HistoryLoader {
	if r.MessageRepo == nil {
		return r.History
	}

	return &cacheBackedHistory{
		remote: r.History,
		cache:  r.MessageRepo,
		limit:  RecentMessagesLoad,
		logger: r.LogManager.Logger("app.history"),
	}
}

// resetMissed clears a group's unread counter in the store and in the
// cache. The cached counter is grow-only on the upsert path, so without the
// explicit reset a cleared badge would come back on the next restart.
func (r *Runtime) resetMissed(groupID string) {
	r.GroupStore.ResetMissed(groupID)
	if r.WriterQueue == nil || r.GroupRepo == nil {
		return
	}
	r.WriterQueue.Enqueue("reset_missed", func(writeCtx context.Context) error {
		return r.GroupRepo.ResetMissed(writeCtx, groupID)
	})
}

func (r *Runtime) CurrentConfig() config.AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.Config
}

func (r *Runtime) SaveAndApplyConfig(cfg config.AppConfig) error {
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if err := config.Save(r.Paths.ConfigFile, cfg); err != nil {
		r.mu.Unlock()

		return err
	}
	r.Config = cfg
	r.mu.Unlock()

	return r.LogManager.Configure(cfg.Logging, r.Paths.LogFile)
}

// ClearCache wipes the local sqlite cache, e.g. on logout.
func (r *Runtime) ClearCache(ctx context.Context) error {
	if r.DB == nil {
		return fmt.Errorf("cache is not enabled")
	}
	if err := persistence.ClearDatabase(ctx, r.DB); err != nil {
		return err
	}
	r.GroupStore.Load(nil)
	slog.Info("local cache cleared")

	return nil
}

func (r *Runtime) Close() error {
	if r.Watcher != nil {
		r.Watcher.Close()
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}

	return nil
}
