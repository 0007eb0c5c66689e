package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/blobstore"
	"github.com/creastat/assistant/capability"
	"github.com/creastat/assistant/config"
	"github.com/creastat/assistant/conversation"
	"github.com/creastat/assistant/dispatch"
	"github.com/creastat/assistant/jobpoll"
	"github.com/creastat/assistant/llm"
	"github.com/creastat/assistant/metrics"
	"github.com/creastat/assistant/providers"
	"github.com/creastat/assistant/quota"
	"github.com/creastat/assistant/server"
	"github.com/creastat/assistant/sqlitedb"
	"github.com/creastat/assistant/supabase"
)

// app holds the wired components of one process.
type app struct {
	cfg         *config.Config
	tenants     assistant.TenantStore
	manager     *blobstore.Manager
	history     *conversation.Log
	governor    *quota.Governor
	runner      *dispatch.Runner
	drive       *blobstore.DriveClient
	transcriber *providers.AssemblyAI

	closers []func() error
}

// bootstrap builds every component from cfg. Callers must Close the app.
func bootstrap(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	m := metrics.Get()

	sb, err := supabase.New(supabase.Config{
		URL:      cfg.SupabaseURL,
		APIKey:   cfg.SupabaseKey,
		CacheTTL: cfg.TenantCacheTTL,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, sb.Close)
	bucket := sb.Storage(cfg.SupabaseBucket)

	switch cfg.TenantStore {
	case "memory":
		log.Warn().Msg("Using in-memory tenant store; tenants must be seeded before use")
		a.tenants = assistant.NewMemoryTenantStore()
	default:
		a.tenants = sb
	}

	var quotaOpts []quota.StoreOption
	var convOpts []conversation.StoreOption

	if cfg.QuotaStore == "sqlite" || cfg.ConversationStore == "sqlite" {
		db, err := sqlitedb.Open(ctx, cfg.DatabasePath())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		quotaOpts = append(quotaOpts, quota.WithDB(db))
		convOpts = append(convOpts, conversation.WithDB(db))
	}

	if cfg.QuotaStore == "redis" || cfg.ConversationStore == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		quotaOpts = append(quotaOpts, quota.WithRedisClient(rdb))
		convOpts = append(convOpts, conversation.WithRedisClient(rdb))
	}
	convOpts = append(convOpts, conversation.WithObjects(bucket))

	ledger, err := quota.NewStore(ctx, quota.StoreType(cfg.QuotaStore), quotaOpts...)
	if err != nil {
		return nil, fmt.Errorf("quota store %q: %w", cfg.QuotaStore, err)
	}
	a.governor = quota.NewGovernor(ledger, quota.WithMetrics(m))

	entries, err := conversation.NewStore(ctx, conversation.StoreType(cfg.ConversationStore), convOpts...)
	if err != nil {
		return nil, fmt.Errorf("conversation store %q: %w", cfg.ConversationStore, err)
	}
	a.history = conversation.NewLog(entries, conversation.WithLocation(cfg.Location()))

	managerOpts := []blobstore.Option{
		blobstore.WithFolderName(cfg.DriveFolder),
		blobstore.WithMetrics(m),
	}
	if cfg.DriveEnabled() {
		a.drive = blobstore.NewDriveClient(blobstore.DriveConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  strings.TrimSuffix(cfg.PublicURL, "/") + "/auth/google/callback",
		})
		managerOpts = append(managerOpts, blobstore.WithDrive(a.drive))
	} else {
		log.Info().Msg("Google Drive not configured, artifacts go to Supabase Storage")
	}
	a.manager = blobstore.NewManager(a.tenants, blobstore.NewStaging(cfg.StagingDir), bucket, managerOpts...)

	gemini := llm.NewGeminiClient(llm.NewKeyPool(cfg.GeminiKeys...), llm.GeminiConfig{Model: cfg.GeminiModel})
	handlers := a.handlers(gemini, m)

	dispatcher := dispatch.New(
		dispatch.DefaultRegistry(handlers),
		a.governor,
		dispatch.WithUsageMeter(a.manager),
		dispatch.WithTraceLog(a.history),
		dispatch.WithMetrics(m),
	)
	a.runner = dispatch.NewRunner(a.tenants, llm.NewClassifier(gemini, ""), a.history, dispatcher)

	ready = true
	return a, nil
}

// handlers builds the capability set. Capabilities whose provider has no
// credentials stay nil and their intents report as unsupported.
func (a *app) handlers(gemini *llm.GeminiClient, m *metrics.Metrics) dispatch.Handlers {
	cfg := a.cfg
	poller := jobpoll.Poller{Metrics: m}
	fetch := providers.NewDownloader(&http.Client{Timeout: 2 * time.Minute})

	h := dispatch.Handlers{
		Document: capability.NewDocument(gemini, a.manager, time.Now),
		Deck:     capability.NewDeck(gemini, a.manager, time.Now),
		Study:    capability.NewStudy(gemini, a.manager, time.Now),
		Teacher:  capability.NewTeacher(gemini, a.manager, time.Now),
		Chat:     capability.NewChat(gemini, a.history, cfg.Persona),
	}

	if cfg.DeAPIKey != "" {
		h.Image = capability.NewImage(providers.NewDeAPI(providers.DeAPIConfig{APIKey: cfg.DeAPIKey, Poller: poller}), fetch, a.manager, time.Now)
	}
	if cfg.HFToken != "" {
		h.Video = capability.NewVideo(providers.NewHuggingFace(providers.HuggingFaceConfig{Token: cfg.HFToken, Poller: poller}), fetch, a.manager, time.Now)
	}
	if cfg.AssemblyAIKey != "" {
		a.transcriber = providers.NewAssemblyAI(providers.AssemblyAIConfig{APIKey: cfg.AssemblyAIKey, Poller: poller})
		h.Transcribe = capability.NewTranscribe(a.transcriber)
	}
	if cfg.YouTubeKey != "" {
		h.Music = capability.NewMusic(providers.NewYouTube("", cfg.YouTubeKey))
	}

	var missing []string
	for name, set := range map[string]bool{
		"DEAPI_API_KEY":      h.Image != nil,
		"HF_TOKEN":           h.Video != nil,
		"ASSEMBLYAI_API_KEY": h.Transcribe != nil,
		"YOUTUBE_API_KEY":    h.Music != nil,
	} {
		if !set {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		log.Warn().Strs("unset", missing).Msg("Some capabilities are disabled")
	}
	return h
}

// handler returns the HTTP surface.
func (a *app) handler() http.Handler {
	deps := server.Deps{
		Runner:      a.runner,
		History:     a.history,
		Tenants:     a.tenants,
		Quota:       a.governor,
		Files:       a.manager,
		DriveFolder: a.cfg.DriveFolder,
		FrontendURL: a.cfg.FrontendURL,
		Metrics:     promhttp.Handler(),
		StateSecret: a.cfg.StateSecret(),
	}
	if a.drive != nil {
		deps.Drive = a.drive
	}
	if a.transcriber != nil {
		deps.Transcriber = a.transcriber
	}
	return server.New(deps)
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
}
