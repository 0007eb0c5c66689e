// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/blobstore"
	"github.com/creastat/assistant/dispatch"
	"github.com/creastat/assistant/logging"
	"github.com/creastat/assistant/quota"
)

// maxVoiceBytes bounds voice uploads.
const maxVoiceBytes = 50 << 20

// TurnRunner runs one utterance. *dispatch.Runner implements it.
type TurnRunner interface {
	Run(ctx context.Context, slug, text string) (dispatch.TurnResult, error)
}

// AudioTranscriber converts uploaded audio to text. *providers.AssemblyAI implements it.
type AudioTranscriber interface {
	TranscribeAudio(ctx context.Context, audio []byte) (string, error)
}

// HistoryReader returns user-facing history. *conversation.Log implements it.
type HistoryReader interface {
	History(ctx context.Context, slug string) []assistant.Exchange
}

// UsageReporter reports today's quota usage. *quota.Governor implements it.
type UsageReporter interface {
	Usage(ctx context.Context, slug string, tier assistant.Tier) ([]quota.FeatureUsage, error)
}

// FileReader reads stored artifacts. *blobstore.Manager implements it.
type FileReader interface {
	Retrieve(ctx context.Context, slug, filename string) ([]byte, error)
}

// DriveConnector runs the Drive OAuth flow. *blobstore.DriveClient implements it.
type DriveConnector interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (blobstore.Token, error)
	UserEmail(ctx context.Context, accessToken string) (string, error)
	FindOrCreateFolder(ctx context.Context, accessToken, name string) (string, error)
}

// Deps are the collaborators behind the routes. Drive, Transcriber and
// Metrics are optional; their routes answer 404 when unset.
type Deps struct {
	Runner      TurnRunner
	Transcriber AudioTranscriber
	History     HistoryReader
	Tenants     assistant.TenantStore
	Quota       UsageReporter
	Files       FileReader
	Drive       DriveConnector
	DriveFolder string
	FrontendURL string
	Metrics     http.Handler
	// StateSecret signs OAuth state. A random key is used when empty, so
	// connect links only survive until the process restarts.
	StateSecret []byte
}

type server struct {
	Deps
	state *stateSigner
}

// New builds the gin engine.
func New(d Deps) *gin.Engine {
	if d.DriveFolder == "" {
		d.DriveFolder = blobstore.DefaultFolderName
	}
	s := &server{Deps: d, state: newStateSigner(d.StateSecret)}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	tenant := r.Group("/", requireSlug())
	tenant.POST("/turn/:slug", s.turn)
	tenant.POST("/voice/:slug", s.voice)
	tenant.GET("/chat/:slug", s.chat)
	tenant.GET("/quota/:slug", s.quota)
	tenant.GET("/files/:slug/:name", s.file)
	tenant.GET("/device/check/:slug", s.deviceCheck)
	tenant.GET("/auth/google/start/:slug", s.googleStart)
	r.GET("/auth/google/callback", s.googleCallback)

	return r
}

// requestLogger attaches a turn id to the request context and logs the request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx, id := logging.WithTurnID(c.Request.Context(), c.GetHeader("X-Request-ID"))
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", id)

		c.Next()

		log.Info().
			Str("turn_id", id).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

// requireSlug rejects malformed tenant slugs before any handler runs.
func requireSlug() gin.HandlerFunc {
	return func(c *gin.Context) {
		if slug := c.Param("slug"); slug != "" && !assistant.ValidSlug(slug) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_slug_format"})
			return
		}
		c.Next()
	}
}

// abortWithError maps err onto a status and a stable error code.
func abortWithError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "server_error"
	switch {
	case errors.Is(err, assistant.ErrValidation):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, assistant.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, assistant.ErrProvider), errors.Is(err, assistant.ErrProviderTimeout):
		status, code = http.StatusBadGateway, "upstream_error"
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}
