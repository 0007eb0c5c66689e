package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/dispatch"
	"github.com/creastat/assistant/logging"
)

type turnRequest struct {
	Text string `json:"text" binding:"required"`
}

type turnResponse struct {
	TurnID     string             `json:"turn_id"`
	Reply      string             `json:"reply"`
	Link       string             `json:"resource_link,omitempty"`
	Actions    []assistant.Intent `json:"actions,omitempty"`
	Transcript string             `json:"transcript,omitempty"`
}

func newTurnResponse(res dispatch.TurnResult) turnResponse {
	return turnResponse{
		TurnID:  res.TurnID,
		Reply:   res.Reply.Text,
		Link:    res.Reply.Link,
		Actions: res.Actions,
	}
}

func (s *server) turn(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	res, err := s.Runner.Run(c.Request.Context(), c.Param("slug"), req.Text)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTurnResponse(res))
}

func (s *server) voice(c *gin.Context) {
	if s.Transcriber == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "voice_disabled"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxVoiceBytes)
	header, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_file"})
		return
	}
	f, err := header.Open()
	if err != nil {
		abortWithError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil {
		abortWithError(c, fmt.Errorf("read upload: %w", err))
		return
	}

	ctx := c.Request.Context()
	transcript, err := s.Transcriber.TranscribeAudio(ctx, audio)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("slug", c.Param("slug")).Msg("Voice transcription failed")
		abortWithError(c, err)
		return
	}
	if strings.TrimSpace(transcript) == "" {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "empty_transcript"})
		return
	}

	res, err := s.Runner.Run(ctx, c.Param("slug"), transcript)
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := newTurnResponse(res)
	out.Transcript = transcript
	c.JSON(http.StatusOK, out)
}

func (s *server) chat(c *gin.Context) {
	slug := c.Param("slug")
	if _, err := s.Tenants.GetTenant(c.Request.Context(), slug); err != nil {
		abortWithError(c, err)
		return
	}
	history := s.History.History(c.Request.Context(), slug)
	if history == nil {
		history = []assistant.Exchange{}
	}
	c.JSON(http.StatusOK, gin.H{"chat": history})
}

func (s *server) quota(c *gin.Context) {
	ctx := c.Request.Context()
	tenant, err := s.Tenants.GetTenant(ctx, c.Param("slug"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	usage, err := s.Quota.Usage(ctx, tenant.Slug, tenant.Tier())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tier":             tenant.Tier().String(),
		"storage_limit_mb": tenant.Tier().StorageCeilingMB(),
		"usage":            usage,
	})
}

func (s *server) file(c *gin.Context) {
	name := c.Param("name")
	data, err := s.Files.Retrieve(c.Request.Context(), c.Param("slug"), name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	c.Data(http.StatusOK, contentType, data)
}

func (s *server) deviceCheck(c *gin.Context) {
	_, err := s.Tenants.GetTenant(c.Request.Context(), c.Param("slug"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"exists": true})
	case errors.Is(err, assistant.ErrNotFound):
		c.JSON(http.StatusOK, gin.H{"exists": false})
	default:
		abortWithError(c, err)
	}
}

func (s *server) googleStart(c *gin.Context) {
	if s.Drive == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "drive_disabled"})
		return
	}
	state, err := s.state.Sign(c.Param("slug"))
	if err != nil {
		abortWithError(c, fmt.Errorf("sign oauth state: %w", err))
		return
	}
	c.Redirect(http.StatusFound, s.Drive.AuthURL(state))
}

// googleCallback finishes the Drive connect flow. The OAuth state carries
// the signed tenant slug. Every outcome redirects back to the settings page.
func (s *server) googleCallback(c *gin.Context) {
	if s.Drive == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "drive_disabled"})
		return
	}

	ctx := c.Request.Context()
	code, state := c.Query("code"), c.Query("state")
	if code == "" || state == "" {
		s.settingsRedirect(c, "google_error", "missing_params")
		return
	}
	slug, err := s.state.Verify(state)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected Drive callback with invalid state")
		s.settingsRedirect(c, "google_error", "invalid_state")
		return
	}
	lg := logging.Ctx(ctx).With().Str("slug", slug).Logger()

	tok, err := s.Drive.Exchange(ctx, code)
	if err != nil {
		lg.Warn().Err(err).Msg("Drive code exchange failed")
		s.settingsRedirect(c, "google_error", "token_exchange_failed")
		return
	}
	if tok.RefreshToken == "" {
		s.settingsRedirect(c, "google_error", "no_refresh_token")
		return
	}

	email, err := s.Drive.UserEmail(ctx, tok.AccessToken)
	if err != nil {
		lg.Warn().Err(err).Msg("Drive userinfo failed")
		s.settingsRedirect(c, "google_error", "userinfo_failed")
		return
	}

	folderID, err := s.Drive.FindOrCreateFolder(ctx, tok.AccessToken, s.DriveFolder)
	if err != nil {
		lg.Error().Err(err).Msg("Drive folder setup failed")
		s.settingsRedirect(c, "google_error", "callback_failed")
		return
	}

	backend := assistant.BackendGoogle
	update := assistant.TenantUpdate{
		PreferredBackend:   &backend,
		GoogleAccessToken:  &tok.AccessToken,
		GoogleRefreshToken: &tok.RefreshToken,
		GoogleFolderID:     &folderID,
		GoogleEmail:        &email,
	}
	if err := s.Tenants.UpdateTenant(ctx, slug, update); err != nil {
		lg.Error().Err(err).Msg("Failed to save Drive credentials")
		s.settingsRedirect(c, "google_error", "callback_failed")
		return
	}

	log.Info().Str("slug", slug).Str("email", email).Msg("Drive connected")
	s.settingsRedirect(c, "google_connected", "true")
}

func (s *server) settingsRedirect(c *gin.Context, key, value string) {
	base := strings.TrimSuffix(s.FrontendURL, "/")
	c.Redirect(http.StatusFound, base+"/settings?"+url.Values{key: {value}}.Encode())
}
