package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/creastat/assistant"
	"golang.org/x/oauth2"
)

const (
	// Google token validation endpoint
	defaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
	// Drive v3 metadata API
	defaultDriveAPI = "https://www.googleapis.com/drive/v3"
	// Drive v3 upload API
	defaultDriveUploadAPI = "https://www.googleapis.com/upload/drive/v3"
	// UserInfo endpoint
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	folderMimeType = "application/vnd.google-apps.folder"

	// DefaultFolderName is the Drive folder artifacts are written to.
	DefaultFolderName = "RK AI Files"
)

// googleEndpoint is Google's OAuth 2.0 endpoint.
var googleEndpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.google.com/o/oauth2/auth",
	TokenURL:  "https://oauth2.googleapis.com/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// DriveScopes are requested by the connect flow.
var DriveScopes = []string{
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/userinfo.email",
}

// DriveConfig configures a DriveClient. Empty URLs select Google's endpoints.
type DriveConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	TokenURL     string
	TokenInfoURL string
	APIURL       string
	UploadURL    string
	UserInfoURL  string

	HTTPClient *http.Client
}

// DriveClient talks to the Drive REST API with per-call access tokens.
type DriveClient struct {
	oauth     *oauth2.Config
	http      *http.Client
	tokenInfo string
	api       string
	upload    string
	userInfo  string
}

// NewDriveClient creates a Drive client.
func NewDriveClient(cfg DriveConfig) *DriveClient {
	endpoint := googleEndpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &DriveClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       DriveScopes,
		},
		http:      httpClient,
		tokenInfo: orDefault(cfg.TokenInfoURL, defaultTokenInfoURL),
		api:       strings.TrimRight(orDefault(cfg.APIURL, defaultDriveAPI), "/"),
		upload:    strings.TrimRight(orDefault(cfg.UploadURL, defaultDriveUploadAPI), "/"),
		userInfo:  orDefault(cfg.UserInfoURL, defaultUserInfoURL),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ValidateToken implements Drive.
func (c *DriveClient) ValidateToken(ctx context.Context, accessToken string) (bool, error) {
	u := c.tokenInfo + "?access_token=" + url.QueryEscape(accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("tokeninfo: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return false, nil
	default:
		return false, fmt.Errorf("tokeninfo: status %d", resp.StatusCode)
	}
}

// Refresh implements Drive.
func (c *DriveClient) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Token{}, fmt.Errorf("refresh token: %w", err)
	}
	return Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, Expiry: tok.Expiry}, nil
}

// AuthURL returns the consent URL for the connect flow.
func (c *DriveClient) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens.
func (c *DriveClient) Exchange(ctx context.Context, code string) (Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return Token{}, fmt.Errorf("exchange code: %w", err)
	}
	return Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, Expiry: tok.Expiry}, nil
}

// UserEmail returns the account email for accessToken.
func (c *DriveClient) UserEmail(ctx context.Context, accessToken string) (string, error) {
	var out struct {
		Email string `json:"email"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.userInfo, accessToken, nil, &out); err != nil {
		return "", err
	}
	return out.Email, nil
}

// CreateFolder implements Drive.
func (c *DriveClient) CreateFolder(ctx context.Context, accessToken, name string) (string, error) {
	body := map[string]any{"name": name, "mimeType": folderMimeType}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.api+"/files?fields=id", accessToken, body, &out); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	return out.ID, nil
}

// FindOrCreateFolder returns the id of the named top-level folder, creating it if needed.
func (c *DriveClient) FindOrCreateFolder(ctx context.Context, accessToken, name string) (string, error) {
	q := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeQuery(name), folderMimeType)
	id, err := c.search(ctx, accessToken, q)
	if err == nil {
		return id, nil
	}
	if err != assistant.ErrNotFound {
		return "", err
	}
	return c.CreateFolder(ctx, accessToken, name)
}

// Quota implements Drive.
func (c *DriveClient) Quota(ctx context.Context, accessToken string) (DriveQuota, error) {
	var out struct {
		StorageQuota struct {
			Limit string `json:"limit"`
			Usage string `json:"usage"`
		} `json:"storageQuota"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.api+"/about?fields=storageQuota", accessToken, nil, &out); err != nil {
		return DriveQuota{}, fmt.Errorf("drive quota: %w", err)
	}
	limit, _ := strconv.ParseInt(out.StorageQuota.Limit, 10, 64)
	usage, _ := strconv.ParseInt(out.StorageQuota.Usage, 10, 64)
	return DriveQuota{Limit: limit, Usage: usage}, nil
}

// Upload implements Drive using a resumable upload session.
func (c *DriveClient) Upload(ctx context.Context, accessToken, folderID, filename, contentType string, data []byte) (string, error) {
	meta, err := json.Marshal(map[string]any{"name": filename, "parents": []string{folderID}})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.upload+"/files?uploadType=resumable", bytes.NewReader(meta))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Type", contentType)
	req.Header.Set("X-Upload-Content-Length", strconv.Itoa(len(data)))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("start upload: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("start upload: status %d", resp.StatusCode)
	}
	session := resp.Header.Get("Location")
	if session == "" {
		return "", fmt.Errorf("start upload: no session location")
	}

	put, err := http.NewRequestWithContext(ctx, http.MethodPut, session, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	put.Header.Set("Content-Type", contentType)
	put.ContentLength = int64(len(data))

	var out struct {
		ID string `json:"id"`
	}
	if err := c.send(put, &out); err != nil {
		return "", fmt.Errorf("upload %s: %w", filename, err)
	}
	return out.ID, nil
}

// Find implements Drive.
func (c *DriveClient) Find(ctx context.Context, accessToken, folderID, filename string) (string, error) {
	q := fmt.Sprintf("name='%s' and trashed=false and '%s' in parents", escapeQuery(filename), escapeQuery(folderID))
	return c.search(ctx, accessToken, q)
}

// Download implements Drive.
func (c *DriveClient) Download(ctx context.Context, accessToken, fileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api+"/files/"+url.PathEscape(fileID)+"?alt=media", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, assistant.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *DriveClient) search(ctx context.Context, accessToken, q string) (string, error) {
	u := c.api + "/files?" + url.Values{
		"q":        {q},
		"fields":   {"files(id,name)"},
		"pageSize": {"1"},
	}.Encode()
	var out struct {
		Files []struct {
			ID string `json:"id"`
		} `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, u, accessToken, nil, &out); err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	if len(out.Files) == 0 {
		return "", assistant.ErrNotFound
	}
	return out.Files[0].ID, nil
}

func (c *DriveClient) doJSON(ctx context.Context, method, u, accessToken string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *DriveClient) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(b), 200))
	}
	if out == nil || len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, out)
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `'`, `\'`)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Drive = (*DriveClient)(nil)
