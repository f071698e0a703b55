package sceneasset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
)

const (
	DefaultFetchTimeout    = 60 * time.Second
	DefaultMaxArchiveBytes = 512 << 20
)

// SceneArchive is one fetched scene package.
type SceneArchive struct {
	SceneID  string
	Target   Target
	Data     []byte
	Filename string
}

// ArchiveSource delivers the raw ZIP package for a scene.
type ArchiveSource interface {
	FetchArchive(ctx context.Context, sceneID string, target Target) (*SceneArchive, error)
}

type HTTPFetcherConfig struct {
	BaseURL         string
	Credentials     CredentialSource
	Client          *http.Client
	Timeout         time.Duration
	MaxArchiveBytes int64
}

// HTTPFetcher pulls archives from GET {base}/scenes/{id}/viewer?target=.
type HTTPFetcher struct {
	log      *logger.Logger
	base     *url.URL
	creds    CredentialSource
	client   *http.Client
	maxBytes int64
	now      func() time.Time
}

func NewHTTPFetcher(log *logger.Logger, cfg HTTPFetcherConfig) (*HTTPFetcher, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("scene api base url required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid scene api base url %q", raw)
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultFetchTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := cfg.MaxArchiveBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxArchiveBytes
	}
	return &HTTPFetcher{
		log:      log.With("component", "ArchiveFetcher"),
		base:     base,
		creds:    cfg.Credentials,
		client:   client,
		maxBytes: maxBytes,
		now:      time.Now,
	}, nil
}

func (f *HTTPFetcher) FetchArchive(ctx context.Context, sceneID string, target Target) (*SceneArchive, error) {
	sceneID = strings.TrimSpace(sceneID)
	if sceneID == "" {
		return nil, newError(KindInvalidRequest, "scene id required", nil)
	}
	if !target.Valid() {
		return nil, newError(KindInvalidRequest, fmt.Sprintf("unknown target %q", target), nil)
	}

	token := ""
	if f.creds != nil {
		tok, err := f.creds.Token(ctx)
		if err != nil {
			return nil, newError(KindUnauthenticated, "credential lookup failed", err)
		}
		token = strings.TrimSpace(tok)
	}
	if token == "" {
		return nil, newError(KindUnauthenticated, "no bearer credential available", nil)
	}
	if info := inspectToken(token); info.expired(f.now()) {
		f.log.Info("Bearer token expired before fetch", "scene_id", sceneID, "user_id", info.Subject, "expired_at", info.ExpiresAt)
		return nil, newError(KindExpiredSession, "token expired", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint(sceneID, target), nil)
	if err != nil {
		return nil, newError(KindInvalidRequest, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/zip")
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, upstreamFailure(0, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &Error{Kind: KindExpiredSession, Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, upstreamFailure(resp.StatusCode, readErrorMessage(resp.Body), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, upstreamFailure(resp.StatusCode, "read body", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, upstreamFailure(resp.StatusCode, fmt.Sprintf("archive exceeds %d bytes", f.maxBytes), nil)
	}

	filename := FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if filename == "" {
		filename = FallbackFilename(sceneID)
	}
	f.log.Debug("Fetched scene archive", "scene_id", sceneID, "target", target, "bytes", len(data), "filename", filename)
	return &SceneArchive{SceneID: sceneID, Target: target, Data: data, Filename: filename}, nil
}

func (f *HTTPFetcher) endpoint(sceneID string, target Target) string {
	u := *f.base
	basePath := strings.TrimRight(f.base.Path, "/")
	baseRaw := strings.TrimRight(f.base.EscapedPath(), "/")
	u.Path = basePath + "/scenes/" + sceneID + "/viewer"
	u.RawPath = baseRaw + "/scenes/" + url.PathEscape(sceneID) + "/viewer"
	q := u.Query()
	q.Set("target", string(target))
	// Intermediaries that ignore Cache-Control still key on the query.
	q.Set("_ts", strconv.FormatInt(f.now().UnixNano(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}

func FallbackFilename(sceneID string) string {
	return "scene_" + sceneID + ".zip"
}

// FilenameFromDisposition extracts a bare filename from a
// Content-Disposition value; filename* wins over filename. Returns "" when
// nothing usable is present.
func FilenameFromDisposition(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return filenameFallbackScan(header)
	}
	// mime.ParseMediaType already decodes filename* into "filename".
	name := strings.TrimSpace(params["filename"])
	if name == "" {
		return ""
	}
	return sanitizeFilename(name)
}

// Some servers send unquoted names with spaces, which ParseMediaType rejects.
func filenameFallbackScan(header string) string {
	lower := strings.ToLower(header)
	idx := strings.Index(lower, "filename=")
	if idx < 0 {
		return ""
	}
	v := header[idx+len("filename="):]
	if semi := strings.IndexByte(v, ';'); semi >= 0 {
		v = v[:semi]
	}
	v = strings.Trim(strings.TrimSpace(v), `"'`)
	if v == "" {
		return ""
	}
	return sanitizeFilename(v)
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// readErrorMessage pulls a message out of whatever JSON error body the
// backend sent. None of the shapes are guaranteed.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if msg, ok := body["message"].(string); ok {
		return strings.TrimSpace(msg)
	}
	switch v := body["error"].(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			return strings.TrimSpace(msg)
		}
	}
	return ""
}
