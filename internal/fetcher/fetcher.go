// Package fetcher retrieves remote documents for conversion.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http/httpproxy"
)

const (
	// DefaultTimeout for remote fetches
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodyBytes caps a fetched body (20MB)
	DefaultMaxBodyBytes int64 = 20 * 1024 * 1024

	// DefaultUserAgent is a current desktop Chrome
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	maxRedirects = 10
)

// ErrBodyTooLarge is returned when the remote body exceeds the configured cap.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Options configures a Fetcher.
type Options struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
}

// Fetcher downloads remote resources while presenting itself as a desktop browser, which gets
// past the basic bot filtering many document hosts apply.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	log          *logrus.Logger
}

// Resource is a fetched remote body.
type Resource struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// TransientFile is a short-lived local copy of a fetched resource.
type TransientFile struct {
	Path        string
	ContentType string
	Size        int64

	once sync.Once
	err  error
}

// New creates a Fetcher with a cookie jar and proxy support from the environment.
func New(opts Options, log *logrus.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxyFunc(httpproxy.FromEnvironment(), log)

	// cookiejar.New only fails on a bad PublicSuffixList, and none is passed
	jar, _ := cookiejar.New(nil)

	f := &Fetcher{
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
		log:          log,
	}
	f.client = &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			f.setBrowserHeaders(req)
			return nil
		},
	}
	return f
}

// Fetch retrieves targetURL into memory. A status of 400 or above is an error.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Resource, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %q (only http and https are supported)", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	f.setBrowserHeaders(req)

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.log.WithError(closeErr).Warn("Failed to close response body")
		}
	}()

	entry := f.log.WithFields(logrus.Fields{
		"url":          targetURL,
		"status_code":  resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
	})

	if resp.StatusCode >= 400 {
		entry.Warn("Remote fetch returned an error status")
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, f.maxBodyBytes)
	}

	entry.WithField("body_size", len(body)).
		WithField("duration_ms", time.Since(started).Milliseconds()).
		Debug("Fetched remote resource")

	return &Resource{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// FetchToFile retrieves targetURL and writes the body to a uniquely named file in dir. The
// extension follows the response content type so the converter picks the right pipeline.
// On error no file is left behind.
func (f *Fetcher) FetchToFile(ctx context.Context, targetURL, dir string) (*TransientFile, error) {
	res, err := f.Fetch(ctx, targetURL)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	path := filepath.Join(dir, "fetch_"+uuid.New().String()+ExtensionFor(res.ContentType))
	if err := os.WriteFile(path, res.Body, 0644); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write transient file: %w", err)
	}

	return &TransientFile{
		Path:        path,
		ContentType: res.ContentType,
		Size:        int64(len(res.Body)),
	}, nil
}

// Remove deletes the transient file. Repeated calls return the first result; a file that is
// already gone is not an error.
func (t *TransientFile) Remove() error {
	if t == nil {
		return nil
	}
	t.once.Do(func() {
		if err := os.Remove(t.Path); err != nil && !os.IsNotExist(err) {
			t.err = err
		}
	})
	return t.err
}

var extensionsByType = map[string]string{
	"application/pdf": ".pdf",

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",

	"text/markdown":   ".md",
	"text/x-markdown": ".md",
	"text/asciidoc":   ".adoc",
	"text/csv":        ".csv",

	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/tiff": ".tiff",
	"image/bmp":  ".bmp",
	"image/webp": ".webp",
}

// ExtensionFor maps a Content-Type header to a file extension. Unknown or missing types are
// treated as HTML.
func ExtensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if ext, ok := extensionsByType[mediaType]; ok {
		return ext
	}
	return ".html"
}

func (f *Fetcher) setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Sec-Ch-Ua", `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`)
	req.Header.Set("Sec-Ch-Ua-Mobile", "?0")
	req.Header.Set("Sec-Ch-Ua-Platform", `"Windows"`)
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// proxyFunc routes requests through the configured proxies, honouring NO_PROXY and picking
// HTTP_PROXY or HTTPS_PROXY by the target scheme.
func proxyFunc(cfg *httpproxy.Config, log *logrus.Logger) func(*http.Request) (*url.URL, error) {
	for scheme, raw := range map[string]string{"http": cfg.HTTPProxy, "https": cfg.HTTPSProxy} {
		if raw == "" {
			continue
		}
		entry := log.WithField("scheme", scheme)
		if parsed, err := url.Parse(raw); err == nil {
			entry.WithField("proxy_url", redactProxyCredentials(parsed)).Debug("Fetcher configured with proxy")
		} else {
			entry.WithError(err).Warn("Failed to parse proxy URL")
		}
	}
	if cfg.NoProxy != "" {
		log.WithField("no_proxy", cfg.NoProxy).Debug("Fetcher proxy exclusions")
	}

	resolve := cfg.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return resolve(req.URL)
	}
}

func redactProxyCredentials(u *url.URL) string {
	if u.User == nil {
		return u.String()
	}
	redacted := *u
	redacted.User = url.User("redacted")
	return redacted.String()
}
