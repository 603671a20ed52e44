package converter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

const nativeMaxSourceSize = 20 * 1024 * 1024

// NativeConverter converts HTML and markdown in-process. It is the fallback backend for
// deployments without the Python engine and does not provide any model pipelines.
type NativeConverter struct {
	html   *md.Converter
	client *http.Client
	log    *logrus.Logger
}

// NewNativeConverter creates the in-process converter.
func NewNativeConverter(log *logrus.Logger) *NativeConverter {
	conv := md.NewConverter("", true, nil)
	conv.Remove("script", "style", "noscript", "iframe", "nav", "form", "svg")

	return &NativeConverter{
		html:   conv,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

// Name returns the backend name.
func (c *NativeConverter) Name() string { return "native" }

// Convert reads the source and converts it according to its extension.
func (c *NativeConverter) Convert(ctx context.Context, source string) (*Document, error) {
	content, name, err := c.read(ctx, source)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "html", "htm", "xhtml":
		return c.convertHTML(content, name, source)
	case "md", "markdown":
		return convertMarkdown(content, name, source), nil
	default:
		return nil, fmt.Errorf("%w: %q (native backend handles html and markdown only)", ErrUnsupportedFormat, ext)
	}
}

// read loads the source bytes and returns the name used for format detection.
func (c *NativeConverter) read(ctx context.Context, source string) ([]byte, string, error) {
	u, err := url.Parse(source)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch source: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, "", fmt.Errorf("failed to fetch source: HTTP %d", resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, nativeMaxSourceSize))
		if err != nil {
			return nil, "", fmt.Errorf("failed to read source: %w", err)
		}
		return data, path.Base(u.Path), nil
	}

	local := source
	if err == nil && u.Scheme == "file" {
		local = u.Path
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read source: %w", err)
	}
	return data, filepath.Base(local), nil
}

func (c *NativeConverter) convertHTML(content []byte, name, source string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	headings := []map[string]any{}
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		level := int(goquery.NodeName(s)[1] - '0')
		headings = append(headings, map[string]any{"level": level, "text": text})
	})

	texts := []string{}
	doc.Find("p, li, td, blockquote").Each(func(_ int, s *goquery.Selection) {
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			texts = append(texts, text)
		}
	})

	// drop everything outside <body> (title, meta) before rendering
	body, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(body) == "" {
		body = string(content)
	}
	markdown, err := c.html.ConvertString(body)
	if err != nil {
		return nil, fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}

	if title == "" && len(headings) > 0 {
		title, _ = headings[0]["text"].(string)
	}

	c.log.WithFields(logrus.Fields{
		"source":          source,
		"html_length":     len(content),
		"markdown_length": len(markdown),
	}).Debug("Converted HTML natively")

	return &Document{
		Markdown:   strings.TrimSpace(markdown),
		Structured: structuredRecord(name, "text/html", title, headings, texts),
	}, nil
}

func convertMarkdown(content []byte, name, source string) *Document {
	text := string(content)

	headings := []map[string]any{}
	texts := []string{}
	var paragraph []string
	flush := func() {
		if len(paragraph) > 0 {
			texts = append(texts, strings.Join(paragraph, " "))
			paragraph = nil
		}
	}

	inFence := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			flush()
			continue
		}
		if inFence {
			continue
		}
		if level := headingLevel(trimmed); level > 0 {
			flush()
			headings = append(headings, map[string]any{
				"level": level,
				"text":  strings.TrimSpace(trimmed[level:]),
			})
			continue
		}
		if trimmed == "" {
			flush()
			continue
		}
		paragraph = append(paragraph, trimmed)
	}
	flush()

	title := ""
	if len(headings) > 0 {
		title, _ = headings[0]["text"].(string)
	}

	return &Document{
		Markdown:   strings.TrimSpace(text),
		Structured: structuredRecord(name, "text/markdown", title, headings, texts),
	}
}

// headingLevel returns the ATX heading level of a line, or 0.
func headingLevel(line string) int {
	level := 0
	for level < len(line) && level < 6 && line[level] == '#' {
		level++
	}
	if level == 0 || level >= len(line) || line[level] != ' ' {
		return 0
	}
	return level
}

func structuredRecord(name, mimetype, title string, headings []map[string]any, texts []string) map[string]any {
	return map[string]any{
		"schema_name": "NativeDocument",
		"version":     "1.0.0",
		"name":        strings.TrimSuffix(name, filepath.Ext(name)),
		"origin": map[string]any{
			"filename": name,
			"mimetype": mimetype,
		},
		"title":    title,
		"headings": headings,
		"texts":    texts,
	}
}
