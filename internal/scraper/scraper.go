// Package scraper fetches a source URL and extracts its title and visible
// text for outline generation.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/BaSui01/cardflow/config"
	"github.com/BaSui01/cardflow/internal/tlsutil"
	"github.com/BaSui01/cardflow/types"
)

// Page 抓取结果
type Page struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	WordCount int       `json:"wordCount"`
	ScrapedAt time.Time `json:"scrapedAt"`
}

// Scraper 基于 x/net/html 的正文抓取器
type Scraper struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
	logger    *zap.Logger
}

// New creates a scraper. A nil client uses a hardened one with cfg.Timeout.
func New(cfg config.ScraperConfig, client *http.Client, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := config.DefaultScraperConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if client == nil {
		client = tlsutil.SecureHTTPClient(cfg.Timeout, tlsutil.WithMaxRedirects(5))
	}
	return &Scraper{
		client:    client,
		maxBytes:  cfg.MaxBodyBytes,
		userAgent: cfg.UserAgent,
		logger:    logger.With(zap.String("component", "scraper")),
	}
}

// Fetch downloads rawURL and extracts the page title and visible text.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, types.Errorf(types.ErrInvalidRequest, "sourceUrl must be an absolute http(s) URL: %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid sourceUrl").WithCause(err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.FromContext(ctx.Err())
		}
		return nil, types.Errorf(types.ErrInvalidRequest, "failed to fetch sourceUrl: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, types.Errorf(types.ErrInvalidRequest, "sourceUrl returned HTTP %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, s.maxBytes)
	var title, text string
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "failed to read sourceUrl").WithCause(err)
		}
		text = collapseSpace(strings.ToValidUTF8(string(raw), ""))
	} else {
		title, text, err = Extract(body)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "failed to parse sourceUrl").WithCause(err)
		}
	}
	if text == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "sourceUrl has no readable text")
	}

	page := &Page{
		URL:       u.String(),
		Title:     title,
		Text:      text,
		WordCount: len(strings.Fields(text)),
		ScrapedAt: time.Now(),
	}
	s.logger.Info("来源页面抓取完成",
		zap.String("url", page.URL),
		zap.Int("runes", utf8.RuneCountInString(text)),
		zap.Duration("duration", time.Since(start)),
	)
	return page, nil
}

// skipped 不含正文的元素
var skipped = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Svg: true, atom.Iframe: true, atom.Nav: true, atom.Footer: true,
}

// block 结束后换行的块级元素
var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Blockquote: true, atom.Pre: true,
}

// Extract parses HTML and returns the <title> and the visible text with
// one line per block element.
func Extract(r io.Reader) (title, text string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.Title && title == "" {
				title = collapseSpace(nodeText(n))
				return
			}
			if skipped[n.DataAtom] {
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && block[n.DataAtom] {
			sb.WriteByte('\n')
		}
	}
	walk(doc)

	lines := strings.Split(sb.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = collapseSpace(l); l != "" {
			out = append(out, l)
		}
	}
	if len(out) == 0 && title == "" {
		return "", "", errors.New("document has no text")
	}
	return title, strings.Join(out, "\n"), nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
