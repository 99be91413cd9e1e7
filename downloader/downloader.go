package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"go.uber.org/zap"
)

// ErrUnsupportedURL marks an input URL that is not a TikTok or Douyin video
// link. Creation-time validation uses it to reject tasks before they are
// stored.
var ErrUnsupportedURL = errors.New("not a TikTok or Douyin video URL")

const (
	defaultTikwmURL   = "https://www.tikwm.com/api/"
	defaultTikmateURL = "https://api.tikmate.app/api/lookup"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"

	// Anything smaller is a resolver error page, not a video.
	minVideoBytes = 1000
)

var allowedDomains = []string{"tiktok.com", "douyin.com"}

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/video/(\d+)`),
	regexp.MustCompile(`/v/(\d+)`),
	regexp.MustCompile(`vm\.tiktok\.com/(\w+)`),
}

var (
	hashtagPattern = regexp.MustCompile(`#(\w+)`)
	handlePattern  = regexp.MustCompile(`@([\w.]+)`)
)

// ValidateURL rejects anything that is not an http(s) link on an allowed
// video platform domain.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrUnsupportedURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrUnsupportedURL
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range allowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return nil
		}
	}
	return ErrUnsupportedURL
}

func extractVideoID(raw string) string {
	for _, p := range videoIDPatterns {
		if m := p.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
	}
	return ""
}

// Metadata is what the resolver services expose about a video.
type Metadata struct {
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Duration    float64  `json:"duration"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
	Likes       int64    `json:"likes"`
	Comments    int64    `json:"comments"`
	Shares      int64    `json:"shares"`
}

// Map flattens the metadata for storage in the analysis result's raw block.
func (m Metadata) Map() map[string]any {
	return map[string]any{
		"title":       m.Title,
		"author":      m.Author,
		"duration":    m.Duration,
		"description": m.Description,
		"hashtags":    m.Hashtags,
		"likes":       m.Likes,
		"comments":    m.Comments,
		"shares":      m.Shares,
	}
}

// Result is a successful acquisition: a local file plus extracted metadata.
type Result struct {
	VideoPath string
	Metadata  Metadata
	Source    string
}

type Options struct {
	Dir        string
	MaxSize    int64
	Timeout    time.Duration
	TikwmURL   string
	TikmateURL string
}

// CapacityChecker is satisfied by storage.Service; a failing check refuses
// the download before any bytes hit disk.
type CapacityChecker interface {
	EnsureCapacity() error
}

// Downloader acquires videos through third-party resolver APIs, trying each
// service in order until one yields a playable file.
type Downloader struct {
	dir        string
	maxSize    int64
	tikwmURL   string
	tikmateURL string
	client     *http.Client
	capacity   CapacityChecker
	logger     *zap.Logger
}

func New(opts Options, capacity CapacityChecker, logger *zap.Logger) *Downloader {
	if opts.TikwmURL == "" {
		opts.TikwmURL = defaultTikwmURL
	}
	if opts.TikmateURL == "" {
		opts.TikmateURL = defaultTikmateURL
	}
	return &Downloader{
		dir:        opts.Dir,
		maxSize:    opts.MaxSize,
		tikwmURL:   opts.TikwmURL,
		tikmateURL: opts.TikmateURL,
		client:     &http.Client{Timeout: opts.Timeout},
		capacity:   capacity,
		logger:     logger,
	}
}

// Download resolves and fetches the video behind rawURL into the local video
// directory, returning the file path and whatever metadata the resolver
// exposed.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*Result, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	if d.capacity != nil {
		if err := d.capacity.EnsureCapacity(); err != nil {
			return nil, err
		}
	}

	videoID := extractVideoID(rawURL)
	if videoID == "" {
		videoID = shortuuid.New()
	}
	outputPath := filepath.Join(d.dir, fmt.Sprintf("%s_%d.mp4", videoID, time.Now().Unix()))

	res, tikwmErr := d.tryTikwm(ctx, rawURL, outputPath)
	if tikwmErr == nil {
		return res, nil
	}
	d.logger.Warn("tikwm download failed, trying tikmate",
		zap.String("url", rawURL),
		zap.Error(tikwmErr),
	)

	res, tikmateErr := d.tryTikmate(ctx, rawURL, outputPath)
	if tikmateErr == nil {
		return res, nil
	}

	return nil, fmt.Errorf("all download services failed: tikwm: %v; tikmate: %v", tikwmErr, tikmateErr)
}

type tikwmResponse struct {
	Code int `json:"code"`
	Data struct {
		Play     string  `json:"play"`
		HDPlay   string  `json:"hdplay"`
		Title    string  `json:"title"`
		Duration float64 `json:"duration"`
		Author   struct {
			UniqueID string `json:"unique_id"`
		} `json:"author"`
		DiggCount    int64 `json:"digg_count"`
		CommentCount int64 `json:"comment_count"`
		ShareCount   int64 `json:"share_count"`
	} `json:"data"`
	Msg string `json:"msg"`
}

func (d *Downloader) tryTikwm(ctx context.Context, rawURL, outputPath string) (*Result, error) {
	form := url.Values{}
	form.Set("url", rawURL)
	form.Set("hd", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.tikwmURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tikwm returned status %d", resp.StatusCode)
	}

	var body tikwmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode tikwm response: %w", err)
	}
	if body.Code != 0 {
		return nil, fmt.Errorf("tikwm error: %s", body.Msg)
	}

	videoURL := body.Data.HDPlay
	if videoURL == "" {
		videoURL = body.Data.Play
	}
	if videoURL == "" {
		return nil, errors.New("tikwm response carries no video URL")
	}

	meta := Metadata{
		Title:       body.Data.Title,
		Author:      body.Data.Author.UniqueID,
		Duration:    body.Data.Duration,
		Description: body.Data.Title,
		Hashtags:    extractHashtags(body.Data.Title),
		Likes:       body.Data.DiggCount,
		Comments:    body.Data.CommentCount,
		Shares:      body.Data.ShareCount,
	}
	if meta.Author == "" {
		meta.Author = extractHandle(rawURL)
	}

	if err := d.fetchFile(ctx, videoURL, outputPath); err != nil {
		return nil, err
	}
	return &Result{VideoPath: outputPath, Metadata: meta, Source: "tikwm"}, nil
}

type tikmateResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	ID      string `json:"id"`
	Author  string `json:"author_name"`
	Title   string `json:"desc"`
}

func (d *Downloader) tryTikmate(ctx context.Context, rawURL, outputPath string) (*Result, error) {
	lookupURL := d.tikmateURL + "?url=" + url.QueryEscape(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tikmate returned status %d", resp.StatusCode)
	}

	var body tikmateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode tikmate response: %w", err)
	}
	if !body.Success || body.Token == "" || body.ID == "" {
		return nil, errors.New("tikmate lookup failed")
	}

	videoURL := fmt.Sprintf("https://tikmate.app/download/%s/%s.mp4", body.Token, body.ID)
	meta := Metadata{
		Title:       body.Title,
		Author:      body.Author,
		Description: body.Title,
		Hashtags:    extractHashtags(body.Title),
	}
	if meta.Author == "" {
		meta.Author = extractHandle(rawURL)
	}

	if err := d.fetchFile(ctx, videoURL, outputPath); err != nil {
		return nil, err
	}
	return &Result{VideoPath: outputPath, Metadata: meta, Source: "tikmate"}, nil
}

// fetchFile downloads the resolved video URL to outputPath, enforcing the
// configured size cap and a sanity floor on the file size.
func (d *Downloader) fetchFile(ctx context.Context, videoURL, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://www.tiktok.com/")
	req.Header.Set("Accept", "*/*")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("video fetch returned status %d", resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}

	limited := &io.LimitedReader{R: resp.Body, N: d.maxSize + 1}
	written, err := io.Copy(out, limited)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("write video file: %w", err)
	}
	if written > d.maxSize {
		os.Remove(outputPath)
		return fmt.Errorf("video exceeds size limit of %d bytes", d.maxSize)
	}
	if written < minVideoBytes {
		os.Remove(outputPath)
		return errors.New("downloaded file is too small to be a video")
	}
	return nil
}

func extractHashtags(text string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		tags = append(tags, m[1])
	}
	return tags
}

func extractHandle(rawURL string) string {
	if m := handlePattern.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}
