package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidateURL(t *testing.T) {
	valid := []string{
		"https://www.tiktok.com/@user/video/1234567890",
		"https://vm.tiktok.com/ZMabcdef/",
		"https://www.douyin.com/video/7300000000000000000",
		"http://v.douyin.com/abc123/",
	}
	for _, u := range valid {
		assert.NoError(t, ValidateURL(u), u)
	}

	invalid := []string{
		"https://www.youtube.com/watch?v=abc",
		"https://tiktok.com.evil.com/video/1",
		"not a url",
		"ftp://tiktok.com/video/1",
		"",
	}
	for _, u := range invalid {
		assert.ErrorIs(t, ValidateURL(u), ErrUnsupportedURL, u)
	}
}

func TestExtractVideoID(t *testing.T) {
	cases := map[string]string{
		"https://www.tiktok.com/@user/video/1234567890": "1234567890",
		"https://www.douyin.com/v/987654321":            "987654321",
		"https://vm.tiktok.com/ZMabc123":                "ZMabc123",
		"https://www.tiktok.com/@user":                  "",
	}
	for url, want := range cases {
		assert.Equal(t, want, extractVideoID(url), url)
	}
}

func TestExtractHashtags(t *testing.T) {
	tags := extractHashtags("check this out #fyp #dance #fyp #viral")
	assert.Equal(t, []string{"fyp", "dance", "viral"}, tags)
	assert.Nil(t, extractHashtags("no tags here"))
}

func TestDownloadViaTikwm(t *testing.T) {
	payload := make([]byte, 4096)

	videoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://www.tiktok.com/", r.Header.Get("Referer"))
		w.Write(payload)
	}))
	defer videoSrv.Close()

	tikwmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://www.tiktok.com/@user/video/42", r.Form.Get("url"))
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"play":          videoSrv.URL + "/video.mp4",
				"title":         "My video #fun",
				"duration":      21.5,
				"author":        map[string]any{"unique_id": "creator"},
				"digg_count":    100,
				"comment_count": 5,
			},
		})
	}))
	defer tikwmSrv.Close()

	d := New(Options{
		Dir:      t.TempDir(),
		MaxSize:  1 << 20,
		Timeout:  5 * time.Second,
		TikwmURL: tikwmSrv.URL,
	}, nil, zap.NewNop())

	res, err := d.Download(context.Background(), "https://www.tiktok.com/@user/video/42")
	require.NoError(t, err)
	assert.Equal(t, "tikwm", res.Source)
	assert.Equal(t, "creator", res.Metadata.Author)
	assert.Equal(t, 21.5, res.Metadata.Duration)
	assert.Equal(t, []string{"fun"}, res.Metadata.Hashtags)

	info, err := os.Stat(res.VideoPath)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), info.Size())
}

func TestDownloadFallsBackToTikmate(t *testing.T) {
	tikwmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": -1, "msg": "rate limited"})
	}))
	defer tikwmSrv.Close()

	tikmateSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	defer tikmateSrv.Close()

	d := New(Options{
		Dir:        t.TempDir(),
		MaxSize:    1 << 20,
		Timeout:    5 * time.Second,
		TikwmURL:   tikwmSrv.URL,
		TikmateURL: tikmateSrv.URL,
	}, nil, zap.NewNop())

	_, err := d.Download(context.Background(), "https://www.tiktok.com/@user/video/42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all download services failed")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestDownloadRejectsOversizedVideo(t *testing.T) {
	videoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 10000))
	}))
	defer videoSrv.Close()

	tikwmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{"play": videoSrv.URL},
		})
	}))
	defer tikwmSrv.Close()

	dir := t.TempDir()
	d := New(Options{
		Dir:        dir,
		MaxSize:    4096,
		Timeout:    5 * time.Second,
		TikwmURL:   tikwmSrv.URL,
		TikmateURL: tikwmSrv.URL, // same failure either way
	}, nil, zap.NewNop())

	_, err := d.Download(context.Background(), "https://www.tiktok.com/@user/video/42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size limit")

	// Partial file must not be left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type fullDisk struct{}

func (fullDisk) EnsureCapacity() error { return fmt.Errorf("not enough free disk space") }

func TestDownloadRefusesWhenDiskFull(t *testing.T) {
	d := New(Options{
		Dir:     t.TempDir(),
		MaxSize: 1 << 20,
		Timeout: time.Second,
	}, fullDisk{}, zap.NewNop())

	_, err := d.Download(context.Background(), "https://www.tiktok.com/@user/video/42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "free disk")
}

func TestDownloadRejectsUnsupportedURL(t *testing.T) {
	d := New(Options{Dir: t.TempDir(), MaxSize: 1 << 20, Timeout: time.Second}, nil, zap.NewNop())

	_, err := d.Download(context.Background(), "https://vimeo.com/12345")
	assert.ErrorIs(t, err, ErrUnsupportedURL)
}
