package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type VideoAuthor struct {
	ID        string `json:"id"`
	UniqueID  string `json:"uniqueId"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type VideoStats struct {
	PlayCount    int64 `json:"playCount"`
	LikeCount    int64 `json:"likeCount"`
	CommentCount int64 `json:"commentCount"`
	ShareCount   int64 `json:"shareCount"`
}

type TrendingVideo struct {
	ID          string      `json:"id"`
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Author      VideoAuthor `json:"author"`
	Stats       VideoStats  `json:"stats"`
	CoverURL    string      `json:"coverUrl,omitempty"`
	Hashtags    []string    `json:"hashtags"`
}

type TrendingVideosResponse struct {
	Videos     []TrendingVideo `json:"videos"`
	Cursor     string          `json:"cursor,omitempty"`
	HasMore    bool            `json:"hasMore"`
	TotalCount int             `json:"totalCount"`
}

// handleTrendingVideos returns a trending video listing. Live fetching is
// not wired yet; the endpoint serves a fixed sample so clients can build
// against the response shape.
func (h *Handler) handleTrendingVideos(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 50 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 50"})
		return
	}

	videos := sampleTrendingVideos()
	if limit < len(videos) {
		videos = videos[:limit]
	}

	c.JSON(http.StatusOK, TrendingVideosResponse{
		Videos:     videos,
		HasMore:    false,
		TotalCount: len(videos),
	})
}

func sampleTrendingVideos() []TrendingVideo {
	return []TrendingVideo{
		{
			ID:          "sample_1",
			URL:         "https://www.tiktok.com/@example/video/1",
			Title:       "Sample Trending Video 1",
			Description: "This is a sample trending video",
			Author:      VideoAuthor{ID: "author_1", UniqueID: "example_creator", Nickname: "Example Creator"},
			Stats:       VideoStats{PlayCount: 1000000, LikeCount: 50000, CommentCount: 1000, ShareCount: 500},
			Hashtags:    []string{"trending", "viral", "fyp"},
		},
		{
			ID:          "sample_2",
			URL:         "https://www.tiktok.com/@example2/video/2",
			Title:       "Sample Trending Video 2",
			Description: "Another sample trending video",
			Author:      VideoAuthor{ID: "author_2", UniqueID: "popular_user", Nickname: "Popular User"},
			Stats:       VideoStats{PlayCount: 2500000, LikeCount: 120000, CommentCount: 3000, ShareCount: 1500},
			Hashtags:    []string{"trending", "dance", "music"},
		},
	}
}
