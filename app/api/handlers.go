package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/feedwatch/app/feed"
	"github.com/lysyi3m/feedwatch/app/reader"
)

func NewHandler(feedReader FeedReader, list FeedList, health HealthChecker, version string) *Handler {
	return &Handler{
		reader:  feedReader,
		list:    list,
		health:  health,
		version: version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	metrics := h.reader.Metrics()

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
		"feeds":     metrics.Feeds,
		"in_flight": metrics.InFlight,
	}

	if h.list != nil {
		health["listed_feeds"] = h.list.Count()
	}

	if h.health != nil {
		backend := h.health.Health(c.Request.Context())
		health["store"] = backend
		if backend["status"] != "healthy" {
			health["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, health)
			return
		}
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.reader.Metrics())
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	failing := make(map[string]reader.FailureReason)
	for _, reason := range []reader.FailureReason{reader.ReasonHTTP, reader.ReasonParsing, reader.ReasonStorage} {
		for _, url := range h.reader.FailingFeeds(reason) {
			failing[url] = reason
		}
	}

	urls := h.reader.GetFeeds()
	feeds := make([]map[string]interface{}, 0, len(urls))
	for _, url := range urls {
		feedInfo := map[string]interface{}{
			"url":     url,
			"failing": false,
		}
		if reason, ok := failing[url]; ok {
			feedInfo["failing"] = true
			feedInfo["reason"] = reason
		}
		feeds = append(feeds, feedInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) APIAddFeed(c *gin.Context) {
	var req addFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing feed url"})
		return
	}

	added, err := h.reader.AddFeed(req.URL)
	if err != nil {
		slog.Warn("Rejected feed URL", "url", req.URL, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid feed URL",
			"details": err.Error(),
		})
		return
	}

	url, _ := feed.NormalizeURL(req.URL)
	if !added {
		c.JSON(http.StatusOK, gin.H{"success": true, "added": false, "url": url})
		return
	}

	slog.Info("Feed registered via API", "feed", url)
	c.JSON(http.StatusCreated, gin.H{"success": true, "added": true, "url": url})
}

func (h *Handler) APIRemoveFeed(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing url parameter"})
		return
	}

	removed, err := h.reader.RemoveFeed(c.Request.Context(), rawURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid feed URL",
			"details": err.Error(),
		})
		return
	}

	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not registered"})
		return
	}

	slog.Info("Feed removed via API", "url", rawURL)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) APIReloadFeeds(c *gin.Context) {
	if h.list == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No feed list configured"})
		return
	}

	if err := h.list.Run(); err != nil {
		slog.Error("Error reloading feed list", "error", err)

		status := http.StatusInternalServerError
		if errors.Is(err, feed.ErrDuplicateURL) || errors.Is(err, feed.ErrEmptyURL) || errors.Is(err, feed.ErrRelativeURL) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{
			"error":   "Failed to reload feed list",
			"details": err.Error(),
		})
		return
	}

	added, removed := h.reader.SyncFeeds(c.Request.Context(), h.list.GetEnabledURLs())

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Feed list reloaded",
		"added":   added,
		"removed": removed,
		"total":   len(h.reader.GetFeeds()),
	})
}
