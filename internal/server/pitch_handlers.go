package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bashirbobboi/elevator-pitch/internal/assets"
	"github.com/bashirbobboi/elevator-pitch/internal/pitches"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const viewerIDHeader = "X-Viewer-ID"

type pitchPayload struct {
	ID                string     `json:"id"`
	ShareID           string     `json:"shareId"`
	ShareURL          string     `json:"shareUrl,omitempty"`
	Title             string     `json:"title"`
	VideoURL          string     `json:"videoUrl"`
	ViewCount         int64      `json:"viewCount"`
	UniqueViewerCount int64      `json:"uniqueViewerCount"`
	ResumeDownloads   int64      `json:"resumeDownloads"`
	PortfolioClicks   int64      `json:"portfolioClicks"`
	LinkedinClicks    int64      `json:"linkedinClicks"`
	CompletionRate    float64    `json:"completionRate"`
	FirstViewed       *time.Time `json:"firstViewed,omitempty"`
	LastViewed        *time.Time `json:"lastViewed,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func (h *httpHandler) toPitchPayload(pitch pitches.Pitch) pitchPayload {
	return pitchPayload{
		ID:                pitch.ID,
		ShareID:           pitch.ShareID,
		ShareURL:          h.shareURL(pitch.ShareID),
		Title:             pitch.Title,
		VideoURL:          pitch.VideoURL,
		ViewCount:         pitch.ViewCount,
		UniqueViewerCount: pitch.UniqueViewerCount,
		ResumeDownloads:   pitch.ResumeDownloads,
		PortfolioClicks:   pitch.PortfolioClicks,
		LinkedinClicks:    pitch.LinkedinClicks,
		CompletionRate:    pitch.CompletionRate,
		FirstViewed:       pitch.FirstViewed,
		LastViewed:        pitch.LastViewed,
		CreatedAt:         pitch.CreatedAt,
		UpdatedAt:         pitch.UpdatedAt,
	}
}

func (h *httpHandler) shareURL(shareID string) string {
	if h.publicBaseURL == "" || shareID == "" {
		return ""
	}
	return fmt.Sprintf("%s/share/%s", h.publicBaseURL, shareID)
}

// handleCreatePitch accepts a multipart form with "title" and a "video" file.
func (h *httpHandler) handleCreatePitch(c *gin.Context) {
	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "message": "title is required"})
		return
	}
	fileHeader, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "message": "video file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	stored, err := h.assets.Put(ctx, assets.Upload{
		Kind:        assets.KindVideo,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        file,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	pitch, err := h.pitches.CreatePitch(ctx, pitches.NewPitch{Title: title, VideoURL: stored.URL, VideoAssetKey: stored.Key})
	if err != nil {
		if deleteErr := h.assets.Delete(ctx, stored.Key); deleteErr != nil {
			h.logger.Warn("orphaned video asset", zap.String("asset_key", stored.Key), zap.Error(deleteErr))
		}
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.toPitchPayload(pitch))
}

func (h *httpHandler) handleListPitches(c *gin.Context) {
	list, err := h.pitches.ListPitches(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	response := make([]pitchPayload, 0, len(list))
	for _, pitch := range list {
		response = append(response, h.toPitchPayload(pitch))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetPitch(c *gin.Context) {
	pitch, err := h.pitches.GetPitch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toPitchPayload(pitch))
}

type renameRequestPayload struct {
	Title string `json:"title"`
}

func (h *httpHandler) handleRenamePitch(c *gin.Context) {
	var request renameRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	pitch, err := h.pitches.RenamePitch(c.Request.Context(), c.Param("id"), request.Title)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toPitchPayload(pitch))
}

func (h *httpHandler) handleDeletePitch(c *gin.Context) {
	pitch, err := h.pitches.DeletePitch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": pitch.ID})
}

func (h *httpHandler) handlePitchReport(c *gin.Context) {
	report, err := h.pitches.PitchReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *httpHandler) handleAllReports(c *gin.Context) {
	reports, err := h.pitches.AllReports(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, reports)
}

type publicPitchPayload struct {
	ShareID  string `json:"shareId"`
	Title    string `json:"title"`
	VideoURL string `json:"videoUrl"`
	Profile  any    `json:"profile,omitempty"`
}

// handlePublicPitch resolves a share link for a viewer without counting a view.
func (h *httpHandler) handlePublicPitch(c *gin.Context) {
	ctx := c.Request.Context()
	pitch, err := h.pitches.GetPublicPitch(ctx, c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	response := publicPitchPayload{ShareID: pitch.ShareID, Title: pitch.Title, VideoURL: pitch.VideoURL}
	profile, err := h.profiles.Current(ctx)
	switch {
	case err == nil:
		response.Profile = profile
	case !isNotFound(err):
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

type viewerRequestPayload struct {
	ViewerID string `json:"viewerId"`
}

type openResponsePayload struct {
	Success       bool  `json:"success"`
	Counted       bool  `json:"counted"`
	ViewCount     int64 `json:"viewCount"`
	UniqueViewers int64 `json:"uniqueViewers"`
}

func (h *httpHandler) handleOpen(c *gin.Context) {
	var request viewerRequestPayload
	if err := bindOptionalJSON(c, &request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.ViewerID == "" {
		request.ViewerID = c.GetHeader(viewerIDHeader)
	}
	result, err := h.pitches.RecordOpen(c.Request.Context(), c.Param("id"), request.ViewerID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, openResponsePayload{
		Success:       true,
		Counted:       result.Admitted,
		ViewCount:     result.Pitch.ViewCount,
		UniqueViewers: result.Pitch.UniqueViewerCount,
	})
}

type progressRequestPayload struct {
	ViewerID    string   `json:"viewerId"`
	CurrentTime *float64 `json:"currentTime"`
	Duration    *float64 `json:"duration"`
}

type progressResponsePayload struct {
	Success        bool    `json:"success"`
	WatchTime      float64 `json:"watchTime"`
	CompletedVideo bool    `json:"completedVideo"`
	CompletionRate float64 `json:"completionRate"`
}

func (h *httpHandler) handleProgress(c *gin.Context) {
	var request progressRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.CurrentTime == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.ViewerID == "" {
		request.ViewerID = c.GetHeader(viewerIDHeader)
	}
	viewerID, err := pitches.NewViewerID(request.ViewerID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	result, err := h.pitches.RecordProgress(c.Request.Context(), c.Param("id"), pitches.ProgressReport{
		ViewerID:    viewerID,
		CurrentTime: *request.CurrentTime,
		Duration:    request.Duration,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, progressResponsePayload{
		Success:        true,
		WatchTime:      result.WatchTime,
		CompletedVideo: result.CompletedVideo,
		CompletionRate: result.CompletionRate,
	})
}

type clickRequestPayload struct {
	ViewerID   string `json:"viewerId"`
	ActionType string `json:"actionType"`
}

type clickResponsePayload struct {
	Success        bool   `json:"success"`
	ActionType     string `json:"actionType"`
	TotalForAction int64  `json:"totalForAction"`
	FirstClick     bool   `json:"firstClick"`
}

func (h *httpHandler) handleClick(c *gin.Context) {
	var request clickRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.ViewerID == "" {
		request.ViewerID = c.GetHeader(viewerIDHeader)
	}
	result, err := h.pitches.RecordClick(c.Request.Context(), c.Param("id"), request.ViewerID, request.ActionType)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, clickResponsePayload{
		Success:        true,
		ActionType:     string(result.ActionType),
		TotalForAction: result.TotalForAction,
		FirstClick:     result.FirstClick,
	})
}

// bindOptionalJSON decodes the body when one was sent.
func bindOptionalJSON(c *gin.Context, target any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
