package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/bashirbobboi/elevator-pitch/internal/assets"
	"github.com/bashirbobboi/elevator-pitch/internal/pitches"
	"github.com/bashirbobboi/elevator-pitch/internal/profiles"
	"github.com/gin-gonic/gin"
)

func isNotFound(err error) bool {
	return errors.Is(err, profiles.ErrNotFound) || errors.Is(err, pitches.ErrNotFound)
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	profile, err := h.profiles.Current(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleCreateProfile(c *gin.Context) {
	var input profiles.Input
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	profile, err := h.profiles.Create(c.Request.Context(), input)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, profile)
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	var input profiles.Input
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	profile, err := h.profiles.Update(c.Request.Context(), input)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleDeleteProfile(c *gin.Context) {
	profile, err := h.profiles.Delete(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": profile.ID})
}

func (h *httpHandler) handleProfilePicture(c *gin.Context) {
	h.handleProfileUpload(c, "profilePicture", h.profiles.SetPicture)
}

func (h *httpHandler) handleProfileResume(c *gin.Context) {
	h.handleProfileUpload(c, "resume", h.profiles.SetResume)
}

type profileUploader func(ctx context.Context, upload assets.Upload) (profiles.Profile, error)

func (h *httpHandler) handleProfileUpload(c *gin.Context, field string, store profileUploader) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "message": field + " file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	defer file.Close()

	profile, err := store(c.Request.Context(), assets.Upload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        file,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
