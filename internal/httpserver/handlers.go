package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sendrelay/sendrelay/internal/audit"
	"github.com/sendrelay/sendrelay/internal/notification"
	"github.com/sendrelay/sendrelay/internal/upload"
)

// sendRequest is the body of POST /api/notifications.
type sendRequest struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient" binding:"required"`
	Message   string `json:"message" binding:"required"`
	Queued    bool   `json:"queued"`
	Priority  int    `json:"priority"`
}

func (s *Server) handleSendNotification(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "recipient and message are required"})
		return
	}

	tag := req.Channel
	if tag == "" {
		tag = s.config.DefaultChannel
	}
	msg := notification.Message{Recipient: req.Recipient, Body: req.Message}
	ctx := c.Request.Context()

	if req.Queued {
		if !s.dispatcher.QueueEnabled() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"message": "queued delivery is not available"})
			return
		}

		rec, err := s.dispatcher.Enqueue(ctx, tag, msg, req.Priority)
		if err != nil {
			s.log.WithContext(ctx).WithField("error", err).Error("failed to enqueue notification")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to queue notification"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message":      "notification queued",
			"notification": rec,
		})
		return
	}

	rec, err := s.dispatcher.Dispatch(ctx, tag, msg)
	if err != nil {
		var ce *notification.ChannelError
		if errors.As(err, &ce) {
			c.JSON(http.StatusBadGateway, gin.H{
				"message":      "notification could not be delivered",
				"error_code":   string(ce.Code),
				"channel":      string(ce.Channel),
				"notification": rec,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to send notification"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "notification sent",
		"notification": rec,
	})
}

func (s *Server) handleGetNotification(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid notification id"})
		return
	}

	rec, err := s.dispatcher.Get(c.Request.Context(), id)
	if errors.Is(err, audit.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "notification not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to load notification"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notification": rec})
}

func (s *Server) handleUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "no file provided"})
		return
	}

	if fh.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "uploaded file is empty"})
		return
	}

	path, err := s.uploads.PathFor(fh.Filename)
	if errors.Is(err, upload.ErrInvalidName) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid filename"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to store file"})
		return
	}

	if err := c.SaveUploadedFile(fh, path); err != nil {
		s.log.WithContext(c.Request.Context()).WithField("error", err).Error("failed to save upload")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to store file"})
		return
	}

	name, _ := upload.SanitizeName(fh.Filename)
	c.JSON(http.StatusCreated, gin.H{
		"message":  "file uploaded successfully",
		"filename": name,
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	path, err := s.uploads.Resolve(c.Param("filename"))
	if errors.Is(err, upload.ErrNotFound) || errors.Is(err, upload.ErrInvalidName) {
		c.JSON(http.StatusNotFound, gin.H{"message": "file not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to read file"})
		return
	}

	c.File(path)
}
