package httpgw

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/roomsync/internal/core"
	"github.com/dkeye/roomsync/internal/domain"
)

type Controller struct {
	engine *core.Engine
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required,max=4096"`
}

func (ctl *Controller) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, ctl.engine.CurrentSession())
}

func (ctl *Controller) RefreshProfile(c *gin.Context) {
	ctl.engine.RefreshProfile(c.Request.Context())
	c.JSON(http.StatusOK, ctl.engine.CurrentSession())
}

func (ctl *Controller) SignOut(c *gin.Context) {
	ctl.engine.SignOut(c.Request.Context())
	c.JSON(http.StatusOK, ctl.engine.CurrentSession())
}

func (ctl *Controller) OpenRoom(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	view, err := ctl.engine.OpenRoom(c.Request.Context(), roomID)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view.State())
}

func (ctl *Controller) CloseRoom(c *gin.Context) {
	ctl.engine.CloseRoom()
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) JoinRoom(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	if err := ctl.engine.JoinRoom(c.Request.Context(), roomID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) LeaveRoom(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	if err := ctl.engine.LeaveRoom(c.Request.Context(), roomID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) SendMessage(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	msg, err := ctl.engine.SendMessage(c.Request.Context(), roomID, req.Content)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (ctl *Controller) UploadMedia(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_upload"})
		return
	}
	defer file.Close()

	url, err := ctl.engine.UploadMedia(c.Request.Context(), roomID, header.Filename, file)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, core.ErrSendFailure):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrSnapshotLoad), errors.Is(err, core.ErrSubscription):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
