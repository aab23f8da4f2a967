package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Baaaki/component-review/internal/middleware"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/internal/service"
	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/Baaaki/component-review/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

type NotificationHandler struct {
	notifications *service.NotificationService
	upgrader      websocket.Upgrader
}

// NewNotificationHandler accepts websocket upgrades from allowedOrigins only.
// An empty list admits any origin.
func NewNotificationHandler(notifications *service.NotificationService, allowedOrigins []string) *NotificationHandler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &NotificationHandler{
		notifications: notifications,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}
}

// List returns the newest notifications; ?unread=true limits to unread ones
// List returns {count, page, page_size, results}; ?page and ?page_size work
// like the audit list.
func (h *NotificationHandler) List(c *gin.Context) {
	page, ok := intQuery(c, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := intQuery(c, "page_size", repository.DefaultNotificationPageSize)
	if !ok {
		return
	}

	result, err := h.notifications.List(middleware.CurrentUser(c), repository.NotificationFilter{
		UnreadOnly: c.Query("unread") == "true",
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]gin.H, 0, len(result.Notifications))
	for i := range result.Notifications {
		out = append(out, notificationResponse(&result.Notifications[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"count":     result.Total,
		"page":      result.Page,
		"page_size": result.PageSize,
		"results":   out,
	})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(middleware.CurrentUser(c), id); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "marked as read"})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.notifications.MarkAllRead(middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "all marked as read", "updated": n})
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	n, err := h.notifications.UnreadCount(middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": n})
}

// Stream upgrades to a websocket and pushes the user's notifications as they
// are created. Clients only need to answer pings.
func (h *NotificationHandler) Stream(c *gin.Context) {
	user := middleware.CurrentUser(c)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := h.notifications.Stream(ctx, user)
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := logger.Log.With(zap.String("user_id", user.ID.String()))
	log.Info("Notification stream opened")
	start := time.Now()

	go readPump(conn, cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				closeStream(conn)
				log.Info("Notification stream closed", zap.Duration("session", time.Since(start)))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				log.Debug("Notification write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("Ping failed", zap.Error(err))
				return
			}
		}
	}
}

// readPump drains control frames and cancels the stream once the peer goes away
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debug("Websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func closeStream(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"),
	)
}
