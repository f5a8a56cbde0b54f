package server

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"tegridy/internal/models"
	"tegridy/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// wsTicketTTL is how long an issued ticket stays redeemable. Tickets are
// single-use; AuthRequired deletes them on first redemption.
const wsTicketTTL = 30 * time.Second

// IssueWSTicket handles POST /api/ws/ticket. Browsers cannot set an
// Authorization header on a WebSocket handshake, so authenticated clients
// trade their JWT for a short-lived ticket passed as a query parameter.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(fmt.Errorf("realtime is unavailable")))
	}

	userID := currentUserID(c)
	ticket := uuid.New().String()
	key := fmt.Sprintf("ws_ticket:%s", ticket)

	if err := s.redis.Set(c.Context(), key,
		strconv.FormatUint(uint64(userID), 10), wsTicketTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(wsTicketTTL.Seconds()),
	})
}

// WebsocketCommentsHandler streams comment events for one episode or
// character page. Watchers are read-only; all mutations go through HTTP.
func (s *Server) WebsocketCommentsHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		ctx := context.Background()

		if s.hub == nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"realtime unavailable"}`))
			_ = conn.Close()
			return
		}

		kind := models.TargetKind(conn.Params("kind"))
		if kind != models.TargetEpisode && kind != models.TargetCharacter {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unknown target kind"}`))
			_ = conn.Close()
			return
		}

		targetID, err := strconv.ParseUint(conn.Params("targetId"), 10, 32)
		if err != nil || targetID == 0 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid target id"}`))
			_ = conn.Close()
			return
		}

		exists := false
		switch kind {
		case models.TargetEpisode:
			exists, err = s.episodeRepo.Exists(ctx, uint(targetID))
		case models.TargetCharacter:
			exists, err = s.characterRepo.Exists(ctx, uint(targetID))
		}
		if err != nil || !exists {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"target not found"}`))
			_ = conn.Close()
			return
		}

		// AuthRequired sets userID; zero means an anonymous viewer.
		userID, _ := conn.Locals("userID").(uint)

		channel := notifications.TargetChannel(kind, uint(targetID))
		client, err := s.hub.Register(channel, userID, conn)
		if err != nil {
			log.Printf("WebSocket Comments: failed to register watcher for %s: %v", channel, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		welcome := fmt.Sprintf(`{"event":"watching","channel":%q,"watchers":%d}`,
			channel, s.hub.WatcherCount(channel))
		client.TrySend([]byte(welcome))

		// Write pump in a goroutine; read pump blocks until disconnect.
		go client.WritePump()
		client.ReadPump()
	})
}
