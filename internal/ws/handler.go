package ws

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"channel-service/internal/auth"
	"channel-service/internal/models"
	"channel-service/internal/observability"
	"channel-service/internal/repositories"
)

// TokenResolver verifies a bearer credential at handshake time.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (auth.Identity, error)
}

// GateHandler authenticates and authorizes streaming connections before
// they attach to a topic. The credential is verified once at handshake;
// later frames on the connection are treated as authenticated.
type GateHandler struct {
	hub         *Hub
	channelRepo repositories.ChannelRepository
	resolver    TokenResolver
}

// NewGateHandler constructs a GateHandler.
func NewGateHandler(hub *Hub, channelRepo repositories.ChannelRepository, resolver TokenResolver) *GateHandler {
	return &GateHandler{hub: hub, channelRepo: channelRepo, resolver: resolver}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleChannel authenticates the handshake and subscribes the connection
// to the channel's topic. Subscription is gated by the same membership
// check as the REST write path.
func (h *GateHandler) HandleChannel(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("channel_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	ctx, span := otel.Tracer("channel-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	identity, err := h.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := h.channelRepo.IsMember(ctx, channelID, identity.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a channel member"})
		return
	}

	h.attach(c, models.ChannelTopic(channelID), "channel", identity, span.SpanContext().TraceID().String())
}

// HandleNotifications subscribes the connection to the caller's own
// notification topic. No other user's topic is reachable.
func (h *GateHandler) HandleNotifications(c *gin.Context) {
	ctx, span := otel.Tracer("channel-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	identity, err := h.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	h.attach(c, models.NotificationTopic(identity.UserID), "notifications", identity, span.SpanContext().TraceID().String())
}

func (h *GateHandler) attach(c *gin.Context, topic, kind string, identity auth.Identity, traceID string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	sub := h.hub.Subscribe(topic, conn, info)

	observability.IncWSActive(kind)
	observability.IncWSEvent(kind, "ws_connect")
	h.publishLifecycle(c.Request.Context(), kind, topic, info, "ws_connect", "")

	// Drain inbound frames; the connection is outbound-only. Reader exit
	// is the disconnect signal.
	go func() {
		var closeReason string
		defer func() {
			h.hub.Unsubscribe(sub)
			observability.DecWSActive(kind)
			observability.IncWSEvent(kind, "ws_disconnect")
			h.publishLifecycle(context.Background(), kind, topic, info, "ws_disconnect", closeReason)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent(kind, "ws_error")
				}
				return
			}
		}
	}()
}

func (h *GateHandler) publishLifecycle(ctx context.Context, kind, topic string, info ConnInfo, event, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events."+kind, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        kind,
				"topic":       topic,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

// authenticate extracts the bearer credential from the Authorization header
// or, for browser clients, the token query parameter.
func (h *GateHandler) authenticate(c *gin.Context) (auth.Identity, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			header = "Bearer " + token
		}
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return auth.Identity{}, fmt.Errorf("missing bearer credential")
	}
	return h.resolver.Resolve(c.Request.Context(), parts[1])
}
