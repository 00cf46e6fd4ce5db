package handlers

import (
	"context"
	"log"

	"github.com/google/uuid"

	"channel-service/internal/models"
	"channel-service/internal/observability"
	"channel-service/internal/rabbitmq"
	"channel-service/internal/repositories"
	"channel-service/internal/ws"
)

// EventPublisher fans domain events out to live subscribers and mirrors
// them to the broker for external consumers. Publishing is strictly
// post-commit and best-effort: a delivery failure never rolls back the
// mutation that produced the event.
type EventPublisher struct {
	hub      *ws.Hub
	mirror   rabbitmq.Publisher
	channels repositories.ChannelRepository
}

// NewEventPublisher constructs an EventPublisher. mirror may be nil.
func NewEventPublisher(hub *ws.Hub, mirror rabbitmq.Publisher, channels repositories.ChannelRepository) *EventPublisher {
	return &EventPublisher{hub: hub, mirror: mirror, channels: channels}
}

// PublishChannelEvent delivers a full event on the channel's topic.
func (p *EventPublisher) PublishChannelEvent(ctx context.Context, event models.Event) {
	observability.IncEventPublished(event.Type)
	p.hub.Publish(models.ChannelTopic(event.ChannelID), event)

	if p.mirror != nil {
		if err := p.mirror.Publish(ctx, "channel_events."+event.Type, event); err != nil {
			observability.IncAMQPPublishError()
		}
	}
}

// NotifyMembers sends a light ping, payload-free, to each member's
// notification topic except the acting user. Pings drive unread
// indicators for channels the member is not actively viewing.
func (p *EventPublisher) NotifyMembers(ctx context.Context, channelID uuid.UUID, actorID, eventType string) {
	members, err := p.channels.ListMembers(ctx, channelID)
	if err != nil {
		log.Printf("notify members failed channel=%s: %v", channelID, err)
		return
	}
	p.notify(members, channelID, actorID, eventType)
}

// NotifyMemberships pings a known member list, used when the memberships
// are already gone from the store (channel deletion cascades first).
func (p *EventPublisher) NotifyMemberships(members []models.Membership, channelID uuid.UUID, actorID, eventType string) {
	p.notify(members, channelID, actorID, eventType)
}

func (p *EventPublisher) notify(members []models.Membership, channelID uuid.UUID, actorID, eventType string) {
	ping := models.NewEvent(eventType, channelID, actorID, nil)
	for _, member := range members {
		if member.UserID == actorID {
			continue
		}
		p.hub.Publish(models.NotificationTopic(member.UserID), ping)
	}
}

// PublishUserEvent delivers an event to a set of channel topics, used for
// user profile changes visible across the user's channels.
func (p *EventPublisher) PublishUserEvent(ctx context.Context, channelIDs []uuid.UUID, event models.Event) {
	observability.IncEventPublished(event.Type)
	for _, channelID := range channelIDs {
		scoped := event
		scoped.ChannelID = channelID
		p.hub.Publish(models.ChannelTopic(channelID), scoped)
	}

	if p.mirror != nil {
		if err := p.mirror.Publish(ctx, "channel_events."+event.Type, event); err != nil {
			observability.IncAMQPPublishError()
		}
	}
}
