package live

import (
	"context"

	"example.com/blogfeed/internal/models"
)

// HubNotifier pushes post events to connected browsers.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NotifyPost(ctx context.Context, event models.PostEvent) error {
	return n.hub.Broadcast(NewEvent(event))
}
