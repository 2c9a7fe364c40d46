package live

import (
	"time"

	"example.com/blogfeed/internal/models"
)

// EventTypePosts is the only event type pushed to browsers.
const EventTypePosts = "posts"

// Event is the envelope written to every subscriber.
type Event struct {
	Type   string            `json:"type"`
	Action models.PostAction `json:"action"`
	Post   PostPayload       `json:"post"`
}

type CreatorPayload struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type PostPayload struct {
	ID        string          `json:"_id"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	ImageURL  string          `json:"imageUrl"`
	Creator   *CreatorPayload `json:"creator,omitempty"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
}

func NewEvent(e models.PostEvent) Event {
	p := e.Post
	payload := PostPayload{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		ImageURL:  p.ImageURL,
		CreatedAt: formatTime(p.CreatedAt),
		UpdatedAt: formatTime(p.UpdatedAt),
	}
	if p.Creator != nil {
		payload.Creator = &CreatorPayload{ID: p.Creator.ID, Name: p.Creator.Name}
	}
	return Event{Type: EventTypePosts, Action: e.Action, Post: payload}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(models.TimeLayout)
}
