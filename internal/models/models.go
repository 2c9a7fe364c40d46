package models

import "time"

// TimeLayout is the ISO-8601 form used for timestamps on the wire.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// DefaultStatus is the status text of a freshly created user.
const DefaultStatus = "I am new!"

type User struct {
	ID           string    `json:"_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	PostIDs      []string  `json:"posts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Post struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"imageUrl"`
	CreatorID string    `json:"creatorId"`
	Creator   *User     `json:"creator,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PostPage is one page of the global feed.
type PostPage struct {
	Posts      []Post `json:"posts"`
	TotalPosts int    `json:"totalPosts"`
}

// AuthData is returned by a successful login.
type AuthData struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// Identity is the caller attached to a request. The zero value is anonymous.
type Identity struct {
	UserID string
	Email  string
}

// Anonymous is the identity of a caller without a valid token.
var Anonymous = Identity{}

// Authenticated returns the identity of a verified caller.
func Authenticated(userID, email string) Identity {
	return Identity{UserID: userID, Email: email}
}

func (i Identity) IsAuthenticated() bool {
	return i.UserID != ""
}

type PostAction string

const (
	PostCreated PostAction = "create"
	PostUpdated PostAction = "update"
	PostDeleted PostAction = "delete"
)

// PostEvent is published after every successful post mutation.
type PostEvent struct {
	Action PostAction `json:"action"`
	Post   Post       `json:"post"`
}
