package model

import "time"

// EventType names a realtime notification pushed to connected clients.
type EventType string

const (
	EventNewPost        EventType = "newPost"
	EventUpdatePost     EventType = "updatePost"
	EventDeletePost     EventType = "deletePost"
	EventNewComment     EventType = "newComment"
	EventUpdateComment  EventType = "updateComment"
	EventDeleteComment  EventType = "deleteComment"
	EventUserTerminated EventType = "userTerminated"
)

// Event is the envelope sent over the realtime channel.
//
// Data holds the affected entity: a *Post, a *Comment, a DeleteResult, or
// for userTerminated a UsernamePayload so clients can prune that user's posts.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

// UsernamePayload is the data of a userTerminated event.
type UsernamePayload struct {
	Username string `json:"username"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, data any) Event {
	return Event{Type: t, Data: data, At: time.Now()}
}
