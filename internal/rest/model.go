// Package rest talks to the school platform's REST API: the conversation and
// notification listings behind the unread counters, the read-all action and
// file uploads.
package rest

import (
	"time"
)

// Conversation is one chat conversation as listed by the server
type Conversation struct {
	ID            string    `json:"id"`
	Title         string    `json:"title,omitempty"`
	UnreadCount   int       `json:"unreadCount"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// Notification is one notification as listed by the server
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message,omitempty"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// UploadMeta describes a file sent through UploadFile
type UploadMeta struct {
	Title    string
	FileName string
}

// UploadResult is the server's answer to an accepted upload
type UploadResult struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	FileName string `json:"fileName,omitempty"`
	URL      string `json:"url,omitempty"`
}

// listEnvelope is the wrapped form some endpoints answer with
type listEnvelope[T any] struct {
	Data []T `json:"data"`
}
