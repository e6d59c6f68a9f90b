package models

// VideoRecord is a normalized YouTube video with its top-level comments.
type VideoRecord struct {
	VideoID     string   `json:"video_id"`
	Title       string   `json:"title"`
	Channel     string   `json:"channel"`
	Views       uint64   `json:"views"`
	PublishedAt string   `json:"published_at,omitempty"`
	Comments    []string `json:"comments"`
}

// ChatMessage is one turn of an assistant conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
