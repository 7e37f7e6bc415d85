package song

// GenerateRequest asks for a new song preview.
type GenerateRequest struct {
	Recipient string   `json:"recipient" binding:"required"`
	Occasion  string   `json:"occasion"`
	Style     string   `json:"style"`
	Details   string   `json:"details"`
	Title     string   `json:"title"`
	Lyrics    string   `json:"lyrics"`
	Tags      []string `json:"tags"`
}

// GenerateResponse acknowledges an accepted generation task.
type GenerateResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"taskId"`
	Title   string `json:"title"`
	Lyrics  string `json:"lyrics"`
}

// StatusResponse reports the state of a generation task.
type StatusResponse struct {
	Success   bool     `json:"success"`
	TaskID    string   `json:"taskId"`
	Status    string   `json:"status"`
	Title     string   `json:"title,omitempty"`
	Lyrics    string   `json:"lyrics,omitempty"`
	AudioURLs []string `json:"audioUrls,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// SongItem is one song in the listing.
type SongItem struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Style     string   `json:"style,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	AudioURL  string   `json:"audioUrl,omitempty"`
	CreatedAt string   `json:"createdAt"`
}

// ListResponse lists the caller's songs.
type ListResponse struct {
	Success bool       `json:"success"`
	Items   []SongItem `json:"items"`
}
