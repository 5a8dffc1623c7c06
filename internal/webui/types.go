package webui

// ProgressRequest represents the task progress API request
type ProgressRequest struct {
	TaskID        string `json:"id_task"`
	LivePreviewID int    `json:"id_live_preview"` // -1 skips the live preview image
}

// ProgressResponse represents the task progress API response
type ProgressResponse struct {
	Active        bool    `json:"active"`
	Queued        bool    `json:"queued"`
	Completed     bool    `json:"completed"`
	Progress      float64 `json:"progress,omitempty"` // 0..1
	ETA           float64 `json:"eta,omitempty"`      // seconds
	LivePreview   string  `json:"live_preview,omitempty"`
	LivePreviewID int     `json:"id_live_preview"`
	TextInfo      string  `json:"textinfo,omitempty"`
}

// ConfigResponse is the subset of the UI config used to find rendered components
type ConfigResponse struct {
	Version    string      `json:"version"`
	Components []Component `json:"components"`
}

// Component is a rendered UI component
type Component struct {
	ID    int            `json:"id"`
	Type  string         `json:"type"`
	Props ComponentProps `json:"props"`
}

// ComponentProps contains the component properties we look at
type ComponentProps struct {
	ElemID  string `json:"elem_id,omitempty"`
	Visible *bool  `json:"visible,omitempty"`
}
