package model

// APIResponse is the body of every non-auth success and of every error. On
// failure Error holds the human-readable message and Code the stable
// machine-readable reason.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// LoginResponse is the body of a successful password login.
type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	Role    Role   `json:"role"`
}

// TokenResponse is the body of a successful Google login.
type TokenResponse struct {
	Token string `json:"token"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ResetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type UploadResult struct {
	Path      string `json:"path"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mime_type"`
}
