package core

// Song is the normalized record served to clients. Immutable once
// constructed from an upstream track payload.
type Song struct {
	URI         string   `json:"uri"`
	Name        string   `json:"name"`
	Artists     []string `json:"artist"`
	Album       string   `json:"album"`
	ReleaseDate string   `json:"release_date"`
	URL         string   `json:"url"`
}

// Device is one entry of the account's playback device list.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsActive bool   `json:"is_active"`
}
