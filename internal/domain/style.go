package domain

// StylePreset describes one selectable artistic style. It carries no
// transformation logic; providers interpret it.
type StylePreset struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	ThumbnailURL string `json:"thumbnail_url" yaml:"thumbnail_url"`
	Artist       string `json:"artist" yaml:"artist"`
	Period       string `json:"period" yaml:"period"`
}
