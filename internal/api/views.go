package api

import (
	"time"

	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/dunamismax/styleflow/internal/export"
)

type imageView struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	URL       string `json:"url"`
	DataURL   string `json:"data_url,omitempty"`
}

type errorView struct {
	Kind       domain.ErrorKind `json:"kind"`
	Message    string           `json:"message"`
	StyleID    string           `json:"style_id,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// stateView is the JSON form of a snapshot. Image bytes are served by
// their own routes unless the caller asks for them inline.
type stateView struct {
	SessionID    string              `json:"session_id"`
	Status       domain.Status       `json:"status"`
	Source       *imageView          `json:"source,omitempty"`
	Style        *domain.StylePreset `json:"style,omitempty"`
	Result       *imageView          `json:"result,omitempty"`
	Error        *errorView          `json:"error,omitempty"`
	DownloadName string              `json:"download_name,omitempty"`
	Revision     uint64              `json:"revision"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func newStateView(state domain.WorkflowState) stateView {
	base := "/v1/sessions/" + state.SessionID
	view := stateView{
		SessionID: state.SessionID,
		Status:    state.Status,
		Style:     state.SelectedStyle,
		Revision:  state.Revision,
		UpdatedAt: state.UpdatedAt,
	}
	if state.SourceImage != nil {
		view.Source = newImageView(*state.SourceImage, base+"/image")
	}
	if state.ResultImage != nil {
		view.Result = newImageView(*state.ResultImage, base+"/result")
		view.DownloadName = export.Filename(state.SelectedStyle)
	}
	if state.Error != nil {
		view.Error = &errorView{
			Kind:       state.Error.Kind,
			Message:    state.Error.Message,
			StyleID:    state.Error.StyleID,
			OccurredAt: state.Error.OccurredAt,
		}
	}
	return view
}

func newImageView(img domain.ImageAsset, url string) *imageView {
	return &imageView{
		ID:        img.ID,
		Name:      img.Name,
		MimeType:  img.MimeType,
		SizeBytes: img.SizeBytes,
		Width:     img.Width,
		Height:    img.Height,
		URL:       url,
	}
}

func (v *stateView) inline(state domain.WorkflowState) {
	if v.Source != nil && state.SourceImage != nil {
		v.Source.DataURL = state.SourceImage.DataURL()
	}
	if v.Result != nil && state.ResultImage != nil {
		v.Result.DataURL = state.ResultImage.DataURL()
	}
}
