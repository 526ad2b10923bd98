package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/dunamismax/styleflow/internal/id"
	"github.com/dunamismax/styleflow/internal/storage"
)

type objectPublisher interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	PresignedGetURL(ctx context.Context, objectKey, filename string, expiry time.Duration) (string, error)
}

// Published describes a download uploaded to object storage.
type Published struct {
	ObjectKey string    `json:"object_key"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Publisher stores downloads in object storage and hands out presigned
// links to them.
type Publisher struct {
	objects objectPublisher
	expiry  time.Duration
}

func NewPublisher(objects objectPublisher, expiry time.Duration) (*Publisher, error) {
	if objects == nil {
		return nil, errors.New("object storage is required")
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Publisher{objects: objects, expiry: expiry}, nil
}

func (p *Publisher) Publish(ctx context.Context, state domain.WorkflowState) (Published, error) {
	download, err := FromState(state)
	if err != nil {
		return Published{}, err
	}

	key := storage.ObjectKey("downloads", state.SessionID, id.New(), download.Filename)
	if err := p.objects.WriteObject(ctx, key, download.Data, download.ContentType); err != nil {
		return Published{}, fmt.Errorf("upload download: %w", err)
	}

	url, err := p.objects.PresignedGetURL(ctx, key, download.Filename, p.expiry)
	if err != nil {
		return Published{}, fmt.Errorf("presign download: %w", err)
	}
	return Published{
		ObjectKey: key,
		Filename:  download.Filename,
		URL:       url,
		ExpiresAt: time.Now().UTC().Add(p.expiry),
	}, nil
}
