package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coachcall/api/internal/client"
	"github.com/coachcall/api/internal/model"
)

// Audio is a downloaded recording with its corrected container format
type Audio struct {
	Data   []byte
	Format model.AudioFormat
}

// AudioSource resolves a stored recording to bytes via a short-lived signed URL.
type AudioSource struct {
	storage client.StorageClient
	fetcher client.Fetcher
	ttl     time.Duration
}

func NewAudioSource(storage client.StorageClient, fetcher client.Fetcher, ttl time.Duration) *AudioSource {
	return &AudioSource{storage: storage, fetcher: fetcher, ttl: ttl}
}

// SignedURL issues a download URL for path. Paths that are already http(s)
// URLs are used as-is. Failures wrap ErrStorageUnavailable.
func (a *AudioSource) SignedURL(ctx context.Context, path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	if a.storage == nil || !a.storage.IsConfigured() {
		return "", fmt.Errorf("%w: storage client not configured", ErrStorageUnavailable)
	}
	url, err := a.storage.GetSignedURL(ctx, path, a.ttl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return url, nil
}

// Fetch downloads a signed URL and infers the container from path.
func (a *AudioSource) Fetch(ctx context.Context, url, path string) (*Audio, error) {
	dl, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Audio{Data: dl.Data, Format: model.DetectAudioFormat(path, dl.ContentType)}, nil
}

// Load signs and fetches in one step.
func (a *AudioSource) Load(ctx context.Context, path string) (*Audio, error) {
	url, err := a.SignedURL(ctx, path)
	if err != nil {
		return nil, err
	}
	return a.Fetch(ctx, url, path)
}
