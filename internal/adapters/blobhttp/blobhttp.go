// Package blobhttp implements the core BlobStorage port with plain HTTP
// PUTs against a media server. The returned URL is the public read URL,
// embedded as-is into message content.
package blobhttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/roomsync/internal/domain"
)

type Store struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string) *Store {
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Store) Upload(ctx context.Context, name string, content io.Reader, roomID domain.RoomID, ownerID domain.UserID) (string, error) {
	target := fmt.Sprintf("%s/media/%s/%s/%s",
		s.baseURL, url.PathEscape(string(roomID)), url.PathEscape(string(ownerID)), url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, content)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload: unexpected status %d", resp.StatusCode)
	}
	return target, nil
}
