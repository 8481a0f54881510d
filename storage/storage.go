// Package storage provides the blob-store tier: a polymorphic object store
// routed either directly to S3 or through a HYBRID workspace's data plane,
// plus the payload queue producer/consumer pair that moves oversized span
// payloads out of band.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Queue wire names for the payload pipeline.
const (
	PayloadsQueue      = "payloads_queue"
	PayloadsExchange   = "payloads_exchange"
	PayloadsRoutingKey = "payloads_routing_key"
)

// QueuePayloadMessage is the queued unit of blob work: raw bytes destined
// for (bucket, key).
type QueuePayloadMessage struct {
	Key    string `json:"key"`
	Data   []byte `json:"data"`
	Bucket string `json:"bucket"`
}

// Storage is the object-store surface shared by the S3 and mock backends.
type Storage interface {
	// Store writes data under (bucket, key) and returns the payload URL
	// derived from the key.
	Store(ctx context.Context, bucket, key string, data []byte) (string, error)

	// GetStream opens the object for reading.
	GetStream(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// GetSize returns the object size in bytes.
	GetSize(ctx context.Context, bucket, key string) (int64, error)
}

// CreateKey builds a blob key for a project payload:
// project/{project_id}/{payload_id}[.ext].
func CreateKey(projectID uuid.UUID, fileExtension string) string {
	key := fmt.Sprintf("project/%s/%s", projectID, uuid.New())
	if fileExtension != "" {
		key += "." + fileExtension
	}
	return key
}

// KeyToURL converts a blob key into its retrieval URL:
// /api/projects/{project_id}/payloads/{payload_id}.
func KeyToURL(key string) string {
	parts := strings.SplitN(strings.TrimPrefix(key, "project/"), "/", 2)
	if len(parts) != 2 {
		return ""
	}
	return fmt.Sprintf("/api/projects/%s/payloads/%s", parts[0], parts[1])
}

// ExtractProjectIDFromKey parses the project id out of a payload key.
func ExtractProjectIDFromKey(key string) (uuid.UUID, error) {
	rest, ok := strings.CutPrefix(key, "project/")
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid key format: missing 'project/' prefix")
	}
	projectIDStr, _, ok := strings.Cut(rest, "/")
	if !ok || projectIDStr == "" {
		return uuid.Nil, fmt.Errorf("invalid key format: missing project_id")
	}
	projectID, err := uuid.Parse(projectIDStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid project_id in key: %w", err)
	}
	return projectID, nil
}
