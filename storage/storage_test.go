package storage

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracefold/app-server/common"
	"github.com/tracefold/app-server/db"
	"github.com/tracefold/app-server/worker"
)

func TestCreateKey(t *testing.T) {
	projectID := uuid.New()

	key := CreateKey(projectID, "")
	pattern := fmt.Sprintf(`^project/%s/[0-9a-f-]{36}$`, projectID)
	assert.Regexp(t, regexp.MustCompile(pattern), key)

	withExt := CreateKey(projectID, "png")
	patternExt := fmt.Sprintf(`^project/%s/[0-9a-f-]{36}\.png$`, projectID)
	assert.Regexp(t, regexp.MustCompile(patternExt), withExt)
}

func TestKeyToURL(t *testing.T) {
	projectID := uuid.New()
	payloadID := uuid.New()

	key := fmt.Sprintf("project/%s/%s", projectID, payloadID)
	assert.Equal(t,
		fmt.Sprintf("/api/projects/%s/payloads/%s", projectID, payloadID),
		KeyToURL(key))

	assert.Equal(t, "", KeyToURL("garbage"))
}

func TestExtractProjectIDFromKey(t *testing.T) {
	projectID := uuid.New()

	got, err := ExtractProjectIDFromKey(fmt.Sprintf("project/%s/%s.png", projectID, uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, projectID, got)

	_, err = ExtractProjectIDFromKey("wrong/abc/def")
	assert.Error(t, err)

	_, err = ExtractProjectIDFromKey("project/not-a-uuid/x")
	assert.Error(t, err)
}

func TestMockStorage_RoundTrip(t *testing.T) {
	store := NewMockStorage()
	ctx := context.Background()
	projectID := uuid.New()
	key := CreateKey(projectID, "")
	payload := []byte("payload-bytes")

	url, err := store.Store(ctx, "payloads", key, payload)
	require.NoError(t, err)
	assert.Equal(t, KeyToURL(key), url)

	stream, err := store.GetStream(ctx, "payloads", key)
	require.NoError(t, err)
	defer stream.Close()
	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	size, err := store.GetSize(ctx, "payloads", key)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), size)
}

func cloudResolver() DeploymentResolver {
	return func(context.Context, uuid.UUID) (*db.WorkspaceDeployment, error) {
		return &db.WorkspaceDeployment{Mode: db.DeploymentModeCloud}, nil
	}
}

func TestService_CloudRoutesDirect(t *testing.T) {
	mock := NewMockStorage()
	service := NewService(mock, cloudResolver(), nil, nil)
	ctx := context.Background()

	projectID := uuid.New()
	key := CreateKey(projectID, "")
	url, err := service.Store(ctx, projectID, "payloads", key, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, KeyToURL(key), url)

	size, err := service.GetSize(ctx, projectID, "payloads", key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

// flakyStorage fails the first n Store calls with a transient error.
type flakyStorage struct {
	inner     Storage
	failures  int32
	remaining int32
}

func (f *flakyStorage) Store(ctx context.Context, bucket, key string, data []byte) (string, error) {
	if atomic.AddInt32(&f.remaining, -1) >= 0 {
		atomic.AddInt32(&f.failures, 1)
		return "", fmt.Errorf("transient store failure")
	}
	return f.inner.Store(ctx, bucket, key, data)
}

func (f *flakyStorage) GetStream(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return f.inner.GetStream(ctx, bucket, key)
}

func (f *flakyStorage) GetSize(ctx context.Context, bucket, key string) (int64, error) {
	return f.inner.GetSize(ctx, bucket, key)
}

func TestPayloadHandler_RetriesThenAcks(t *testing.T) {
	mock := NewMockStorage()
	flaky := &flakyStorage{inner: mock, remaining: 2}
	service := NewService(flaky, cloudResolver(), nil, nil)

	handler := &PayloadHandler{Service: service, Logger: common.Default()}

	projectID := uuid.New()
	key := CreateKey(projectID, "")
	delivery := worker.Delivery[QueuePayloadMessage]{
		Message: QueuePayloadMessage{Key: key, Bucket: "payloads", Data: []byte("data")},
	}

	var state struct{}
	start := time.Now()
	result := handler.HandleMessage(context.Background(), delivery, &state)

	assert.Len(t, result.ToAck, 1)
	assert.Empty(t, result.ToRequeue)
	assert.Equal(t, int32(2), flaky.failures, "first two attempts should have failed")
	assert.Greater(t, time.Since(start), 500*time.Millisecond, "retries should have backed off")

	size, err := mock.GetSize(context.Background(), "payloads", key)
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
}

func TestPayloadHandler_MalformedKeyRejects(t *testing.T) {
	service := NewService(NewMockStorage(), cloudResolver(), nil, nil)
	handler := &PayloadHandler{Service: service, Logger: common.Default()}

	delivery := worker.Delivery[QueuePayloadMessage]{
		Message: QueuePayloadMessage{Key: "bogus", Bucket: "payloads"},
	}

	var state struct{}
	result := handler.HandleMessage(context.Background(), delivery, &state)
	assert.Len(t, result.ToReject, 1)
	assert.Empty(t, result.ToAck)
}
