package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tracefold/app-server/mq"
)

// PublishPayload queues a payload for asynchronous storage and returns the
// URL it will be retrievable at once the consumer has stored it.
func PublishPayload(ctx context.Context, queue mq.MessageQueue, bucket, key string, data []byte) (string, error) {
	message := QueuePayloadMessage{
		Key:    key,
		Data:   data,
		Bucket: bucket,
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload message: %w", err)
	}

	if err := queue.Publish(ctx, payload, PayloadsExchange, PayloadsRoutingKey); err != nil {
		return "", err
	}

	return KeyToURL(key), nil
}
