package client

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/windfall/ielts_service/internal/errors"
)

// PubSubClient publishes practice events to a Pub/Sub topic.
type PubSubClient struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubClient creates a new Pub/Sub client. An empty credentialsFile
// uses application default credentials.
func NewPubSubClient(ctx context.Context, projectID, topicID, credentialsFile string) (*PubSubClient, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrPubSubService, "failed to create pubsub client", err)
	}

	return &PubSubClient{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

// Close flushes pending messages and closes the client.
func (c *PubSubClient) Close() error {
	if c.topic != nil {
		c.topic.Stop()
	}
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Publish marshals data to JSON, publishes it with attrs and waits for the
// server acknowledgement.
func (c *PubSubClient) Publish(ctx context.Context, data interface{}, attrs map[string]string) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return errors.InternalWrap("failed to marshal event", err)
	}

	result := c.topic.Publish(ctx, &pubsub.Message{
		Data:       jsonData,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return classifyPubSubError(err)
	}
	return nil
}

func classifyPubSubError(err error) *errors.AppError {
	appErr := errors.Wrap(errors.ErrPubSubService, "failed to publish event", err)
	if st, ok := status.FromError(err); ok {
		appErr = appErr.WithDetails(map[string]interface{}{"grpc_code": st.Code().String()})
		if st.Code() == codes.DeadlineExceeded {
			appErr.Code = errors.ErrTimeout
		}
	}
	return appErr
}
