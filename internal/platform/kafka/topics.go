// Package kafka holds broker-level helpers shared by the consumer and producer.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TopicResult reports what EnsureTopics did for one topic.
type TopicResult struct {
	Topic   string
	Created bool
}

// EnsureTopics creates any missing topics. Topics that already exist are
// left as they are.
func EnsureTopics(ctx context.Context, client *kgo.Client, partitions int32, replication int16, topics ...string) ([]TopicResult, error) {
	if len(topics) == 0 {
		return nil, nil
	}
	adm := kadm.NewClient(client)
	resps, err := adm.CreateTopics(ctx, partitions, replication, nil, topics...)
	if err != nil {
		return nil, fmt.Errorf("create topics: %w", err)
	}

	results := make([]TopicResult, 0, len(topics))
	var errs []error
	for _, topic := range topics {
		resp, ok := resps[topic]
		if !ok {
			errs = append(errs, fmt.Errorf("topic %s: no response", topic))
			continue
		}
		switch {
		case resp.Err == nil:
			results = append(results, TopicResult{Topic: topic, Created: true})
		case errors.Is(resp.Err, kerr.TopicAlreadyExists):
			results = append(results, TopicResult{Topic: topic})
		default:
			errs = append(errs, fmt.Errorf("topic %s: %w", topic, resp.Err))
		}
	}
	return results, errors.Join(errs...)
}
