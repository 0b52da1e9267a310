package reconcile

import (
	"go.opentelemetry.io/otel/attribute"

	id "nameaffirm/pkg/domain"
)

func eventAttrs(userID id.UserID, attemptID id.AttemptID, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("user_id", int64(userID)),
		attribute.Int64("attempt_id", int64(attemptID)),
		attribute.String("status", status),
	}
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String("outcome", outcome)
}
