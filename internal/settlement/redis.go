package settlement

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/stakegame/internal/model"
)

// DefaultStream is the Redis stream settlements are appended to
const DefaultStream = "stakegame:settlements"

// RedisStreamSink appends settlements to a Redis stream the executor
// consumes with XREADGROUP
type RedisStreamSink struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a sink writing to stream, trimmed to roughly maxLen entries (0 = unbounded)
func NewRedisStreamSink(client redis.Cmdable, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Emit(ctx context.Context, st *model.Settlement) error {
	data, err := json.Marshal(toRecord(st))
	if err != nil {
		return err
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: map[string]any{
			"settlement_id": st.ID,
			"match_id":      string(st.MatchID),
			"kind":          string(st.Kind),
			"data":          data,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append settlement %s to stream: %w", st.ID, err)
	}
	return nil
}
