package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/testutil"
)

func payoutSettlement() *model.Settlement {
	return &model.Settlement{
		ID:        "settle-1",
		EscrowID:  "escrow-1",
		MatchID:   "ROOM01-1",
		Kind:      model.SettlementPayout,
		Winner:    "alice",
		Payout:    198,
		Fee:       2,
		Transfers: []model.Transfer{{To: "alice", Amount: 198}},
		CreatedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRedisStreamSink(t *testing.T) {
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sink := NewRedisStreamSink(client, "", 0)
	require.NoError(t, sink.Emit(context.Background(), payoutSettlement()))

	entries, err := client.XRange(context.Background(), DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "settle-1", entries[0].Values["settlement_id"])
	assert.Equal(t, "payout", entries[0].Values["kind"])

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["data"].(string)), &rec))
	assert.Equal(t, "alice", rec.Winner)
	require.NotNil(t, rec.Fee)
	assert.Equal(t, model.Amount(2), *rec.Fee)
	assert.Equal(t, []TransferRecord{{To: "alice", Amount: 198}}, rec.Transfers)
}

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	putter := &fakePutter{}
	sink := NewS3Sink(putter, "archive", "prod")

	require.NoError(t, sink.Emit(context.Background(), payoutSettlement()))
	require.Len(t, putter.inputs, 1)
	assert.Equal(t, "archive", aws.ToString(putter.inputs[0].Bucket))
	assert.Equal(t, "prod/settlements/ROOM01-1/settle-1.json", aws.ToString(putter.inputs[0].Key))
	assert.Equal(t, "application/json", aws.ToString(putter.inputs[0].ContentType))

	var rec Record
	require.NoError(t, json.Unmarshal(putter.bodies[0], &rec))
	assert.Equal(t, "escrow-1", rec.EscrowID)
}

func TestRefundRecordOmitsPayoutFields(t *testing.T) {
	st := &model.Settlement{
		ID:        "settle-2",
		MatchID:   "ROOM01-1",
		Kind:      model.SettlementRefund,
		Transfers: []model.Transfer{{To: "alice", Amount: 101}, {To: "bob", Amount: 100}},
	}

	data, err := json.Marshal(toRecord(st))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "winner")
	assert.NotContains(t, string(data), "fee")
	assert.Contains(t, string(data), `"amount":"0.000000101"`)
}

func TestMultiSinkDeliversToAllAndJoinsErrors(t *testing.T) {
	failing := &fakePutter{err: errors.New("bucket unavailable")}
	working := &fakePutter{}
	multi := MultiSink{NewS3Sink(failing, "a", ""), NewLogSink(testutil.NopLogger()), NewS3Sink(working, "b", "")}

	err := multi.Emit(context.Background(), payoutSettlement())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
	assert.Len(t, working.inputs, 1)
}
