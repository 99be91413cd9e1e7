package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingProcessor struct {
	taskIDs []string
	err     error
}

func (c *countingProcessor) Process(_ context.Context, taskID string) error {
	c.taskIDs = append(c.taskIDs, taskID)
	return c.err
}

func TestMuxDispatchesAnalyzeTask(t *testing.T) {
	proc := &countingProcessor{}
	mux := NewMux(proc, zap.NewNop())

	payload, err := json.Marshal(AnalyzePayload{TaskID: "task_42"})
	require.NoError(t, err)

	err = mux.ProcessTask(context.Background(), asynq.NewTask(TypeAnalyzeVideo, payload))
	require.NoError(t, err)
	assert.Equal(t, []string{"task_42"}, proc.taskIDs)
}

func TestMuxPropagatesProcessorError(t *testing.T) {
	proc := &countingProcessor{err: errors.New("download failed")}
	mux := NewMux(proc, zap.NewNop())

	payload, _ := json.Marshal(AnalyzePayload{TaskID: "task_42"})
	err := mux.ProcessTask(context.Background(), asynq.NewTask(TypeAnalyzeVideo, payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download failed")
}

func TestMuxRejectsMalformedPayloadWithoutRetry(t *testing.T) {
	proc := &countingProcessor{}
	mux := NewMux(proc, zap.NewNop())

	err := mux.ProcessTask(context.Background(), asynq.NewTask(TypeAnalyzeVideo, []byte("not json")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, proc.taskIDs)
}
