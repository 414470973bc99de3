package messaging_test

import (
	"context"
	"testing"

	"oracle-broker/internal/messaging"
	"oracle-broker/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventWorkerDispatch(t *testing.T) {
	queue := messaging.NewInMemoryQueue()

	require.NoError(t, queue.PublishSubmissionEvent(context.Background(), models.SubmissionEvent{
		RequestId: 1, Sender: "alice", ModelId: 11, Prompt: "Hello World",
	}))
	require.NoError(t, queue.PublishResolutionEvent(context.Background(), models.ResolutionEvent{
		RequestId: 1, ModelId: 11, Input: []byte("Hello World"), Output: []byte("42"),
	}))
	queue.Close()

	var submissions []models.SubmissionEvent
	var resolutions []models.ResolutionEvent

	worker := messaging.NewEventWorker(queue)
	worker.OnSubmission = func(event models.SubmissionEvent) { submissions = append(submissions, event) }
	worker.OnResolution = func(event models.ResolutionEvent) { resolutions = append(resolutions, event) }

	worker.Run()

	require.Len(t, submissions, 1)
	assert.Equal(t, "alice", submissions[0].Sender)
	assert.Equal(t, "Hello World", submissions[0].Prompt)

	require.Len(t, resolutions, 1)
	assert.Equal(t, []byte("42"), resolutions[0].Output)
}
