package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage_Classification(t *testing.T) {
	tests := []struct {
		stage     Stage
		resumable bool
		terminal  bool
		failed    bool
	}{
		{StageInit, true, false, false},
		{StagePreWriting, true, false, false},
		{StagePreWritingEnd, true, false, false},
		{StageGeneratingEnd, true, false, false},
		{StageDone, false, true, false},
		{StageFailDB, false, true, true},
		{StageFailFile, false, true, true},
		{StageFailListen, false, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			assert.Equal(t, tt.resumable, tt.stage.Resumable())
			assert.Equal(t, tt.terminal, tt.stage.Terminal())
			assert.Equal(t, tt.failed, tt.stage.Failed())
		})
	}
}

func TestStage_NextFollowsRunOrder(t *testing.T) {
	order := []Stage{StageInit, StagePreWriting, StagePreWritingEnd, StageGeneratingEnd, StageDone}

	for i := 0; i < len(order)-1; i++ {
		next, ok := order[i].Next()
		assert.True(t, ok)
		assert.Equal(t, order[i+1], next)
	}

	for _, s := range []Stage{StageDone, StageFailDB, StageFailFile, StageFailListen} {
		_, ok := s.Next()
		assert.False(t, ok, "stage %s must not advance", s)
	}

	_, ok := Stage("final_writing").Next()
	assert.False(t, ok)
}

func TestStage_InfoMessage(t *testing.T) {
	assert.Equal(t, "Start set up llm provider. (Step 1 / 4)", StageInit.InfoMessage())
	assert.Empty(t, StageDone.InfoMessage())
	assert.NotEmpty(t, StageFailFile.InfoMessage())
}

func TestRejectedError(t *testing.T) {
	err := fmt.Errorf("admit: %w", &RejectedError{Reason: "sensitive"})

	assert.True(t, errors.Is(err, ErrAdmissionRejected))

	var rejected *RejectedError
	assert.True(t, errors.As(err, &rejected))
	assert.Equal(t, "sensitive", rejected.Reason)
}

func TestRetryableError(t *testing.T) {
	cause := errors.New("context canceled")
	err := NewRetryableError(cause)

	var retryable *RetryableError
	assert.True(t, errors.As(err, &retryable))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "retryable error: context canceled", err.Error())
}

func TestEvent_Failed(t *testing.T) {
	assert.False(t, ProgressEvent("x", "y").Failed())
	assert.False(t, CompletedEvent("done").Failed())
	assert.True(t, FailureEvent(EventFailed, "boom", 500).Failed())
	assert.True(t, CompletedEvent("done").IsDone)
}
