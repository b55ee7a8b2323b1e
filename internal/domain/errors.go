package domain

import "errors"

var (
	// ErrArticleNotFound is returned when an article is missing or soft-deleted
	ErrArticleNotFound = errors.New("article not found")

	// ErrForbidden is returned when the caller does not own the article
	ErrForbidden = errors.New("not enough permissions")

	// ErrInvalidTopic is returned when a topic fails input validation
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrAdmissionConflict is returned when the owner already has an active article with the topic
	ErrAdmissionConflict = errors.New("article with this topic already exists")

	// ErrAdmissionRejected is returned when the moderation classifier flags a topic
	ErrAdmissionRejected = errors.New("topic rejected by moderation")

	// ErrServiceUnavailable is returned when the moderation classifier cannot be reached
	ErrServiceUnavailable = errors.New("moderation service unavailable")

	// ErrStageGuard is returned when a runner is asked to advance a non-resumable stage
	// or loses a stage compare-and-set to another writer
	ErrStageGuard = errors.New("article stage is not resumable")

	// ErrArtifactParse is returned when pipeline output files are missing or corrupt
	ErrArtifactParse = errors.New("failed to parse pipeline artifacts")

	// ErrPersistence is returned when an article update cannot be stored
	ErrPersistence = errors.New("failed to persist article")

	// ErrJobAlreadyClaimed is returned when another runner holds the article lease
	ErrJobAlreadyClaimed = errors.New("article run already claimed by another worker")

	// ErrRunInProgress is returned when a worker still holds the article's run lease
	ErrRunInProgress = errors.New("article is still being generated")

	// ErrInvalidPayload is returned when a dispatch message is malformed
	ErrInvalidPayload = errors.New("invalid dispatch payload")
)

// RejectedError carries the moderation verdict behind ErrAdmissionRejected
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return ErrAdmissionRejected.Error() + ": " + e.Reason
}

func (e *RejectedError) Unwrap() error {
	return ErrAdmissionRejected
}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
