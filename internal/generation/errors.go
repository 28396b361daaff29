package generation

import (
	"context"
	"errors"

	"github.com/phrazzld/inkwell-api/internal/domain"
)

// Common errors returned by producers
var (
	// ErrGenerationFailed is returned when rendering fails for any general reason
	ErrGenerationFailed = errors.New("failed to generate coloring page")

	// ErrInvalidInput is returned when the request cannot be rendered, e.g. an
	// unreadable reference image
	ErrInvalidInput = errors.New("generation input cannot be processed")

	// ErrStorage is returned when rendered variants cannot be written
	ErrStorage = errors.New("failed to store generated artifact")

	// ErrNoSource is returned when no source image is available for a prompt
	ErrNoSource = errors.New("no source image available")
)

// Describe converts a producer error into the descriptor recorded on a
// failed task. The message is safe to show to the task owner.
func Describe(err error) domain.TaskError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.TaskError{Code: domain.TaskErrorTimeout, Message: "generation timed out"}
	case errors.Is(err, ErrInvalidInput):
		return domain.TaskError{Code: domain.TaskErrorInvalidInput, Message: "the input could not be processed"}
	case errors.Is(err, ErrStorage):
		return domain.TaskError{Code: domain.TaskErrorStorage, Message: "the result could not be stored"}
	default:
		return domain.TaskError{Code: domain.TaskErrorGeneration, Message: "generation failed"}
	}
}
