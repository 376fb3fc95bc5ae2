package imports

import (
	"errors"
	"fmt"

	"github.com/rpattn/orderimport/internal/mapping"
	"github.com/rpattn/orderimport/internal/repository"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("import does not belong to the acting user")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInvalidState          = errors.New("operation is not allowed in the current import status")
	ErrNotReady              = errors.New("import is not ready for processing")
	ErrInvalidMappingFormat  = mapping.ErrInvalidMappingFormat
	ErrMappingClientMismatch = errors.New("mapping does not belong to client")
	ErrEmptyFile             = errors.New("uploaded file is empty")
	ErrFileTooLarge          = errors.New("uploaded file exceeds the size limit")
	ErrConflict              = errors.New("import was modified concurrently")
)

// DecodeError reports that an uploaded file could not be parsed as a table.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "failed to parse file: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StorageError reports an unexpected object-store failure.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("object store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// translateRepoError maps repository sentinels onto the service taxonomy
// while keeping the original error in the chain.
func translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrVersionConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return err
	}
}
