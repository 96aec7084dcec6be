package models

// SyncError is a domain error of the sync engine
type SyncError struct {
	Message string
}

func (e SyncError) Error() string {
	return e.Message
}

var (
	ErrEmptyPhotoID     = SyncError{"photo id cannot be empty"}
	ErrInvalidTimestamp = SyncError{"photo timestamp must not be negative"}
	ErrInvalidInterval  = SyncError{"invalid time interval"}
	ErrInvalidBatchSize = SyncError{"batch size must be positive"}
	ErrMissingAnchor    = SyncError{"sync anchor set but no interval starts at it"}

	// Mirror upload errors
	ErrFileTooLarge     = SyncError{"file exceeds maximum size"}
	ErrInvalidExtension = SyncError{"file extension not allowed"}
	ErrPathTraversal    = SyncError{"path escapes the mirror root"}
	ErrNoPhotoPath      = SyncError{"photo has no file path"}
)
