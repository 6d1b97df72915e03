package domain

import "errors"

var (
	// ErrSyncAlreadyRunning is returned when a sync cycle is requested for an
	// account that already has a non-terminal progress record.
	ErrSyncAlreadyRunning = errors.New("sync already in progress for this account")

	// ErrNoRefreshToken means the stored account has no refresh token; the user
	// must reconnect the account.
	ErrNoRefreshToken = errors.New("no refresh token available, please re-authenticate")

	// ErrReauthRequired means the provider rejected the refresh token.
	ErrReauthRequired = errors.New("refresh token rejected, please re-authenticate")

	// ErrNotFound is returned by repositories when an entity does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrMessageGone means the provider no longer has a listed message, for
	// example because it was deleted between listing and fetching.
	ErrMessageGone = errors.New("message no longer exists at the provider")

	// ErrDuplicateName is returned when a category name collides for the same user.
	ErrDuplicateName = errors.New("a category with this name already exists")

	// ErrInvalidPriority is returned when a category priority falls outside 1-10.
	ErrInvalidPriority = errors.New("priority must be between 1 and 10")
)
