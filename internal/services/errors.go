package services

import (
	"errors"

	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
)

// Errors returned by the messaging core. Callers classify with errors.Is;
// every returned error wraps exactly one of these or is an infrastructure failure.
var (
	ErrInvalidIdentity = identity.ErrInvalid
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidContent  = errors.New("invalid content")
	ErrUploadFailed    = errors.New("upload failed")
	ErrConflict        = errors.New("conflict")
)
