package models

import "errors"

var (
	// ErrValidation marks a rejected upload; no job is created for it.
	ErrValidation = errors.New("invalid image upload")
	// ErrNotFound marks an unknown identifier or a missing variant file.
	ErrNotFound = errors.New("not found")
	// ErrDecode marks corrupt or unsupported source image data.
	ErrDecode = errors.New("decode image")
	// ErrEncode marks a failure writing a derived variant.
	ErrEncode = errors.New("encode image")
)
