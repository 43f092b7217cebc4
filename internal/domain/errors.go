package domain

import "errors"

var (
	ErrValidation          = errors.New("invalid input")
	ErrMissingField        = errors.New("missing required field")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInputFetch          = errors.New("input fetch failed")
	ErrStorageUpload       = errors.New("storage upload failed")
	ErrPromptSynthesis     = errors.New("prompt synthesis failed")
	ErrImageSynthesis      = errors.New("image synthesis failed")
	ErrVideoSynthesis      = errors.New("video synthesis failed")
)
