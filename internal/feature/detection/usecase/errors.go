// Package usecase はdetectionフィーチャーのビジネスロジックを実装します。
package usecase

import "errors"

var (
	// ErrNoFile is returned when the upload has no file part or an empty filename.
	ErrNoFile = errors.New("no file selected")

	// ErrDisallowedExtension is returned when the upload's extension is not an accepted image type.
	ErrDisallowedExtension = errors.New("file extension not allowed")

	// ErrInvalidImage is returned when a saved upload is not a structurally valid image.
	ErrInvalidImage = errors.New("invalid image")

	// ErrProcessingFailed is returned when decoding, tensor shaping or inference fails.
	ErrProcessingFailed = errors.New("processing failed")

	// ErrInferenceUnavailable is returned by classifiers whose model could not be loaded at startup.
	ErrInferenceUnavailable = errors.New("inference unavailable")

	// ErrStorage is returned when the upload directory or the detection store fails.
	ErrStorage = errors.New("storage failure")

	// ErrDetectionNotFound is returned when a detection does not exist or belongs to another session.
	ErrDetectionNotFound = errors.New("detection not found")

	// ErrDuplicateFilename is returned when a stored filename collides with an existing record.
	ErrDuplicateFilename = errors.New("duplicate filename")
)
