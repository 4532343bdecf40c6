package media

import "errors"

var (
	ErrEmptySource          = errors.New("media: source file is empty")
	ErrUnsupportedContainer = errors.New("media: unsupported video container")
	ErrNoVideoStream        = errors.New("media: no video stream")
	ErrProbeFailed          = errors.New("media: probe failed")
	ErrEncodeFailed         = errors.New("media: encode failed")
)

// FailureMessage maps a pipeline error to the viewer-facing message stored
// on the asset record. Internal detail stays in logs.
func FailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptySource):
		return "The uploaded file is empty."
	case errors.Is(err, ErrUnsupportedContainer):
		return "This file is not a supported video format."
	case errors.Is(err, ErrNoVideoStream):
		return "The file does not contain a video stream."
	case errors.Is(err, ErrProbeFailed):
		return "The video metadata could not be read. The file may be corrupt."
	case errors.Is(err, ErrEncodeFailed):
		return "Video encoding failed."
	default:
		return "Video processing failed."
	}
}
