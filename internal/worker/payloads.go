package worker

import "fmt"

// Queue names, one per job family.
const (
	QueueTranscode  = "video-transcode"
	QueueDerivative = "photo-derivative"
	QueueBundle     = "bundle"
)

// TranscodePayload drives one full video transcode. The payload carries only
// the id; the pipeline reads the source key from the video record so a
// replaced upload never transcodes a stale key.
type TranscodePayload struct {
	VideoID string `json:"video_id"`
}

// DerivativePayload drives one photo social-derivative generation.
type DerivativePayload struct {
	PhotoID string `json:"photo_id"`
}

// BundlePayload drives one album zip build.
type BundlePayload struct {
	AlbumID string `json:"album_id"`
	Variant string `json:"variant"`
}

// BundleKey is the stable job key for an album variant's bundle. Repeated
// enqueues for the same album coalesce into one pending job.
func BundleKey(albumID, variant string) string {
	return fmt.Sprintf("album-zip-%s-%s", variant, albumID)
}
