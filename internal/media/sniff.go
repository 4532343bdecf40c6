package media

import "bytes"

// SniffLen is how many leading bytes SniffContainer needs.
const SniffLen = 16

// SniffContainer identifies the video container from the file's leading
// bytes. The declared content type is ignored; only magic bytes decide
// whether a file enters the encoder.
func SniffContainer(head []byte) (string, bool) {
	if len(head) < 12 {
		return "", false
	}

	// ISO BMFF (MP4, MOV): box size then "ftyp".
	if bytes.Equal(head[4:8], []byte("ftyp")) {
		return "mp4", true
	}

	// Matroska / WebM: EBML header.
	if bytes.Equal(head[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		return "matroska", true
	}

	// AVI: RIFF container with AVI form type.
	if bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("AVI ")) {
		return "avi", true
	}

	// MPEG program stream: pack start code.
	if bytes.Equal(head[0:4], []byte{0x00, 0x00, 0x01, 0xBA}) {
		return "mpeg", true
	}

	return "", false
}
