package media

import "testing"

func TestSniffContainer(t *testing.T) {
	tests := []struct {
		name     string
		head     []byte
		want     string
		detected bool
	}{
		{
			name:     "mp4 ftyp box",
			head:     []byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 0, 0},
			want:     "mp4",
			detected: true,
		},
		{
			name:     "quicktime ftyp box",
			head:     []byte{0x00, 0x00, 0x00, 0x14, 'f', 't', 'y', 'p', 'q', 't', ' ', ' ', 0, 0, 0, 0},
			want:     "mp4",
			detected: true,
		},
		{
			name:     "matroska ebml header",
			head:     []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x86, 0x81, 0x01, 0x42, 0xF7, 0x81},
			want:     "matroska",
			detected: true,
		},
		{
			name:     "avi riff",
			head:     []byte("RIFF\x24\x00\x00\x00AVI LIST"),
			want:     "avi",
			detected: true,
		},
		{
			name:     "mpeg program stream",
			head:     []byte{0x00, 0x00, 0x01, 0xBA, 0x44, 0x00, 0x04, 0x00, 0x04, 0x01, 0x01, 0x89},
			want:     "mpeg",
			detected: true,
		},
		{
			name:     "riff but wave not avi",
			head:     []byte("RIFF\x24\x00\x00\x00WAVEfmt "),
			detected: false,
		},
		{
			name:     "jpeg is not video",
			head:     []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01},
			detected: false,
		},
		{
			name:     "truncated header",
			head:     []byte{0x00, 0x00, 0x00},
			detected: false,
		},
		{
			name:     "empty",
			head:     nil,
			detected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SniffContainer(tt.head)
			if ok != tt.detected {
				t.Fatalf("SniffContainer detected = %v, want %v", ok, tt.detected)
			}
			if ok && got != tt.want {
				t.Errorf("SniffContainer = %q, want %q", got, tt.want)
			}
		})
	}
}
