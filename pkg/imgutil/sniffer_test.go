package imgutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   Kind
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0, 0, 0}, KindJPEG},
		{"png", append(append([]byte{}, pngSig...), 0, 0, 0, 13), KindPNG},
		{"tiff le", []byte{0x49, 0x49, 0x2a, 0x00, 8, 0, 0, 0}, KindTIFF},
		{"tiff be", []byte{0x4d, 0x4d, 0x00, 0x2a, 0, 0, 0, 8}, KindTIFF},
		{"bare svg", []byte("  <svg xmlns=\"http://www.w3.org/2000/svg\"/>"), KindSVG},
		{"xml svg", []byte("\xef\xbb\xbf<?xml version=\"1.0\"?>\n<svg/>"), KindSVG},
		{"xml other", []byte("<?xml version=\"1.0\"?><feed/>"), KindUnknown},
		{"text", []byte("hello world"), KindUnknown},
		{"empty", nil, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.header))
		})
	}
}

func TestSniffShortInput(t *testing.T) {
	kind, err := SniffReader(bytes.NewReader([]byte{0xff, 0xd8, 0xff}))
	require.NoError(t, err)
	assert.Equal(t, KindJPEG, kind)

	kind, err = SniffReader(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, kind)
}

func TestSniffFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.svg")
	require.NoError(t, os.WriteFile(path, []byte("<svg></svg>"), 0o644))

	kind, err := SniffFile(path)
	require.NoError(t, err)
	assert.Equal(t, KindSVG, kind)
	assert.Equal(t, "svg", kind.String())

	_, err = SniffFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
