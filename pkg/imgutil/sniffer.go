package imgutil

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// Kind identifies a file type recognised by its leading bytes.
type Kind int

const (
	KindUnknown Kind = iota
	KindJPEG
	KindPNG
	KindTIFF
	KindSVG
)

func (k Kind) String() string {
	switch k {
	case KindJPEG:
		return "jpeg"
	case KindPNG:
		return "png"
	case KindTIFF:
		return "tiff"
	case KindSVG:
		return "svg"
	default:
		return "unknown"
	}
}

// SniffLen is the number of bytes Detect looks at.
const SniffLen = 512

var (
	pngSig    = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	jpegSig   = []byte{0xff, 0xd8, 0xff}
	tiffSigLE = []byte{0x49, 0x49, 0x2a, 0x00}
	tiffSigBE = []byte{0x4d, 0x4d, 0x00, 0x2a}
	utf8BOM   = []byte{0xef, 0xbb, 0xbf}
)

// Detect classifies header, which should hold the first SniffLen bytes of
// a file (or the whole file if it is shorter).
func Detect(header []byte) Kind {
	switch {
	case bytes.HasPrefix(header, jpegSig):
		return KindJPEG
	case bytes.HasPrefix(header, pngSig):
		return KindPNG
	case bytes.HasPrefix(header, tiffSigLE), bytes.HasPrefix(header, tiffSigBE):
		return KindTIFF
	case looksLikeSVG(header):
		return KindSVG
	}
	return KindUnknown
}

func looksLikeSVG(header []byte) bool {
	text := bytes.TrimLeft(bytes.TrimPrefix(header, utf8BOM), " \t\r\n")
	if bytes.HasPrefix(text, []byte("<svg")) {
		return true
	}
	if bytes.HasPrefix(text, []byte("<?xml")) || bytes.HasPrefix(text, []byte("<!DOCTYPE svg")) {
		return bytes.Contains(text, []byte("<svg"))
	}
	return false
}

// SniffFile reads the head of the file at path to determine its type.
func SniffFile(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()

	return SniffReader(f)
}

// SniffReader reads up to SniffLen bytes from r and determines its type.
// Files shorter than that are classified on what is there.
func SniffReader(r io.Reader) (Kind, error) {
	header := make([]byte, SniffLen)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return KindUnknown, err
	}
	return Detect(header[:n]), nil
}
