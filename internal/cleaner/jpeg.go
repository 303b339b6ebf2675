package cleaner

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	markerSOI  = 0xd8
	markerEOI  = 0xd9
	markerSOS  = 0xda
	markerTEM  = 0x01
	markerAPP1 = 0xe1
	markerAPP2 = 0xe2
	markerAPPD = 0xed
)

var (
	jpegExifHeader = []byte("Exif\x00\x00")
	jpegXmpHeader  = []byte("http://ns.adobe.com/xap/1.0/\x00")
	jpegPhotoshop  = []byte("Photoshop 3.0\x00")
	jpegICCHeader  = []byte("ICC_PROFILE\x00")

	errBadJPEG = errors.New("invalid JPEG stream")
)

// stripJPEG copies a JPEG from r to w without its metadata segments and
// returns how many segments were dropped. Markers between scans are
// filtered like header segments; anything after EOI is dropped. A stream
// that ends inside scan data is copied as far as it goes.
func stripJPEG(r io.Reader, w io.Writer, preserveICC bool) (int, error) {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)
	dropped := 0

	var soi [2]byte
	if _, err := io.ReadFull(br, soi[:]); err != nil {
		return 0, err
	}
	if soi[0] != 0xff || soi[1] != markerSOI {
		return 0, errBadJPEG
	}
	if _, err := bw.Write(soi[:]); err != nil {
		return 0, err
	}

	marker, err := nextJPEGMarker(br)
	for {
		if err != nil {
			return dropped, err
		}

		switch {
		case marker == markerEOI:
			if _, err := bw.Write([]byte{0xff, markerEOI}); err != nil {
				return dropped, err
			}
			return dropped, bw.Flush()
		case marker == markerTEM || (marker >= 0xd0 && marker <= 0xd7):
			// standalone markers carry no length
			if _, err := bw.Write([]byte{0xff, marker}); err != nil {
				return dropped, err
			}
			marker, err = nextJPEGMarker(br)
			continue
		}

		var lenBuf [2]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return dropped, err
		}
		segLen := int(binary.BigEndian.Uint16(lenBuf[:]))
		if segLen < 2 {
			return dropped, errBadJPEG
		}
		payloadLen := segLen - 2

		if marker != markerAPP1 && marker != markerAPP2 && marker != markerAPPD {
			if _, err := bw.Write([]byte{0xff, marker, lenBuf[0], lenBuf[1]}); err != nil {
				return dropped, err
			}
			if _, err := io.CopyN(bw, br, int64(payloadLen)); err != nil {
				return dropped, err
			}
			if marker == markerSOS {
				marker, err = copyJPEGScan(br, bw)
				if err == io.EOF {
					return dropped, bw.Flush()
				}
				continue
			}
			marker, err = nextJPEGMarker(br)
			continue
		}

		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(br, payload); err != nil {
			return dropped, err
		}
		if dropJPEGSegment(marker, payload, preserveICC) {
			dropped++
		} else {
			if _, err := bw.Write([]byte{0xff, marker, lenBuf[0], lenBuf[1]}); err != nil {
				return dropped, err
			}
			if _, err := bw.Write(payload); err != nil {
				return dropped, err
			}
		}
		marker, err = nextJPEGMarker(br)
	}
}

// copyJPEGScan copies entropy-coded data up to the next real marker, which
// it consumes and returns. Stuffed zero bytes and restart markers belong to
// the scan and are copied.
func copyJPEGScan(br *bufio.Reader, bw *bufio.Writer) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != 0xff {
			if err := bw.WriteByte(b); err != nil {
				return 0, err
			}
			continue
		}

		next, err := br.ReadByte()
		for err == nil && next == 0xff {
			next, err = br.ReadByte()
		}
		if err != nil {
			return 0, err
		}
		if next == 0x00 || (next >= 0xd0 && next <= 0xd7) {
			if _, err := bw.Write([]byte{0xff, next}); err != nil {
				return 0, err
			}
			continue
		}
		return next, nil
	}
}

// nextJPEGMarker skips fill bytes and returns the next marker code.
func nextJPEGMarker(br *bufio.Reader) (byte, error) {
	b, err := br.ReadByte()
	for err == nil && b != 0xff {
		b, err = br.ReadByte()
	}
	for err == nil && b == 0xff {
		b, err = br.ReadByte()
	}
	return b, err
}

func dropJPEGSegment(marker byte, payload []byte, preserveICC bool) bool {
	switch marker {
	case markerAPP1:
		return bytes.HasPrefix(payload, jpegExifHeader) || bytes.HasPrefix(payload, jpegXmpHeader)
	case markerAPPD:
		return bytes.HasPrefix(payload, jpegPhotoshop)
	case markerAPP2:
		return !preserveICC && bytes.HasPrefix(payload, jpegICCHeader)
	}
	return false
}
