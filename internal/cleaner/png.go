package cleaner

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
)

var (
	pngSignature = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	errBadPNG    = errors.New("invalid PNG signature")
	errPNGChunk  = errors.New("PNG chunk length out of range")
)

const (
	maxPNGChunkLen = 1<<31 - 1
	// keywords are 1-79 bytes followed by a NUL separator
	maxPNGKeyLen = 80
)

type pngChunkFunc func(name string, length uint32, br *bufio.Reader) (keep bool, err error)

// walkPNG reads chunks after the signature until IEND or EOF. visit either
// consumes the chunk data and CRC itself (keep=false) or leaves them for
// walkPNG to copy to w (keep=true). w may be nil.
func walkPNG(r io.Reader, w io.Writer, visit pngChunkFunc) error {
	br := bufio.NewReader(r)
	var bw *bufio.Writer
	if w != nil {
		bw = bufio.NewWriter(w)
	}

	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(br, sig); err != nil {
		return err
	}
	if !bytes.Equal(sig, pngSignature) {
		return errBadPNG
	}
	if bw != nil {
		if _, err := bw.Write(sig); err != nil {
			return err
		}
	}

	var header [8]byte
	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		length := binary.BigEndian.Uint32(header[:4])
		if length > maxPNGChunkLen {
			return errPNGChunk
		}
		name := string(header[4:])

		keep, err := visit(name, length, br)
		if err != nil {
			return err
		}
		if keep {
			if bw != nil {
				if _, err := bw.Write(header[:]); err != nil {
					return err
				}
				if _, err := io.CopyN(bw, br, int64(length)+4); err != nil {
					return err
				}
			} else if _, err := io.CopyN(io.Discard, br, int64(length)+4); err != nil {
				return err
			}
		}
		if name == "IEND" {
			break
		}
	}

	if bw != nil {
		return bw.Flush()
	}
	return nil
}

// stripPNG copies a PNG without its text, time, EXIF and (optionally) ICC
// chunks and returns how many chunks were dropped.
func stripPNG(r io.Reader, w io.Writer, preserveICC bool) (int, error) {
	dropped := 0
	err := walkPNG(r, w, func(name string, length uint32, br *bufio.Reader) (bool, error) {
		if !dropPNGChunk(name, preserveICC) {
			return true, nil
		}
		dropped++
		_, err := io.CopyN(io.Discard, br, int64(length)+4)
		return false, err
	})
	return dropped, err
}

func dropPNGChunk(name string, preserveICC bool) bool {
	switch name {
	case "tEXt", "zTXt", "iTXt", "eXIf", "tIME":
		return true
	case "iCCP":
		return !preserveICC
	}
	return false
}

// pngLeaks counts text chunks whose keyword identifies location or device,
// plus embedded EXIF blocks.
func pngLeaks(r io.Reader) (int, error) {
	leaks := 0
	err := walkPNG(r, nil, func(name string, length uint32, br *bufio.Reader) (bool, error) {
		switch name {
		case "tEXt", "zTXt", "iTXt":
			head := make([]byte, min(length, maxPNGKeyLen))
			if _, err := io.ReadFull(br, head); err != nil {
				return false, err
			}
			if _, err := io.CopyN(io.Discard, br, int64(length)-int64(len(head))+4); err != nil {
				return false, err
			}
			if sensitivePNGKey(pngTextKey(head)) {
				leaks++
			}
			return false, nil
		case "eXIf":
			leaks++
		}
		return true, nil
	})
	return leaks, err
}

func pngTextKey(data []byte) string {
	idx := bytes.IndexByte(data, 0)
	if idx <= 0 {
		return ""
	}
	return string(data[:idx])
}

func sensitivePNGKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"gps", "latitude", "longitude", "model", "make", "serial"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
