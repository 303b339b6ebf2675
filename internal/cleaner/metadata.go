package cleaner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"scour/internal/engine"
	"scour/pkg/imgutil"
)

type MetadataOptions struct {
	PreserveICC bool
}

// Metadata strips EXIF, XMP, IPTC, text and (optionally) ICC metadata from
// JPEG and PNG files.
type Metadata struct {
	opts   MetadataOptions
	logger *slog.Logger
}

func NewMetadata(opts MetadataOptions, logger *slog.Logger) *Metadata {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Metadata{opts: opts, logger: logger.With(slog.String("component", "metadata"))}
}

// Supports reports whether kind can be cleaned.
func (m *Metadata) Supports(kind imgutil.Kind) bool {
	return kind == imgutil.KindJPEG || kind == imgutil.KindPNG
}

func (m *Metadata) Clean(ctx context.Context, input, output string) (engine.Outcome, error) {
	start := time.Now()

	src, err := os.Open(input)
	if err != nil {
		return engine.Outcome{}, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return engine.Outcome{}, err
	}

	kind, err := imgutil.SniffReader(src)
	if err != nil {
		return engine.Outcome{}, err
	}
	if !m.Supports(kind) {
		return engine.Outcome{}, fmt.Errorf("unsupported file type %s", kind)
	}

	leaks, err := m.countLeaks(src, kind)
	if err != nil {
		return engine.Outcome{}, fmt.Errorf("analyze %s: %w", kind, err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return engine.Outcome{}, err
	}

	out, err := stageOutput(output, info.Mode())
	if err != nil {
		return engine.Outcome{}, err
	}
	defer out.discard()

	r := ctxReader{ctx: ctx, r: src}
	var dropped int
	switch kind {
	case imgutil.KindJPEG:
		dropped, err = stripJPEG(r, out.file, m.opts.PreserveICC)
	case imgutil.KindPNG:
		dropped, err = stripPNG(r, out.file, m.opts.PreserveICC)
	}
	if err != nil {
		return engine.Outcome{}, fmt.Errorf("strip %s: %w", kind, err)
	}
	if err := out.commit(ctx); err != nil {
		return engine.Outcome{}, err
	}

	after, err := fileSize(output)
	if err != nil {
		return engine.Outcome{}, err
	}

	m.logger.Debug("stripped",
		slog.String("input", input),
		slog.String("kind", kind.String()),
		slog.Int("dropped", dropped),
		slog.Int("leaks", leaks),
	)
	return engine.Outcome{
		SizeBefore: info.Size(),
		SizeAfter:  after,
		Elapsed:    time.Since(start),
		Leaks:      leaks,
	}, nil
}

func (m *Metadata) countLeaks(src *os.File, kind imgutil.Kind) (int, error) {
	switch kind {
	case imgutil.KindJPEG:
		return exifLeaks(src)
	case imgutil.KindPNG:
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return 0, err
		}
		return pngLeaks(src)
	}
	return 0, nil
}
