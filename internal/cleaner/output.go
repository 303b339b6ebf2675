package cleaner

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// stagedOutput is a temp file next to the final destination. Nothing is
// visible at the destination until commit succeeds.
type stagedOutput struct {
	file *os.File
	dest string
}

func stageOutput(dest string, mode fs.FileMode) (*stagedOutput, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, "scour-*"+filepath.Ext(dest))
	if err != nil {
		return nil, err
	}
	if err := tmp.Chmod(mode.Perm()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, err
	}
	return &stagedOutput{file: tmp, dest: dest}, nil
}

func (s *stagedOutput) Path() string {
	return s.file.Name()
}

// commit flushes the temp file and moves it over the destination.
func (s *stagedOutput) commit(ctx context.Context) error {
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return err
	}
	if err := s.file.Close(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return replaceFile(s.file.Name(), s.dest)
}

// discard removes the temp file. It is a no-op after a successful commit.
func (s *stagedOutput) discard() {
	_ = s.file.Close()
	_ = os.Remove(s.file.Name())
}

func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}

// ctxReader fails the next Read once ctx is done so long copies can be
// abandoned.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
