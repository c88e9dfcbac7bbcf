// Package output persists the encoded artifact.
package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/John-Robertt/submerge-go/internal/model"
)

const lockRetryDelay = 100 * time.Millisecond

type WriteError struct {
	AppError model.AppError
	Cause    error
}

func (e *WriteError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

func writeError(path, message string, cause error) error {
	return &WriteError{
		AppError: model.AppError{
			Code:    "OUTPUT_ERROR",
			Message: message,
			Stage:   "output",
			URL:     path,
		},
		Cause: cause,
	}
}

// LockPath is the lock file guarding path.
func LockPath(path string) string { return path + ".lock" }

// Write replaces path with content. Concurrent writers are serialised
// through a lock on LockPath(path); readers only ever see the old or the
// new file because the content goes through a temp file and a rename.
func Write(ctx context.Context, path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return writeError(path, "创建输出目录失败", err)
	}

	lock := flock.New(LockPath(path))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return writeError(path, "获取输出文件锁失败", err)
	}
	if !locked {
		return writeError(path, "获取输出文件锁失败", ctx.Err())
	}
	defer func() { _ = lock.Unlock() }()

	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return writeError(path, "创建临时文件失败", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.WriteString(content); err != nil {
		_ = tmpFile.Close()
		return writeError(path, "写入临时文件失败", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return writeError(path, "写入临时文件失败", err)
	}
	if err := tmpFile.Close(); err != nil {
		return writeError(path, "写入临时文件失败", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return writeError(path, "设置文件权限失败", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return writeError(path, "替换输出文件失败", err)
	}

	success = true
	return nil
}

// Read returns the content of an artifact written by Write.
func Read(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", writeError(path, "读取文件失败", err)
	}
	return string(b), nil
}
