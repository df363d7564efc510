package netfs

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	ErrPathUnreachable  = errs.Class("path unreachable")
	ErrRetriesExhausted = errs.Class("all retries exhausted")
	ErrUnknownIO        = errs.Class("unknown io error")
)

type Config struct {
	MaxRetries     int           `help:"write attempts per target" default:"3"`
	RetryDelay     time.Duration `help:"fixed delay between attempts" default:"2s"`
	AttemptTimeout time.Duration `help:"time box for one attempt" default:"10s"`
	Sftp           SftpConfig
}

// Writer places script artifacts at local or UNC network targets. The
// destination is a shared, unreliable network filesystem, so every write
// retries and a failed direct write falls back to a local temp file plus a
// separate retrying copy.
type Writer struct {
	conf    *Config
	log     *zap.Logger
	local   FS
	network FS
}

func NewWriter(conf *Config, log *zap.Logger) *Writer {
	var network FS = osFS{}
	if conf.Sftp.Host != "" {
		network = newSftpFS(conf.Sftp)
	}
	return newWriterFS(conf, log, osFS{}, network)
}

func newWriterFS(conf *Config, log *zap.Logger, local, network FS) *Writer {
	return &Writer{conf: conf, log: log, local: local, network: network}
}

// WriteArtifact writes content to target and returns the bytes written.
// Failures come back as ErrPathUnreachable, ErrRetriesExhausted or
// ErrUnknownIO wrapping the last underlying error.
func (w *Writer) WriteArtifact(ctx context.Context, target string, content []byte) (int, error) {
	network := IsNetworkPath(target)
	fs := w.local
	if network {
		fs = w.network
	}
	if err := w.checkParent(fs, target); err != nil {
		return 0, err
	}
	n, directErr := w.writeRetry(ctx, fs, target, content, network)
	if directErr == nil {
		return n, nil
	}
	w.log.Warn("direct write failed, trying temp file fallback",
		zap.String("target", target), zap.Error(directErr))
	n, fallbackErr := w.fallbackCopy(ctx, fs, target, content, network)
	if fallbackErr == nil {
		return n, nil
	}
	w.log.Error("fallback copy failed",
		zap.String("target", target), zap.Error(fallbackErr))
	return 0, directErr
}

func (w *Writer) checkParent(fs FS, target string) error {
	dir := parentDir(target)
	info, err := fs.Stat(dir)
	if err != nil {
		w.log.Error("target directory unreachable",
			zap.String("target", target), zap.String("dir", dir),
			zap.Bool("dir_exists", false), zap.Error(err))
		return ErrPathUnreachable.Wrap(err)
	}
	if !info.IsDir() {
		w.log.Error("target parent is not a directory",
			zap.String("target", target), zap.String("dir", dir))
		return ErrPathUnreachable.New("%s is not a directory", dir)
	}
	if info.Mode().Perm()&0o200 == 0 {
		w.log.Error("target directory not writable",
			zap.String("target", target), zap.String("dir", dir),
			zap.Bool("dir_exists", true), zap.String("mode", info.Mode().String()))
		return ErrPathUnreachable.New("%s is not writable", dir)
	}
	return nil
}

// writeRetry runs up to MaxRetries attempts with the fixed delay between
// them. A timed-out attempt counts against the budget, it does not abort
// the whole call.
func (w *Writer) writeRetry(ctx context.Context, fs FS, target string, content []byte, network bool) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= w.conf.MaxRetries; attempt++ {
		n, err := w.attemptOnce(ctx, func() (int, error) {
			return writeOnce(fs, target, content, network)
		})
		if err == nil {
			w.log.Info("artifact written",
				zap.String("target", target), zap.Int("attempt", attempt), zap.Int("bytes", n))
			return n, nil
		}
		lastErr = err
		w.log.Warn("artifact write attempt failed",
			zap.String("target", target), zap.Int("attempt", attempt),
			zap.Int("max_retries", w.conf.MaxRetries), zap.Bool("network", network),
			zap.Error(err))
		if attempt < w.conf.MaxRetries {
			select {
			case <-time.After(w.conf.RetryDelay):
			case <-ctx.Done():
				return 0, ErrRetriesExhausted.Wrap(ctx.Err())
			}
		}
	}
	return 0, ErrRetriesExhausted.New("target %s after %d attempts: %v", target, w.conf.MaxRetries, lastErr)
}

// attemptOnce time-boxes one write so a hung network filesystem cannot
// stall the caller past AttemptTimeout.
func (w *Writer) attemptOnce(ctx context.Context, f func() (int, error)) (int, error) {
	actx, cancel := context.WithTimeout(ctx, w.conf.AttemptTimeout)
	defer cancel()
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := f()
		done <- result{n, err}
	}()
	select {
	case r := <-done:
		return r.n, r.err
	case <-actx.Done():
		return 0, actx.Err()
	}
}

func writeOnce(fs FS, target string, content []byte, network bool) (int, error) {
	if !network {
		if err := fs.WriteFile(target, content, 0o644); err != nil {
			return 0, err
		}
		return len(content), nil
	}
	wc, err := fs.OpenWrite(target)
	if err != nil {
		return 0, err
	}
	n, err := wc.Write(content)
	if err != nil {
		_ = wc.Close()
		return n, err
	}
	if err = wc.Close(); err != nil {
		return n, err
	}
	return n, nil
}

// fallbackCopy stages content in a local temp file and runs a separate
// retrying copy to the final target. The temp file is removed whether or
// not the copy succeeds.
func (w *Writer) fallbackCopy(ctx context.Context, fs FS, target string, content []byte, network bool) (int, error) {
	tmp, err := os.CreateTemp("", "shipper-artifact-"+uuid.NewString())
	if err != nil {
		return 0, ErrUnknownIO.Wrap(err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err = tmp.Write(content); err != nil {
		_ = tmp.Close()
		return 0, ErrUnknownIO.Wrap(err)
	}
	if err = tmp.Close(); err != nil {
		return 0, ErrUnknownIO.Wrap(err)
	}
	var lastErr error
	for attempt := 1; attempt <= w.conf.MaxRetries; attempt++ {
		n, err := w.attemptOnce(ctx, func() (int, error) {
			return copyOnce(fs, tmpName, target)
		})
		if err == nil {
			w.log.Info("artifact written via temp file fallback",
				zap.String("target", target), zap.String("temp", tmpName),
				zap.Int("attempt", attempt), zap.Int("bytes", n))
			return n, nil
		}
		lastErr = err
		w.log.Warn("fallback copy attempt failed",
			zap.String("target", target), zap.String("temp", tmpName),
			zap.Int("attempt", attempt), zap.Error(err))
		if attempt < w.conf.MaxRetries {
			select {
			case <-time.After(w.conf.RetryDelay):
			case <-ctx.Done():
				return 0, ErrRetriesExhausted.Wrap(ctx.Err())
			}
		}
	}
	return 0, ErrRetriesExhausted.New("fallback copy to %s after %d attempts: %v", target, w.conf.MaxRetries, lastErr)
}

func copyOnce(fs FS, src, target string) (int, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = in.Close()
	}()
	out, err := fs.OpenWrite(target)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return int(n), err
	}
	if err = out.Close(); err != nil {
		return int(n), err
	}
	return int(n), nil
}
