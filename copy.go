package gpgkit

import (
	"errors"
	"io"
	"log/slog"
)

// copyChunkSize is the read size used when feeding input to gpg.
const copyChunkSize = 1024

// copyData pumps src into dst in fixed-size chunks until src is exhausted,
// then closes dst. A write failure (typically a broken pipe because gpg
// exited early) is logged and ends the copy; it is not retried. dst is
// closed on every path. Returns the number of bytes written.
func copyData(src io.Reader, dst io.WriteCloser, logger *slog.Logger) int64 {
	var sent int64
	defer func() {
		if err := dst.Close(); err != nil {
			logger.Debug("closing input stream", "error", err)
			return
		}
		logger.Debug("closed input stream", "bytes_sent", sent)
	}()

	if src == nil {
		return 0
	}

	buf := make([]byte, copyChunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			written, err := dst.Write(buf[:n])
			sent += int64(written)
			if err != nil {
				logger.Warn("error sending data", "bytes_sent", sent, "error", err)
				return sent
			}
			logger.Debug("sent chunk", "bytes_sent", sent)
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				logger.Warn("error reading input", "bytes_sent", sent, "error", readErr)
			}
			return sent
		}
	}
}
