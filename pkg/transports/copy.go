package transports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ChunkSize is the buffer size used for binary file transfer.
const ChunkSize = 16 * 1024

// ErrShortWrite is returned when a chunk was not written in full.
var ErrShortWrite = errors.New("chunk write did not match read")

// CopyChunked copies src to dst through a ChunkSize buffer until EOF,
// checking ctx between chunks. Every chunk must be written in full.
func CopyChunked(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, fmt.Errorf("%w: read %d, wrote %d", ErrShortWrite, nr, nw)
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			return written, rerr
		}
	}
}

// ShellQuote quotes an argument for a POSIX shell. Arguments made only of
// safe characters are returned unchanged.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	unsafe := strings.IndexFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		}
		switch r {
		case '-', '_', '.', '/', '@', ':', ',', '+', '=':
			return false
		}
		return true
	})
	if unsafe == -1 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// QuoteAll quotes each argument and joins them with spaces.
func QuoteAll(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = ShellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// ToValidText converts raw bytes to a string, replacing invalid UTF-8.
func ToValidText(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// FormatMode renders a permission mode as octal without a leading zero,
// e.g. 0644 becomes "644".
func FormatMode(mode uint32) string {
	return fmt.Sprintf("%o", mode&0o7777)
}
