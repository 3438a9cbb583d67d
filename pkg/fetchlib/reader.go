package fetchlib

import (
	"context"
	"io"
)

// ThrottledReader wraps an io.Reader and paces it through a
// BandwidthThrottle. Each chunk read is debited from the throttle's
// allowance before the next chunk is requested, so the transfer never
// outruns its assigned share.
type ThrottledReader struct {
	ctx      context.Context
	r        io.Reader
	throttle *BandwidthThrottle
}

// NewThrottledReader creates a throttled reader. The context bounds
// every allowance wait; cancelling it aborts an in-progress Read.
func NewThrottledReader(ctx context.Context, r io.Reader, throttle *BandwidthThrottle) *ThrottledReader {
	return &ThrottledReader{
		ctx:      ctx,
		r:        r,
		throttle: throttle,
	}
}

// Read implements io.Reader. It never reads more than one second's
// worth of the throttle's current rate in a single call.
func (t *ThrottledReader) Read(b []byte) (n int, err error) {
	if t.throttle == nil || t.throttle.IsUnlimited() {
		return t.r.Read(b)
	}

	readSize := len(b)
	if limit := t.throttle.Rate(); limit > 0 && int64(readSize) > limit {
		readSize = int(limit)
	}
	if readSize <= 0 {
		readSize = 1
	}

	n, err = t.r.Read(b[:readSize])
	if n > 0 {
		if cerr := t.throttle.Consume(t.ctx, int64(n)); cerr != nil {
			// Bytes are already in the buffer; surface them along
			// with the wait failure so the caller can persist the
			// cursor before aborting.
			return n, cerr
		}
	}
	return n, err
}

// ThrottledReadCloser wraps an io.ReadCloser with throttling.
type ThrottledReadCloser struct {
	*ThrottledReader
	closer io.Closer
}

// NewThrottledReadCloser creates a throttled ReadCloser.
func NewThrottledReadCloser(ctx context.Context, rc io.ReadCloser, throttle *BandwidthThrottle) *ThrottledReadCloser {
	return &ThrottledReadCloser{
		ThrottledReader: NewThrottledReader(ctx, rc, throttle),
		closer:          rc,
	}
}

// Close closes the underlying ReadCloser.
func (t *ThrottledReadCloser) Close() error {
	return t.closer.Close()
}
