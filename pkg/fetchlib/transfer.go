package fetchlib

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// parseRetryAfter extracts the integer-seconds Retry-After value from
// a 429/503 response. Returns 0 when absent or malformed.
func parseRetryAfter(resp *http.Response) int {
	v := strings.TrimSpace(resp.Header.Get(RETRY_AFTER_KEY))
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}

// classifyStatus maps an unexpected HTTP status onto the error
// taxonomy.
func classifyStatus(resp *http.Response, op string) *TransferError {
	code := resp.StatusCode
	cause := fmt.Errorf("unexpected status %s", resp.Status)
	switch {
	case code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable:
		te := NewTransferError(CategoryRateLimited, op, cause)
		if secs := parseRetryAfter(resp); secs > 0 {
			te.RetryAfter = time.Duration(secs) * time.Second
		}
		return te
	case code >= 500:
		return NewTransferError(CategoryServer, op, cause)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return NewTransferError(CategoryPermission, op, cause)
	case code == http.StatusRequestTimeout:
		return NewTransferError(CategoryTimeout, op, cause)
	default:
		// 404, 410 and the remaining 4xx family: the resource is not
		// there in a way a retry will not fix.
		return NewTransferError(CategoryNotFound, op, cause)
	}
}

// parseContentRangeTotal extracts the complete length from a
// "bytes start-end/total" header. Returns -1 when unknown.
func parseContentRangeTotal(v string) int64 {
	idx := strings.LastIndexByte(v, '/')
	if idx < 0 {
		return -1
	}
	totalStr := v[idx+1:]
	if totalStr == "*" {
		return -1
	}
	total, err := strconv.ParseInt(totalStr, 10, 64)
	if err != nil {
		return -1
	}
	return total
}

// Transfer performs single-connection HTTP range transfers with
// validator-checked resume. It owns no task state; the scheduler hands
// it a task and persists whatever the progress callback reports.
type Transfer struct {
	client *http.Client
	fs     afero.Fs
	chunk  int
}

// NewTransfer creates a transfer engine over the given client and
// destination filesystem. Nil arguments get defaults (http.DefaultClient,
// the OS filesystem).
func NewTransfer(client *http.Client, fs afero.Fs) *Transfer {
	if client == nil {
		client = http.DefaultClient
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Transfer{
		client: client,
		fs:     fs,
		chunk:  int(DEF_CHUNK_SIZE),
	}
}

// ProgressFunc receives the task after each chunk lands on disk; it is
// the persistence hook. Returning an error aborts the transfer.
type ProgressFunc func(t *Task) error

// Run downloads the task's file to its destination, resuming from
// PartialBytes when the stored validator still matches. Every chunk is
// debited from the throttle before the next one is requested. On
// return the task's PartialBytes, TotalBytes, ETag and LastModified
// reflect what is actually on disk.
func (tr *Transfer) Run(ctx context.Context, t *Task, throttle *BandwidthThrottle, onProgress ProgressFunc) error {
	// One restart is allowed: a 416 or a range-ignoring 200 discards
	// the partial data and goes again from zero.
	for attempt := 0; ; attempt++ {
		restart, err := tr.runOnce(ctx, t, throttle, onProgress)
		if err != nil {
			return err
		}
		if !restart {
			return nil
		}
		if attempt > 0 {
			return NewTransferError(CategoryServer, "range-get",
				errors.New("server keeps rejecting range requests"))
		}
	}
}

func (tr *Transfer) runOnce(ctx context.Context, t *Task, throttle *BandwidthThrottle, onProgress ProgressFunc) (restart bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return false, NewTransferError(CategoryNotFound, "request", err)
	}
	t.Headers.Apply(req.Header)
	req.Header.Set(USER_AGENT_KEY, DEF_USER_AGENT)
	if t.Priority == PriorityLow {
		// Request-level hint only; local scheduling is unaffected.
		req.Header.Set(REDUCED_PRIORITY_KEY, "1")
	}

	resuming := t.PartialBytes > 0
	if resuming {
		req.Header.Set(RANGE_KEY, fmt.Sprintf("bytes=%d-", t.PartialBytes))
		// The validator guards the partial data: if the resource
		// changed server-side, we get a full 200 instead of a 206.
		if t.ETag != "" {
			req.Header.Set(IF_RANGE_KEY, t.ETag)
		} else if t.LastModified != "" {
			req.Header.Set(IF_RANGE_KEY, t.LastModified)
		}
	}

	resp, err := tr.client.Do(req)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return false, cerr
		}
		return false, NewTransferError(CategoryNetwork, "get", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if !resuming {
			return false, NewTransferError(CategoryServer, "range-get",
				errors.New("unsolicited partial content"))
		}
		if total := parseContentRangeTotal(resp.Header.Get("Content-Range")); total > 0 {
			t.TotalBytes = total
		}
	case http.StatusOK:
		// Either a fresh download, or a range-ignoring server, or a
		// validator mismatch: anything on disk is untrustworthy.
		if err := tr.discardPartial(t, onProgress); err != nil {
			return false, err
		}
		if resp.ContentLength > 0 {
			t.TotalBytes = resp.ContentLength
		}
	case http.StatusRequestedRangeNotSatisfiable:
		if err := tr.discardPartial(t, onProgress); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, classifyStatus(resp, "range-get")
	}

	// Capture fresh validators for the next resume.
	if etag := resp.Header.Get("Etag"); etag != "" {
		t.ETag = etag
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		t.LastModified = lm
	}

	if err := tr.copyBody(ctx, t, resp.Body, throttle, onProgress); err != nil {
		return false, err
	}

	if t.TotalBytes > 0 && t.PartialBytes < t.TotalBytes {
		return false, NewTransferError(CategoryNetwork, "body",
			fmt.Errorf("short body: got %d of %d bytes", t.PartialBytes, t.TotalBytes))
	}
	if t.Checksum != "" {
		if err := tr.verifyChecksum(t); err != nil {
			return false, err
		}
	}
	return false, nil
}

// discardPartial truncates the destination and resets the resume
// cursor, persisting the reset before any new byte arrives.
func (tr *Transfer) discardPartial(t *Task, onProgress ProgressFunc) error {
	if t.PartialBytes == 0 {
		return nil
	}
	if err := tr.fs.Remove(t.Destination); err != nil && !os.IsNotExist(err) {
		return storageError("truncate", err)
	}
	t.PartialBytes = 0
	t.ETag = ""
	t.LastModified = ""
	if onProgress != nil {
		if err := onProgress(t); err != nil {
			return err
		}
	}
	return nil
}

func (tr *Transfer) copyBody(ctx context.Context, t *Task, body io.Reader, throttle *BandwidthThrottle, onProgress ProgressFunc) error {
	flags := os.O_CREATE | os.O_WRONLY
	if t.PartialBytes > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := tr.fs.OpenFile(t.Destination, flags, 0644)
	if err != nil {
		return storageError("open", err)
	}
	defer f.Close()

	src := NewThrottledReader(ctx, body, throttle)
	buf := make([]byte, tr.chunk)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return storageError("write", werr)
			}
			t.PartialBytes += int64(n)
			if t.TotalBytes > 0 && t.PartialBytes > t.TotalBytes {
				// The server sent more than it promised, so nothing
				// on disk is trustworthy. Reset the cursor before the
				// error state gets persisted; a later resume refetches
				// from zero.
				received := t.PartialBytes
				t.PartialBytes = 0
				return NewTransferError(CategoryCorruption, "body",
					fmt.Errorf("received %d bytes, expected %d", received, t.TotalBytes))
			}
			if onProgress != nil {
				if perr := onProgress(t); perr != nil {
					return perr
				}
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			if errors.Is(rerr, context.Canceled) {
				return context.Canceled
			}
			if errors.Is(rerr, ErrAcquireTimeout) || errors.Is(rerr, context.DeadlineExceeded) {
				return NewTransferError(CategoryTimeout, "consume", rerr)
			}
			return NewTransferError(CategoryNetwork, "body", rerr)
		}
	}
}

// storageError wraps a filesystem failure, distinguishing permission
// problems from disk problems.
func storageError(op string, err error) *TransferError {
	if errors.Is(err, os.ErrPermission) {
		return NewTransferError(CategoryPermission, op, err)
	}
	return NewTransferError(CategoryStorage, op, err)
}

// verifyChecksum hashes the completed destination file against the
// task's expected "algo:hex" checksum. A mismatch is a data problem,
// not a transient one.
func (tr *Transfer) verifyChecksum(t *Task) error {
	algo, want, ok := strings.Cut(t.Checksum, ":")
	if !ok {
		return NewTransferError(CategoryCorruption, "checksum",
			fmt.Errorf("malformed expected checksum %q", t.Checksum))
	}
	var h hash.Hash
	switch strings.ToLower(algo) {
	case "md5":
		h = md5.New()
	case "sha1":
		h = sha1.New()
	case "sha256":
		h = sha256.New()
	default:
		return NewTransferError(CategoryCorruption, "checksum",
			fmt.Errorf("unsupported checksum algorithm %q", algo))
	}
	f, err := tr.fs.Open(t.Destination)
	if err != nil {
		return storageError("checksum", err)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return storageError("checksum", err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, want) {
		return NewTransferError(CategoryCorruption, "checksum",
			fmt.Errorf("checksum mismatch: got %s, want %s", got, want))
	}
	return nil
}
