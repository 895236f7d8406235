package objectstore

import (
	"context"
	"errors"
	"net"
	"net/http"

	phonecall "github.com/drewburns/ai-phonecall"
)

// RetryableStatus reports whether an HTTP status from a storage backend is
// worth retrying.
func RetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// Transient marks err as phonecall.Temporary when it is a timeout, a network
// failure, or a response with a retryable HTTP status. Other errors are
// returned unchanged.
func Transient(err error) error {
	if err == nil || phonecall.IsTemporary(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return phonecall.Temporary(err)
	}
	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		if RetryableStatus(status.HTTPStatusCode()) {
			return phonecall.Temporary(err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return phonecall.Temporary(err)
	}
	return err
}
