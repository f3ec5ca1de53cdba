package transfer

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	CodeTransport             = "E_TRANSPORT"                // connection, dns or tls failure
	CodeWriteFailed           = "E_WRITE_FAILED"             // local file could not be written
	CodeInternalError         = "E_INTERNAL_ERROR"           // object store returned 5xx
	CodeUnknownError          = "E_UNKNOWN_ERR"              // any other non-2xx status
	CodePresignedURLErrors    = "E_PRESIGNED_URL"            // prefix for all presigned url errors
	CodePresignedURLExpired   = "E_PRESIGNED_URL_EXPIRED"    // presigned URL has expired
	CodePresignedURLInvalid   = "E_PRESIGNED_URL_INVALID"    // signature does not match
	CodePresignedURLForbidden = "E_PRESIGNED_URL_FORBIDDEN"  // access denied to presigned URL
	CodePresignedURLNotFound  = "E_PRESIGNED_URL_NOT_FOUND"  // object not found via presigned URL
	CodePresignedURLRateLimit = "E_PRESIGNED_URL_RATE_LIMIT" // rate limited by the object store
)

// TransportError is returned by every transfer when the request fails, the
// server answers with a non-2xx status or the body cannot be written locally.
type TransportError struct {
	Op         string
	URL        string // presigned URL without its query, signatures never end up in logs
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "transfer: %s %q", e.Op, e.URL)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": http %d", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " - %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsPresignedURLError reports whether the object store rejected the URL itself.
func (e *TransportError) IsPresignedURLError() bool {
	return strings.HasPrefix(e.Code, CodePresignedURLErrors)
}

// classifyStatus maps an object store error response to a code and a short message.
func classifyStatus(status int, body string) (code, message string) {
	switch status {
	case http.StatusForbidden:
		switch {
		case strings.Contains(body, "expired"):
			return CodePresignedURLExpired, "expired"
		case strings.Contains(body, "SignatureDoesNotMatch"):
			return CodePresignedURLInvalid, "invalid"
		default:
			return CodePresignedURLForbidden, "access denied"
		}
	case http.StatusNotFound:
		return CodePresignedURLNotFound, "not found"
	case http.StatusTooManyRequests:
		return CodePresignedURLRateLimit, "rate limit exceeded"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return CodeInternalError, http.StatusText(status)
	default:
		return CodeUnknownError, http.StatusText(status)
	}
}
