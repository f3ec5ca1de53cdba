package main

import (
	"errors"

	"github.com/openmined/modsync/internal/transfer"
)

// presignedURLHint suggests a fix when the object store refused one of our
// presigned URLs. It returns "" for any other error.
func presignedURLHint(err error) string {
	var terr *transfer.TransportError
	if !errors.As(err, &terr) || !terr.IsPresignedURLError() {
		return ""
	}

	switch terr.Code {
	case transfer.CodePresignedURLExpired, transfer.CodePresignedURLInvalid:
		return "check the system clock and the access_key/secret_key in the config"
	case transfer.CodePresignedURLForbidden:
		return "check that the access key may read the bucket"
	case transfer.CodePresignedURLNotFound:
		return "the manifest lists a file the bucket does not hold, republish the pack"
	case transfer.CodePresignedURLRateLimit:
		return "the object store is rate limiting, try again later"
	default:
		return ""
	}
}
