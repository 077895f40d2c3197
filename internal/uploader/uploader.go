// Package uploader names and stores transform outputs.
package uploader

import (
	"context"
	"strings"
)

// Uploader stores data under objectName and returns a URL for it. The URL may
// be empty when the backend has no public address configured.
type Uploader interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

const prefix = "transforms"

// ObjectName is where the output of jobID is stored.
func ObjectName(jobID, extension string) string {
	extension = strings.TrimPrefix(extension, ".")
	if extension == "" {
		return prefix + "/" + jobID
	}
	return prefix + "/" + jobID + "." + extension
}
