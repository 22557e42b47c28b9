package auth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/vision/v1"

	"drive-ocr/internal/internalerr"
)

// Scopes covers recognition, storage and document access.
var Scopes = []string{
	vision.CloudPlatformScope,
	drive.DriveScope,
	docs.DocumentsScope,
}

// Obtain loads the service account key at path and scopes it for all three services.
func Obtain(ctx context.Context, path string) (*google.Credentials, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: credentials path is empty", internalerr.ErrConfiguration)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read credentials: %w", internalerr.ErrConfiguration, err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: parse credentials: %w", internalerr.ErrConfiguration, err)
	}
	return creds, nil
}

// ClientOptions returns the options every service client is built with.
func ClientOptions(creds *google.Credentials) []option.ClientOption {
	return []option.ClientOption{option.WithCredentials(creds)}
}
