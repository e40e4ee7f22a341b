package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

const signedURLTTL = 15 * time.Minute

// GCSUploader stores renders in a Google Cloud Storage bucket, one
// animations/<uuid>/ prefix per render holding the GLB and its script.
type GCSUploader struct {
	client *storage.Client
	bucket string
}

func NewGCSUploader(ctx context.Context, bucket string) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket}, nil
}

// Upload writes both files and returns a V4 signed URL for the GLB.
func (u *GCSUploader) Upload(ctx context.Context, glbPath, scriptPath string) (string, time.Time, error) {
	prefix := "animations/" + uuid.New().String()
	glbObject := prefix + "/animation.glb"

	if err := u.writeObject(ctx, glbObject, glbPath, "model/gltf-binary"); err != nil {
		return "", time.Time{}, err
	}
	// The script rides along for debugging failed renders; its upload
	// failing is not worth failing the request over.
	_ = u.writeObject(ctx, prefix+"/script.py", scriptPath, "text/x-python")

	expires := time.Now().Add(signedURLTTL)
	url, err := u.client.Bucket(u.bucket).SignedURL(glbObject, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: expires,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing url for %s: %w", glbObject, err)
	}
	return url, expires, nil
}

func (u *GCSUploader) writeObject(ctx context.Context, object, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	w := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("uploading %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing %s: %w", object, err)
	}
	return nil
}
