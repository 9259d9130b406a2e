// Package blobstore stores uploaded files (study documents, post
// attachments, profile pictures, medical record files) behind a small
// interface with in-memory and S3 backends.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/medconnect/medconnect/internal/platform/apperr"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the largest accepted upload (100 MB).
const MaxFileSize = 100 * 1024 * 1024

var AllowedContentTypes = map[string]bool{
	"image/png":          true,
	"image/jpeg":         true,
	"image/gif":          true,
	"image/webp":         true,
	"application/pdf":    true,
	"text/plain":         true,
	"application/msword": true,
}

// Object describes a stored blob.
type Object struct {
	Key         string `json:"key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
}

// BlobStore is implemented by MemoryStore and S3Store.
type BlobStore interface {
	Put(ctx context.Context, prefix, fileName, contentType string, content io.Reader) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Object, error)
	Delete(ctx context.Context, key string) error
}

// prepared is an upload that passed validation and is buffered in memory.
type prepared struct {
	obj  Object
	data []byte
}

// prepare validates and buffers an upload and derives its key as
// <prefix>/<uuid>/<file name>.
func prepare(prefix, fileName, contentType string, content io.Reader) (*prepared, error) {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return nil, ErrMissingFileName
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	ct := normalizeContentType(contentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = normalizeContentType(http.DetectContentType(data))
	}
	if !AllowedContentTypes[ct] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContentType, ct)
	}

	sum := sha256.Sum256(data)
	return &prepared{
		obj: Object{
			Key:         path.Join(prefix, uuid.NewString(), name),
			FileName:    name,
			ContentType: ct,
			Size:        int64(len(data)),
			SHA256:      hex.EncodeToString(sum[:]),
		},
		data: data,
	}, nil
}

func normalizeContentType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}

func (p *prepared) reader() io.Reader { return bytes.NewReader(p.data) }

// PutFormFile stores a multipart upload.
func PutFormFile(ctx context.Context, store BlobStore, prefix string, fh *multipart.FileHeader) (*Object, error) {
	if fh.Size > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return store.Put(ctx, prefix, fh.Filename, fh.Header.Get("Content-Type"), f)
}

// UploadError turns upload validation failures into apperr validation errors
// and passes anything else through.
func UploadError(err error) error {
	switch {
	case errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrInvalidContentType),
		errors.Is(err, ErrMissingFileName):
		return apperr.Validation("%s", err.Error())
	}
	return err
}
