package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/lehigh-university-libraries/portfolio/internal/datauri"
)

// Blob is a file selected for upload
type Blob interface {
	Name() string
	Size() int64
	ContentType() string
	Open() (io.ReadCloser, error)
}

// BlobEncoder turns a blob into a self-contained reference stored in ImageRecord.URL
type BlobEncoder interface {
	Encode(ctx context.Context, blob Blob) (string, error)
}

// DataURIEncoder embeds the full blob content as a base64 data URI
type DataURIEncoder struct {
	// MaxBytes bounds how much of a blob is read. Zero means no limit.
	MaxBytes int64
}

func (e DataURIEncoder) Encode(ctx context.Context, blob Blob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rc, err := blob.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", blob.Name(), err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if e.MaxBytes > 0 {
		r = io.LimitReader(rc, e.MaxBytes+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", blob.Name(), err)
	}
	if e.MaxBytes > 0 && int64(len(data)) > e.MaxBytes {
		return "", fmt.Errorf("%s exceeds %d bytes", blob.Name(), e.MaxBytes)
	}

	return datauri.Encode(blob.ContentType(), data), nil
}

// BytesBlob is an in-memory blob
type BytesBlob struct {
	FileName string
	MIMEType string
	Data     []byte
}

func (b BytesBlob) Name() string        { return b.FileName }
func (b BytesBlob) Size() int64         { return int64(len(b.Data)) }
func (b BytesBlob) ContentType() string { return b.MIMEType }

func (b BytesBlob) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

// FileBlob is a blob backed by a local file
type FileBlob struct {
	path        string
	size        int64
	contentType string
}

// NewFileBlob stats path and resolves its content type from the extension,
// falling back to sniffing the first bytes.
func NewFileBlob(path string) (*FileBlob, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType, err = sniff(path)
		if err != nil {
			return nil, err
		}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}

	return &FileBlob{
		path:        path,
		size:        info.Size(),
		contentType: contentType,
	}, nil
}

func sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("failed to sniff %s: %w", path, err)
	}
	return http.DetectContentType(head[:n]), nil
}

func (b *FileBlob) Name() string        { return filepath.Base(b.path) }
func (b *FileBlob) Size() int64         { return b.size }
func (b *FileBlob) ContentType() string { return b.contentType }

func (b *FileBlob) Open() (io.ReadCloser, error) {
	return os.Open(b.path)
}
