package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// memoryS3 serves single-part uploads and ranged downloads from memory.
type memoryS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]map[string]string
}

func newMemoryS3() *memoryS3 {
	return &memoryS3{objects: map[string][]byte{}, metadata: map[string]map[string]string{}}
}

func objectKey(bucket, key *string) string {
	return aws.ToString(bucket) + "/" + aws.ToString(key)
}

func (m *memoryS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey(in.Bucket, in.Key)] = data
	m.metadata[objectKey(in.Bucket, in.Key)] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (m *memoryS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	data, ok := m.objects[objectKey(in.Bucket, in.Key)]
	m.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}

	start, end := int64(0), int64(len(data))-1
	if r := aws.ToString(in.Range); r != "" {
		if _, err := fmt.Sscanf(r, "bytes=%d-%d", &start, &end); err != nil {
			return nil, fmt.Errorf("bad range %q", r)
		}
		end = min(end, int64(len(data))-1)
	}
	body := data[start : end+1]
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
		ContentRange:  aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, len(data))),
	}, nil
}

var errMultipart = errors.New("multipart not supported")

func (m *memoryS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipart
}

func (m *memoryS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (m *memoryS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (m *memoryS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantKey    string
		wantPrefix bool
		wantErr    bool
	}{
		{uri: "s3://my-bucket/path/to/col.tblk", wantBucket: "my-bucket", wantKey: "path/to/col.tblk"},
		{uri: "s3://bucket/dir/", wantBucket: "bucket", wantKey: "dir/", wantPrefix: true},
		{uri: "s3://bucket", wantBucket: "bucket", wantPrefix: true},
		{uri: "https://bucket/key", wantErr: true},
		{uri: "/local/path", wantErr: true},
		{uri: "s3://", wantErr: true},
		{uri: "s3:///key", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			loc, err := ParseURI(tt.uri)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidURI) {
					t.Errorf("err = %v, want ErrInvalidURI", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if loc.Bucket != tt.wantBucket || loc.Key != tt.wantKey {
				t.Errorf("got %+v, want bucket %q key %q", loc, tt.wantBucket, tt.wantKey)
			}
			if loc.IsPrefix() != tt.wantPrefix {
				t.Errorf("IsPrefix = %v, want %v", loc.IsPrefix(), tt.wantPrefix)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	c := NewClientWithAPI(newMemoryS3(), TransferConfig{})
	if c.Config() != DefaultTransferConfig() {
		t.Errorf("Config = %+v, want defaults", c.Config())
	}
	c = NewClientWithAPI(newMemoryS3(), TransferConfig{PartSize: 8 << 20, Concurrency: 2})
	if c.Config().PartSize != 8<<20 || c.Config().Concurrency != 2 {
		t.Errorf("Config = %+v", c.Config())
	}
}

func TestUploadDownload(t *testing.T) {
	api := newMemoryS3()
	c := NewClientWithAPI(api, TransferConfig{})
	dir := t.TempDir()
	src := filepath.Join(dir, "col.tblk")
	content := bytes.Repeat([]byte("TBLK block bytes "), 4096)
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	loc, err := c.Upload(context.Background(), src, Location{Bucket: "b", Key: "cols/"}, map[string]string{"rows": "42"})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if loc.String() != "s3://b/cols/col.tblk" {
		t.Errorf("uploaded to %s", loc)
	}
	if got := api.metadata["b/cols/col.tblk"]["rows"]; got != "42" {
		t.Errorf("metadata rows = %q", got)
	}

	dst := filepath.Join(dir, "copy.tblk")
	n, err := c.Download(context.Background(), loc, dst)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if n != int64(len(content)) {
		t.Errorf("downloaded %d bytes, want %d", n, len(content))
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("downloaded bytes differ")
	}
}

func TestDownloadMissingLeavesNothing(t *testing.T) {
	c := NewClientWithAPI(newMemoryS3(), TransferConfig{})
	dir := t.TempDir()
	_, err := c.Download(context.Background(), Location{Bucket: "b", Key: "absent.tblk"}, filepath.Join(dir, "out.tblk"))
	var nsk *types.NoSuchKey
	if !errors.As(err, &nsk) {
		t.Errorf("Download = %v, want NoSuchKey", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("left %d files behind", len(entries))
	}
}

func TestDownloadRejectsPrefix(t *testing.T) {
	c := NewClientWithAPI(newMemoryS3(), TransferConfig{})
	_, err := c.Download(context.Background(), Location{Bucket: "b", Key: "dir/"}, filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, ErrInvalidURI) || !strings.Contains(err.Error(), "prefix") {
		t.Errorf("Download = %v, want prefix error", err)
	}
}

func TestUploadMissingFile(t *testing.T) {
	c := NewClientWithAPI(newMemoryS3(), TransferConfig{})
	if _, err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "absent"), Location{Bucket: "b", Key: "k"}, nil); err == nil {
		t.Error("expected error for a missing file")
	}
}
