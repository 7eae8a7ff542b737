package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned by Stat when the object does not exist.
var ErrNotFound = errors.New("object not found")

// Config contains the information required to talk to an object store.
type Config struct {
	Provider      string
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PartSizeBytes uint64
}

// Ref addresses a single object.
type Ref struct {
	Bucket string
	Key    string
}

// URI renders the ref as s3://bucket/key, the form the transcoder expects.
func (r Ref) URI() string {
	return "s3://" + r.Bucket + "/" + r.Key
}

func (r Ref) String() string {
	return r.URI()
}

// ParseURI parses an s3://bucket/key location.
func ParseURI(raw string) (Ref, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Ref{}, fmt.Errorf("parse object uri %q: %w", raw, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return Ref{}, fmt.Errorf("object uri %q is not an s3:// location", raw)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return Ref{}, fmt.Errorf("object uri %q has no key", raw)
	}
	return Ref{Bucket: u.Host, Key: key}, nil
}

// PutOptions carries per-object attributes for streamed uploads.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo is the subset of object attributes the pipeline reads.
type ObjectInfo struct {
	Size int64
	ETag string
}

// Client represents the capabilities the pipeline expects from object storage.
type Client interface {
	// PutStream uploads a reader of unknown length using multipart transfer
	// and returns the number of bytes stored.
	PutStream(ctx context.Context, ref Ref, reader io.Reader, opts PutOptions) (int64, error)
	Stat(ctx context.Context, ref Ref) (ObjectInfo, error)
	// Copy performs a server-side copy, switching to multipart copy for
	// objects beyond the single-request limit.
	Copy(ctx context.Context, dst, src Ref) error
	Delete(ctx context.Context, ref Ref) error
	URL(ref Ref) string
	Close() error
}

// New creates an object store client based on the given configuration.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "minio", "s3":
		return newMinioClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported object store provider: %s", cfg.Provider)
	}
}

type minioClient struct {
	client   *minio.Client
	endpoint string
	secure   bool
	region   string
	partSize uint64
}

func newMinioClient(cfg Config) (Client, error) {
	endpoint := cfg.Endpoint
	secure := cfg.UseSSL
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	creds := credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	if cfg.AccessKey == "" {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
		})
	}

	cl, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	return &minioClient{
		client:   cl,
		endpoint: endpoint,
		secure:   secure,
		region:   cfg.Region,
		partSize: cfg.PartSizeBytes,
	}, nil
}

func (m *minioClient) PutStream(ctx context.Context, ref Ref, reader io.Reader, opts PutOptions) (int64, error) {
	info, err := m.client.PutObject(ctx, ref.Bucket, ref.Key, reader, -1, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
		PartSize:     m.partSize,
	})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (m *minioClient) Stat(ctx context.Context, ref Ref) (ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, ref.Bucket, ref.Key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, fmt.Errorf("stat %s: %w", ref, ErrNotFound)
		}
		return ObjectInfo{}, err
	}
	return ObjectInfo{Size: info.Size, ETag: info.ETag}, nil
}

func (m *minioClient) Copy(ctx context.Context, dst, src Ref) error {
	_, err := m.client.ComposeObject(ctx,
		minio.CopyDestOptions{Bucket: dst.Bucket, Object: dst.Key},
		minio.CopySrcOptions{Bucket: src.Bucket, Object: src.Key},
	)
	if err != nil && isNotFound(err) {
		return fmt.Errorf("copy %s: %w", src, ErrNotFound)
	}
	return err
}

func (m *minioClient) Delete(ctx context.Context, ref Ref) error {
	return m.client.RemoveObject(ctx, ref.Bucket, ref.Key, minio.RemoveObjectOptions{})
}

func (m *minioClient) URL(ref Ref) string {
	if strings.HasSuffix(m.endpoint, "amazonaws.com") {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", ref.Bucket, m.region, ref.Key)
	}
	scheme := "http"
	if m.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, m.endpoint, ref.Bucket, ref.Key)
}

func (m *minioClient) Close() error {
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
