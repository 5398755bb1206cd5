package persist

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectConfig configures an S3-compatible object store backend.
type ObjectConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string // experiment prefix within the bucket
	UseSSL    bool
}

// ObjectStore keeps records in an S3-compatible bucket under
// <prefix>/models/<step> and <prefix>/outputs/<step>, so an experiment
// directory can be shared between hosts.
type ObjectStore struct {
	client   *minio.Client
	bucket   string
	prefix   string
	region   string
	logger   *slog.Logger
	initOnce sync.Once
	initErr  error
}

// NewObjectStore creates a bucket-backed store. The bucket is created on
// first use if it does not exist.
func NewObjectStore(cfg ObjectConfig, logger *slog.Logger) (*ObjectStore, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, &StoreError{Op: "init", Err: errMissing("endpoint")}
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, &StoreError{Op: "init", Err: errMissing("access key and secret key")}
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, &StoreError{Op: "init", Err: errMissing("bucket")}
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, &StoreError{Op: "init", Err: err}
	}

	return &ObjectStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: region,
		logger: logger.With("component", "object-store"),
	}, nil
}

func (s *ObjectStore) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *ObjectStore) key(step string, kind Kind) string {
	key := string(kind) + "s/" + step
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return key
}

func (s *ObjectStore) Put(ctx context.Context, step string, kind Kind, data []byte) error {
	s.logger.Debug("put", "step", step, "kind", kind, "bytes", len(data))

	if err := s.ensureBucket(ctx); err != nil {
		return &StoreError{Op: "put", Step: step, Kind: kind, Err: err}
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.key(step, kind),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return &StoreError{Op: "put", Step: step, Kind: kind, Err: err}
	}
	return nil
}

func (s *ObjectStore) Get(ctx context.Context, step string, kind Kind) ([]byte, error) {
	s.logger.Debug("get", "step", step, "kind", kind)

	if err := s.ensureBucket(ctx); err != nil {
		return nil, &StoreError{Op: "get", Step: step, Kind: kind, Err: err}
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(step, kind), minio.GetObjectOptions{})
	if err != nil {
		return nil, &StoreError{Op: "get", Step: step, Kind: kind, Err: err}
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, &StoreError{Op: "get", Step: step, Kind: kind, Err: ErrNotFound}
		}
		return nil, &StoreError{Op: "get", Step: step, Kind: kind, Err: err}
	}
	return data, nil
}

func (s *ObjectStore) Exists(ctx context.Context, step string, kind Kind) (bool, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return false, &StoreError{Op: "exists", Step: step, Kind: kind, Err: err}
	}
	_, err := s.client.StatObject(ctx, s.bucket, s.key(step, kind), minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return false, nil
		}
		return false, &StoreError{Op: "exists", Step: step, Kind: kind, Err: err}
	}
	return true, nil
}

func (s *ObjectStore) Clear(ctx context.Context, step string, kind Kind) error {
	s.logger.Debug("clear", "step", step, "kind", kind)

	if err := s.ensureBucket(ctx); err != nil {
		return &StoreError{Op: "clear", Step: step, Kind: kind, Err: err}
	}
	err := s.client.RemoveObject(ctx, s.bucket, s.key(step, kind), minio.RemoveObjectOptions{})
	if err != nil {
		return &StoreError{Op: "clear", Step: step, Kind: kind, Err: err}
	}
	return nil
}

func (s *ObjectStore) List(ctx context.Context) ([]Record, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}

	prefix := ""
	if s.prefix != "" {
		prefix = s.prefix + "/"
	}
	var records []Record
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, &StoreError{Op: "list", Err: obj.Err}
		}
		rel := strings.TrimPrefix(obj.Key, prefix)
		dir, step, ok := strings.Cut(rel, "/")
		if !ok {
			continue
		}
		var kind Kind
		switch dir {
		case "models":
			kind = KindModel
		case "outputs":
			kind = KindOutput
		default:
			continue
		}
		records = append(records, Record{
			Step:    step,
			Kind:    kind,
			Size:    obj.Size,
			ModTime: obj.LastModified,
		})
	}
	return records, nil
}

type missingError string

func errMissing(what string) error { return missingError(what) }

func (e missingError) Error() string { return string(e) + " is required" }
