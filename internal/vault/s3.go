package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"fsnap-go/internal/fsnap"
)

// S3Client is the subset of the S3 API the vault uses. *s3.Client satisfies it.
type S3Client interface {
	manager.UploadAPIClient
	manager.DownloadAPIClient
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Options configures an S3Vault.
type S3Options struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint overrides the S3 endpoint, e.g. for MinIO. UsePathStyle is
	// usually required together with it.
	Endpoint     string
	UsePathStyle bool

	// Static credentials. When empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Vault stores snapshots as objects in an S3 bucket under an optional prefix:
//
//	s3://<bucket>/<prefix>/<sessionID>/<fileID>
type S3Vault struct {
	name       string
	bucket     string
	prefix     string
	client     S3Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewS3Vault creates an S3Vault using the default AWS configuration chain,
// adjusted by opts.
func NewS3Vault(ctx context.Context, name string, opts S3Options) (*S3Vault, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
	}

	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		provider := credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(provider))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return NewS3VaultFromClient(name, opts.Bucket, opts.Prefix, client), nil
}

// NewS3VaultFromClient creates an S3Vault around an existing client.
func NewS3VaultFromClient(name, bucket, prefix string, client S3Client) *S3Vault {
	return &S3Vault{
		name:       name,
		bucket:     bucket,
		prefix:     prefix,
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}
}

func (v *S3Vault) objectKey(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if v.prefix == "" {
		return key, nil
	}
	return path.Join(v.prefix, key), nil
}

// PutSnapshot uploads the blob under key. The object is removed again when
// fewer or more than size bytes were read from r.
func (v *S3Vault) PutSnapshot(key string, r io.Reader, size int64) error {
	objectKey, err := v.objectKey(key)
	if err != nil {
		return err
	}

	ctx := context.Background()
	body := &countingReader{r: r}
	_, err = v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(objectKey),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("uploading snapshot: %w", err)
	}

	if body.n != size {
		mismatch := fmt.Errorf("size mismatch: expected %d bytes, got %d", size, body.n)
		_, err := v.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(v.bucket),
			Key:    aws.String(objectKey),
		})
		if err != nil {
			return errors.Join(mismatch, fmt.Errorf("removing partial object %s: %w", objectKey, err))
		}
		return mismatch
	}
	return nil
}

// GetSnapshot downloads the blob stored under key and writes it to w.
func (v *S3Vault) GetSnapshot(key string, w io.Writer) error {
	objectKey, err := v.objectKey(key)
	if err != nil {
		return err
	}

	buf := manager.NewWriteAtBuffer(nil)
	_, err = v.downloader.Download(context.Background(), buf, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return fmt.Errorf("%w: %s", fsnap.ErrSnapshotNotFound, key)
		}
		return fmt.Errorf("downloading snapshot: %w", err)
	}

	if _, err := io.Copy(w, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// DeleteSnapshot removes the object stored under key. S3 reports success for
// missing keys.
func (v *S3Vault) DeleteSnapshot(key string) error {
	objectKey, err := v.objectKey(key)
	if err != nil {
		return err
	}

	_, err = v.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}

// ValidateSetup checks that the bucket exists and is reachable with the
// configured credentials.
func (v *S3Vault) ValidateSetup() error {
	_, err := v.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(v.bucket),
	})
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", v.bucket, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Compile-time checks
var (
	_ fsnap.Vault = (*S3Vault)(nil)
	_ S3Client    = (*s3.Client)(nil)
)
