// Package locator turns user-provided media locations into something the
// libav demuxer can open: local paths are checked, `s3://bucket/key`
// objects are downloaded into a cache directory, and every other URL
// (http, rtmp, srt, ...) is passed through as is.
package locator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/secret"
	"github.com/xaionaro-go/xsync"
)

type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey secret.String

	// Endpoint overrides the AWS endpoint (e.g. for MinIO); empty means AWS.
	Endpoint string
}

// S3ConfigFromEnv reads the standard AWS_* variables.
func S3ConfigFromEnv() S3Config {
	return S3Config{
		Region:          os.Getenv("AWS_DEFAULT_REGION"),
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: secret.New(os.Getenv("AWS_SECRET_ACCESS_KEY")),
		Endpoint:        os.Getenv("AWS_ENDPOINT_URL"),
	}
}

func (cfg S3Config) validate() error {
	if cfg.Region == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey.Get() == "" {
		return ErrMissingCredentials{}
	}
	return nil
}

// ObjectGetter is the part of the S3 API the locator needs.
type ObjectGetter interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
}

type ErrMissingCredentials struct{}

func (ErrMissingCredentials) Error() string {
	return "missing one or more required environment variables: AWS_DEFAULT_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY"
}

type ErrNotFound struct {
	Location string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("'%s' does not exist", e.Location)
}

type Locator struct {
	CacheDir string
	S3       S3Config

	// Client is built from S3 on the first download unless set.
	Client ObjectGetter

	locker xsync.Mutex
}

func New(cacheDir string, s3cfg S3Config) *Locator {
	return &Locator{
		CacheDir: cacheDir,
		S3:       s3cfg,
	}
}

// Resolve returns a location the demuxer can open.
func (l *Locator) Resolve(
	ctx context.Context,
	location string,
) (_ret string, _err error) {
	logger.Debugf(ctx, "Resolve(%s)", location)
	defer func() { logger.Debugf(ctx, "/Resolve(%s): %s %v", location, _ret, _err) }()

	u, err := url.Parse(location)
	if err != nil || len(u.Scheme) <= 1 {
		// a plain path (a single-letter scheme is a Windows drive)
		return resolveLocal(location)
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return resolveLocal(u.Path)
	case "s3":
		return l.download(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return location, nil
	}
}

func resolveLocal(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound{Location: path}
		}
		return "", fmt.Errorf("unable to stat '%s': %w", path, err)
	}
	return path, nil
}

func (l *Locator) getClient(ctx context.Context) (ObjectGetter, error) {
	return xsync.DoR2(ctx, &l.locker, func() (ObjectGetter, error) {
		if l.Client != nil {
			return l.Client, nil
		}
		if err := l.S3.validate(); err != nil {
			return nil, err
		}
		cfg := &aws.Config{
			Region:      aws.String(l.S3.Region),
			Credentials: credentials.NewStaticCredentials(l.S3.AccessKeyID, l.S3.SecretAccessKey.Get(), ""),
		}
		if l.S3.Endpoint != "" {
			cfg.Endpoint = aws.String(l.S3.Endpoint)
			cfg.S3ForcePathStyle = aws.Bool(true)
		}
		sess, err := session.NewSession(cfg)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize an AWS session: %w", err)
		}
		l.Client = s3.New(sess)
		return l.Client, nil
	})
}

// download fetches the object unless it is already cached.
func (l *Locator) download(
	ctx context.Context,
	bucket, key string,
) (_ret string, _err error) {
	logger.Debugf(ctx, "download(%s, %s)", bucket, key)
	defer func() { logger.Debugf(ctx, "/download(%s, %s): %s %v", bucket, key, _ret, _err) }()

	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("invalid S3 object location: bucket '%s', key '%s'", bucket, key)
	}
	localPath := filepath.Join(l.CacheDir, bucket, filepath.FromSlash(key))
	if st, err := os.Stat(localPath); err == nil && st.Size() > 0 {
		logger.Debugf(ctx, "using the cached copy at '%s'", localPath)
		return localPath, nil
	}

	client, err := l.getClient(ctx)
	if err != nil {
		return "", err
	}
	result, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("unable to get s3://%s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return "", fmt.Errorf("unable to create the cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".download-*")
	if err != nil {
		return "", fmt.Errorf("unable to create a temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, result.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("unable to write s3://%s/%s into '%s': %w", bucket, key, tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return "", fmt.Errorf("unable to move the download into '%s': %w", localPath, err)
	}
	logger.Debugf(ctx, "downloaded %d bytes into '%s'", n, localPath)
	return localPath, nil
}
