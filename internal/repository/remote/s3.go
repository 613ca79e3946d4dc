package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/debemdeboas/docsave/internal/repository"
	"github.com/debemdeboas/docsave/internal/util"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Region          string
	Bucket          string
}

// S3Client stores each document as one object in a bucket, keyed like the
// local store. Works against R2 and MinIO as well as AWS.
type S3Client struct {
	client S3API
	bucket string
	now    func() time.Time
}

func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("error initializing S3 client: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3ClientFromAPI(client, cfg.Bucket), nil
}

func NewS3ClientFromAPI(api S3API, bucket string) *S3Client {
	return &S3Client{
		client: api,
		bucket: bucket,
		now:    time.Now,
	}
}

func (c *S3Client) Save(ctx context.Context, id repository.ContentID, content string) (repository.SaveResult, error) {
	if content == "" {
		return repository.SaveResult{}, repository.ErrContentRequired()
	}
	id = id.OrDefault()

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(repository.Key(id)),
		Body:        strings.NewReader(content),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"content-hash": util.ContentHashString(content),
		},
	})
	if err != nil {
		return repository.SaveResult{}, repository.NewRemoteUnavailable("save", "Failed to save: "+s3Reason(err), err)
	}

	return repository.SaveResult{ID: id, Timestamp: c.now()}, nil
}

func (c *S3Client) Load(ctx context.Context, id repository.ContentID) (string, bool, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(repository.Key(id)),
	})
	if isNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, repository.NewRemoteUnavailable("load", "Failed to load: "+s3Reason(err), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", false, repository.NewRemoteUnavailable("load", "Failed to load: "+err.Error(), err)
	}
	return string(data), true, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func s3Reason(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return err.Error()
}
