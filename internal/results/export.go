package results

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/querypad/querypad-backend/config"
)

// S3Exporter writes result payloads to an S3 bucket so they can be
// shared outside the API.
type S3Exporter struct {
	client *s3.Client
	bucket string
}

// NewS3Exporter builds an exporter from the environment's AWS credential
// chain. Static credentials override the chain when provided.
func NewS3Exporter(ctx context.Context, cfg appconfig.ExportConfig, accessKeyID, secretAccessKey string) (*S3Exporter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("EXPORT_S3_BUCKET is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Exporter{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
	}, nil
}

// Export uploads the result as JSON and returns its object key.
func (e *S3Exporter) Export(ctx context.Context, r *QueryResult) (string, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}

	key := fmt.Sprintf("results/%s/%d.json", r.QueryHash, r.ID)
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload result %d: %w", r.ID, err)
	}
	return key, nil
}
