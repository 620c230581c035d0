// package archive stores the final status document of a concluded FCP in
// object storage for long-term reference, independent of the platform's
// comment history.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Archiver uploads a concluded status document.
type Archiver interface {
	ArchiveStatusDocument(ctx context.Context, proposalNum int, body string) error
}

// NopArchiver is used when no bucket is configured.
type NopArchiver struct{}

func (NopArchiver) ArchiveStatusDocument(ctx context.Context, proposalNum int, body string) error {
	return nil
}

// S3Archiver writes documents to paths like:
//
//	s3://<bucket>/<prefix>/fcp/YYYY/MM/DD/<proposalNum>.md
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Archiver creates an S3Archiver. Region and credentials come from the
// environment (AWS_REGION, AWS_PROFILE, AWS_ACCESS_KEY_ID/SECRET etc.).
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

func (a *S3Archiver) ArchiveStatusDocument(ctx context.Context, proposalNum int, body string) error {
	if body == "" {
		return fmt.Errorf("empty document body")
	}
	now := time.Now().UTC()
	year, month, day := now.Date()
	objectKey := path.Join(a.prefix, "fcp",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("%d.md", proposalNum),
	)

	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(objectKey),
		Body:                 bytes.NewReader([]byte(body)),
		ContentType:          aws.String("text/markdown"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}
