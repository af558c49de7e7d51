package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/capitolworks/legis/internal/models"
)

// Archiver uploads the final envelope of a resolved bill to object storage.
type Archiver interface {
	ArchiveBill(ctx context.Context, bill models.Bill) error
}

// S3Archiver writes resolved bills to S3 paths like:
//
//	s3://<bucket>/<prefix>/bills/YYYY/MM/DD/<billID>.json
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

// ArchiveBill uploads the bill envelope, votes and tallies included. Bills
// are archived once, at terminalization, so the object is the final audit
// record.
func (a *S3Archiver) ArchiveBill(ctx context.Context, bill models.Bill) error {
	if bill.Status == models.StatusActive {
		return fmt.Errorf("bill %s still active", bill.ID)
	}
	body, err := json.Marshal(bill)
	if err != nil {
		return fmt.Errorf("marshal bill: %w", err)
	}

	ts := time.Now().UTC()
	if bill.ResolvedAt != nil {
		ts = bill.ResolvedAt.UTC()
	}
	year, month, day := ts.Date()
	objectKey := path.Join(a.prefix, "bills",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("%s.json", bill.ID),
	)

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload bill %s: %w", bill.ID, err)
	}
	return nil
}
