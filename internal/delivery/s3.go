package delivery

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// ObjectPutter is the subset of the S3 client used by S3Archive.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive uploads delivered assets to an S3 bucket under a dated prefix.
type S3Archive struct {
	client ObjectPutter
	bucket string
	prefix string
	now    func() time.Time

	// LastKey is the key of the most recently uploaded object.
	LastKey string
}

// Compile-time interface check.
var _ pipeline.Deliverer = (*S3Archive)(nil)

// NewS3Archive creates an archive deliverer. prefix may be empty.
func NewS3Archive(client ObjectPutter, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// Deliver streams the asset with PutObject. The size must be known because
// S3 rejects unsized streaming bodies without a checksum trailer.
func (a *S3Archive) Deliver(ctx context.Context, d pipeline.Delivery) error {
	if d.Size < 0 {
		return fmt.Errorf("s3 archive needs a known size")
	}
	now := a.now().UTC()
	key := path.Join(a.prefix, now.Format("2006/01/02"), fmt.Sprintf("%s-%s", now.Format("150405"), path.Base(d.Name)))

	contentType := d.MIMEType
	if contentType == "" {
		contentType = "video/mp4"
	}

	log.Debug().Str("bucket", a.bucket).Str("key", key).Int64("bytes", d.Size).Msg("Uploading video to S3")

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &a.bucket,
		Key:           &key,
		Body:          d.Reader,
		ContentLength: aws.Int64(d.Size),
		ContentType:   &contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload video to S3: %w", err)
	}

	a.LastKey = key
	log.Info().Str("bucket", a.bucket).Str("key", key).Msg("Video archived to S3")
	return nil
}
