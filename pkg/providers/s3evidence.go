package providers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/cmmc-tools/integrations-hub/pkg/credentials"
	"github.com/cmmc-tools/integrations-hub/pkg/evidence"
	"github.com/cmmc-tools/integrations-hub/pkg/registry"
)

// S3EvidenceAdapter inventories an S3 bucket used as the evidence document
// vault. The govcloud environment only changes the default region; an
// explicit region credential field always wins.
type S3EvidenceAdapter struct {
	desc   *registry.Descriptor
	logger *zap.Logger

	// endpointOverride targets a local S3-compatible endpoint in tests.
	endpointOverride string
}

// NewS3EvidenceAdapter creates the S3 evidence vault adapter.
func NewS3EvidenceAdapter(desc *registry.Descriptor, logger *zap.Logger) *S3EvidenceAdapter {
	return &S3EvidenceAdapter{desc: desc, logger: logger.Named("s3evidence")}
}

// ID returns the provider id.
func (a *S3EvidenceAdapter) ID() string { return a.desc.ID }

func (a *S3EvidenceAdapter) s3Client(ctx context.Context, creds credentials.Credentials) (*s3.Client, error) {
	region := creds.Field("region")
	if region == "" {
		region = a.desc.ResolveRegion(creds.Environment)
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			creds.Field("accessKeyId"), creds.Field("secretAccessKey"), "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if a.endpointOverride != "" {
			o.BaseEndpoint = aws.String(a.endpointOverride)
			o.UsePathStyle = true
		}
	}), nil
}

// TestConnection heads the evidence bucket.
func (a *S3EvidenceAdapter) TestConnection(ctx context.Context, creds credentials.Credentials) ConnectionResult {
	client, err := a.s3Client(ctx, creds)
	if err != nil {
		return ConnectionResult{Success: false, Message: fmt.Sprintf("AWS configuration failed: %v", err)}
	}
	bucket := creds.Field("bucket")
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return ConnectionResult{Success: false, Message: fmt.Sprintf("Bucket %s not reachable: %v", bucket, err)}
	}
	return ConnectionResult{Success: true, Message: fmt.Sprintf("Connected to evidence bucket %s", bucket)}
}

// Sync inventories the bucket (primary fetch) and checks default encryption
// as a tolerant sub-fetch.
func (a *S3EvidenceAdapter) Sync(ctx context.Context, creds credentials.Credentials) (*evidence.SyncRecord, error) {
	client, err := a.s3Client(ctx, creds)
	if err != nil {
		return nil, NewProviderError(a.desc.ID, "config_failed", "AWS configuration failed", err)
	}
	bucket := creds.Field("bucket")

	listing, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(int32(evidence.MaxDetailRecords)),
	})
	if err != nil {
		return nil, NewProviderError(a.desc.ID, "sync_failed", "bucket listing failed", err)
	}

	rec := &evidence.SyncRecord{ProviderID: a.desc.ID, LastSync: now()}
	stats := &evidence.StorageStats{ObjectCount: len(listing.Contents)}
	for _, obj := range listing.Contents {
		size := aws.ToInt64(obj.Size)
		stats.TotalBytes += size
		summary := evidence.ObjectSummary{Key: aws.ToString(obj.Key), Size: size}
		if obj.LastModified != nil {
			summary.LastModified = obj.LastModified.UTC().Format("2006-01-02")
		}
		rec.Details.Objects = append(rec.Details.Objects, summary)
	}
	rec.Details.Objects = truncate(rec.Details.Objects, evidence.MaxDetailRecords)

	if enc, err := client.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: aws.String(bucket)}); err != nil {
		a.logger.Warn("bucket encryption check failed", zap.Error(err))
		rec.Warnings = append(rec.Warnings, "bucket encryption status unknown")
	} else {
		stats.Encrypted = enc.ServerSideEncryptionConfiguration != nil &&
			len(enc.ServerSideEncryptionConfiguration.Rules) > 0
	}

	rec.Stats.Storage = stats
	return rec, nil
}
