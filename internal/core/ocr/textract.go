package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	cfg "github.com/temiloluwa-oss/arkiva/internal/config"
	"github.com/temiloluwa-oss/arkiva/internal/core"
)

// TextractClient submits stored blobs to AWS Textract for asynchronous text
// detection.
type TextractClient struct {
	client *textract.Client
	bucket string
}

var _ core.OcrClient = (*TextractClient)(nil)

func NewTextractClient(ctx context.Context, cfg *cfg.Config) (*TextractClient, error) {
	if cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.AwsRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &TextractClient{
		client: textract.NewFromConfig(awsCfg),
		bucket: cfg.BucketName,
	}, nil
}

func (c *TextractClient) StartJob(ctx context.Context, blobKey string) (string, error) {
	ctxStart, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := c.client.StartDocumentTextDetection(ctxStart, &textract.StartDocumentTextDetectionInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{
				Bucket: aws.String(c.bucket),
				Name:   aws.String(blobKey),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("textract start: %w", err)
	}
	return aws.ToString(out.JobId), nil
}

// JobStatus polls one job. A succeeded job is drained across result pages and
// returned as line-joined text plus the page count for quota accounting.
func (c *TextractClient) JobStatus(ctx context.Context, jobID string) (core.OcrResult, error) {
	var (
		lines     []string
		pages     int
		nextToken *string
	)

	for {
		ctxGet, cancel := context.WithTimeout(ctx, 30*time.Second)
		out, err := c.client.GetDocumentTextDetection(ctxGet, &textract.GetDocumentTextDetectionInput{
			JobId:     aws.String(jobID),
			NextToken: nextToken,
		})
		cancel()
		if err != nil {
			return core.OcrResult{}, fmt.Errorf("textract poll: %w", err)
		}

		switch out.JobStatus {
		case types.JobStatusInProgress:
			return core.OcrResult{State: core.OcrPending}, nil
		case types.JobStatusFailed:
			return core.OcrResult{
				State:  core.OcrError,
				Reason: aws.ToString(out.StatusMessage),
			}, nil
		}

		if out.DocumentMetadata != nil {
			pages = int(aws.ToInt32(out.DocumentMetadata.Pages))
		}
		for _, b := range out.Blocks {
			if b.BlockType == types.BlockTypeLine {
				lines = append(lines, aws.ToString(b.Text))
			}
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	return core.OcrResult{
		State: core.OcrDone,
		Text:  strings.Join(lines, "\n"),
		Pages: pages,
	}, nil
}
