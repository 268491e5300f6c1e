package storage

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectURL(t *testing.T) {
	assert.Equal(t,
		"https://reports.s3.sa-east-1.amazonaws.com/reports/incidents/2026/10/18/1792300000.json",
		ObjectURL("reports", "sa-east-1", "reports/incidents/2026/10/18/1792300000.json"))
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{Region: "sa-east-1"}, nil)
	assert.Error(t, err)
}

func TestPresignExpire(t *testing.T) {
	assert.Equal(t, "15m0s", (&S3{}).PresignExpire().String())
	assert.Equal(t, "5m0s", (&S3{cfg: S3Config{PresignExpireMinutes: 5}}).PresignExpire().String())

	s := &S3{cfg: S3Config{PresignExpireMinutes: 5}}
	s.SetPresignExpireMinutes(60)
	assert.Equal(t, "1h0m0s", s.PresignExpire().String())
}

func TestPresignedDownloadURL(t *testing.T) {
	client := s3.New(s3.Options{
		Region:      "sa-east-1",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "")),
	})
	s := &S3{client: client, cfg: S3Config{Region: "sa-east-1", Bucket: "reports", PresignExpireMinutes: 5}}

	u, err := s.PresignedDownloadURL(context.Background(), "reports/incidents/2026/10/18/1792300000.json")
	require.NoError(t, err)
	assert.Contains(t, u, "reports/incidents/2026/10/18/1792300000.json")
	assert.Contains(t, u, "X-Amz-Expires=300")
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Equal(t, "reports", s.Bucket())
}
