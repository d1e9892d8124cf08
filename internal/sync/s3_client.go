// Package sync provides the S3-compatible artifact storage client.
package sync

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// S3Config holds S3 connection configuration.
type S3Config struct {
	Endpoint       string
	BucketName     string
	AccessKey      string
	SecretKey      string
	Region         string
	ForcePathStyle bool // Use path-style URLs (minio, localstack)

	// PublicBaseURL, when set, is the CDN or public-bucket prefix returned by
	// PublicURL. Empty means objects are addressed directly on the endpoint.
	PublicBaseURL string
}

// S3Client implements ObjectStore for S3-compatible storage. A PUT to an
// existing key overwrites it, which gives Upload the upsert semantics the
// reconciliation engine relies on for safe re-runs.
type S3Client struct {
	config     *S3Config
	httpClient *http.Client
}

// Ensure S3Client satisfies the engine's ObjectStore contract.
var _ ObjectStore = (*S3Client)(nil)

// NewS3Client creates a new S3Client.
func NewS3Client(config *S3Config) *S3Client {
	return &S3Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// Upload puts one JPEG artifact at key, overwriting any prior object.
func (c *S3Client) Upload(ctx context.Context, key string, data []byte) error {
	req, err := c.createRequest(ctx, http.MethodPut, key, bytes.NewReader(data))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "image/jpeg")
	req.ContentLength = int64(len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// PublicURL returns the stable public locator of an uploaded artifact.
func (c *S3Client) PublicURL(key string) string {
	if c.config.PublicBaseURL != "" {
		return strings.TrimSuffix(c.config.PublicBaseURL, "/") + "/" + key
	}
	if c.config.ForcePathStyle {
		return fmt.Sprintf("%s/%s/%s", c.config.Endpoint, c.config.BucketName, key)
	}
	return fmt.Sprintf("%s.%s/%s", c.config.BucketName, c.config.Endpoint, key)
}

// createRequest creates an S3 request with AWS V4 signature headers.
func (c *S3Client) createRequest(ctx context.Context, method, key string, body io.Reader) (*http.Request, error) {
	var urlStr string
	if c.config.ForcePathStyle {
		// Path-style: http://endpoint/bucket/key
		urlStr = fmt.Sprintf("%s/%s/%s", c.config.Endpoint, c.config.BucketName, key)
	} else {
		// Virtual-host-style: http://bucket.endpoint/key
		urlStr = fmt.Sprintf("%s.%s/%s", c.config.BucketName, c.config.Endpoint, key)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, err
	}

	if !c.config.ForcePathStyle {
		req.Host = fmt.Sprintf("%s.%s", c.config.BucketName, c.config.Endpoint)
	}

	timestamp := time.Now().UTC()
	amzDate := timestamp.Format("20060102T150405Z")

	req.Header.Set("Host", req.Host)
	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", "UNSIGNED-PAYLOAD")

	authorization := c.calculateAuthorization(method, key, amzDate)
	req.Header.Set("Authorization", authorization)

	return req, nil
}

// calculateAuthorization calculates the AWS V4 signature authorization header.
func (c *S3Client) calculateAuthorization(method, key, amzDate string) string {
	dateStamp := amzDate[:8]
	scope := fmt.Sprintf("%s/%s/s3/aws4_request", dateStamp, c.config.Region)

	canonicalURI := "/" + c.config.BucketName + "/" + key
	canonicalQuery := ""
	canonicalHeaders := fmt.Sprintf("host:%s\nx-amz-date:%s\n",
		c.config.BucketName+"."+c.config.Endpoint, amzDate)
	signedHeaders := "host;x-amz-date"
	payloadHash := "UNSIGNED-PAYLOAD"

	canonicalRequest := fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		method, canonicalURI, canonicalQuery, canonicalHeaders, signedHeaders+" "+payloadHash)

	algorithm := "AWS4-HMAC-SHA256"
	stringToSign := fmt.Sprintf("%s\n%s\n%s\n%s",
		algorithm, amzDate, scope, hex.EncodeToString(hashSHA256([]byte(canonicalRequest))))

	kSecret := []byte("AWS4" + c.config.SecretKey)
	kDate := hmacSHA256(kSecret, dateStamp)
	kRegion := hmacSHA256(kDate, c.config.Region)
	kService := hmacSHA256(kRegion, "s3")
	kSigning := hmacSHA256(kService, "aws4_request")
	signature := hex.EncodeToString(hmacSHA256(kSigning, stringToSign))

	return fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, c.config.AccessKey, scope, signedHeaders, signature)
}

// hmacSHA256 calculates HMAC-SHA256.
func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// hashSHA256 calculates a SHA256 digest.
func hashSHA256(data []byte) []byte {
	h := sha256.New()
	h.Write(data)
	return h.Sum(nil)
}
