// Package objectstore talks to the S3-compatible bucket holding famille
// photos. Requests are signed with the shared sigv4 package and issued once;
// nothing is retried.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/stefando/weddingPhotos/internal/sigv4"
)

// DefaultContentType is used when a PUT has no declared MIME type.
const DefaultContentType = "application/octet-stream"

// Config describes one bucket on one endpoint.
type Config struct {
	// Endpoint is scheme://host[:port], without the bucket.
	Endpoint      string
	Region        string
	Bucket        string
	Credentials   aws.CredentialsProvider
	HTTPClient    *http.Client
	PublicBaseURL string
	// MaxListPages bounds how many ListObjectsV2 pages List follows; values
	// below 1 mean a single page.
	MaxListPages int
	Now          func() time.Time
}

// Client issues signed PUT and ListObjectsV2 requests against a single bucket.
type Client struct {
	endpoint      string
	host          string
	bucket        string
	publicBaseURL string
	maxPages      int
	credentials   aws.CredentialsProvider
	signer        sigv4.Signer
	httpClient    *http.Client
	now           func() time.Time
}

// OCIEndpoint returns the S3 compatibility endpoint of an Oracle Cloud
// Object Storage namespace.
func OCIEndpoint(namespace, region string) string {
	return fmt.Sprintf("https://%s.compat.objectstorage.%s.oraclecloud.com", namespace, region)
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid object store endpoint %q", cfg.Endpoint)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	if cfg.Credentials == nil {
		return nil, ErrNoCredentials
	}

	c := &Client{
		endpoint:      u.Scheme + "://" + u.Host,
		host:          u.Host,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxPages:      cfg.MaxListPages,
		credentials:   cfg.Credentials,
		signer:        sigv4.New(cfg.Region),
		httpClient:    cfg.HTTPClient,
		now:           cfg.Now,
	}
	if c.maxPages < 1 {
		c.maxPages = 1
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// Put stores body under key with one signed PUT.
func (c *Client) Put(ctx context.Context, key, contentType string, body []byte) error {
	if contentType == "" {
		contentType = DefaultContentType
	}
	payloadHash := sigv4.PayloadHash(body)
	path := sigv4.EncodePath("/" + c.bucket + "/" + key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build put request: %w", err)
	}
	headers := map[string]string{
		"content-type":         contentType,
		"host":                 c.host,
		"x-amz-content-sha256": payloadHash,
	}
	if err := c.sign(ctx, req, path, "", headers, payloadHash); err != nil {
		return err
	}

	_, err = c.do(req, "put")
	return err
}

// List returns the objects whose keys start with prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	token := ""
	for page := 0; page < c.maxPages; page++ {
		listing, err := c.listPage(ctx, prefix, token)
		if err != nil {
			return nil, err
		}
		objects = append(objects, listing.Objects...)
		if !listing.IsTruncated || listing.NextContinuationToken == "" {
			break
		}
		token = listing.NextContinuationToken
	}
	return objects, nil
}

func (c *Client) listPage(ctx context.Context, prefix, continuation string) (*Listing, error) {
	query := url.Values{
		"list-type": {"2"},
		"prefix":    {prefix},
	}
	if continuation != "" {
		query.Set("continuation-token", continuation)
	}
	rawQuery := sigv4.CanonicalQuery(query)
	path := sigv4.EncodePath("/" + c.bucket)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path+"?"+rawQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	headers := map[string]string{
		"host":                 c.host,
		"x-amz-content-sha256": sigv4.EmptyPayloadHash,
	}
	if err := c.sign(ctx, req, path, rawQuery, headers, sigv4.EmptyPayloadHash); err != nil {
		return nil, err
	}

	body, err := c.do(req, "list")
	if err != nil {
		return nil, err
	}
	return ParseListing(body)
}

// PublicURL returns the shareable URL of key: the public base URL followed by
// the escaped key segments, or oci://bucket/key when no base URL is set.
func (c *Client) PublicURL(key string) string {
	if c.publicBaseURL == "" {
		return "oci://" + c.bucket + "/" + key
	}
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = sigv4.Escape(seg)
	}
	return c.publicBaseURL + "/" + strings.Join(segments, "/")
}

func (c *Client) sign(ctx context.Context, req *http.Request, path, rawQuery string, headers map[string]string, payloadHash string) error {
	creds, err := c.credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return ErrNoCredentials
	}

	now := c.now().UTC()
	headers["x-amz-date"] = sigv4.AmzDate(now)
	if creds.SessionToken != "" {
		headers["x-amz-security-token"] = creds.SessionToken
	}

	auth := c.signer.Sign(sigv4.Request{
		Method:      req.Method,
		Path:        path,
		Query:       rawQuery,
		Headers:     headers,
		PayloadHash: payloadHash,
	}, creds, now)

	for name, value := range headers {
		if name == "host" {
			req.Host = value
			continue
		}
		req.Header.Set(name, value)
	}
	req.Header.Set("Authorization", auth)
	return nil
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("object store %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read object store %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Op: op, Status: resp.StatusCode, Body: truncate(body)}
	}
	return body, nil
}
