// Package sigv4 builds AWS Signature Version 4 Authorization headers for the
// S3-compatible object store. Signing is pure: the same inputs always produce
// the same header value.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

const (
	// Algorithm is the signing algorithm identifier used in the header and string-to-sign.
	Algorithm = "AWS4-HMAC-SHA256"

	// ServiceS3 is the service component of the credential scope.
	ServiceS3 = "s3"

	// EmptyPayloadHash is hex(SHA-256("")), used for requests without a body.
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	amzDateFormat   = "20060102T150405Z"
	dateStampFormat = "20060102"
	terminator      = "aws4_request"
)

// Request carries the parts of an HTTP request that take part in the signature.
// Path must already be encoded (see EncodePath) and Query already canonical
// (see CanonicalQuery). Header names are matched case-insensitively.
type Request struct {
	Method      string
	Path        string
	Query       string
	Headers     map[string]string
	PayloadHash string
}

// Signer signs requests for one region/service pair.
type Signer struct {
	Region  string
	Service string
}

// New returns a Signer for the S3 service in region.
func New(region string) Signer {
	return Signer{Region: region, Service: ServiceS3}
}

// Sign returns the Authorization header value for req signed at t.
func (s Signer) Sign(req Request, creds aws.Credentials, t time.Time) string {
	service := s.Service
	if service == "" {
		service = ServiceS3
	}
	dateStamp := DateStamp(t)
	scope := CredentialScope(dateStamp, s.Region, service)

	canonical, signedHeaders := CanonicalRequest(req)
	stringToSign := StringToSign(AmzDate(t), scope, canonical)
	signature := hex.EncodeToString(hmacSHA256(SigningKey(creds.SecretAccessKey, dateStamp, s.Region, service), stringToSign))

	return fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		Algorithm, creds.AccessKeyID, scope, signedHeaders, signature)
}

// CanonicalRequest returns the canonical request string and the
// semicolon-joined list of signed header names.
func CanonicalRequest(req Request) (canonical, signedHeaders string) {
	payloadHash := req.PayloadHash
	if payloadHash == "" {
		payloadHash = EmptyPayloadHash
	}
	headersBlock, signed := canonicalHeaders(req.Headers)
	path := req.Path
	if path == "" {
		path = "/"
	}

	canonical = strings.Join([]string{
		req.Method,
		path,
		req.Query,
		headersBlock,
		signed,
		payloadHash,
	}, "\n")
	return canonical, signed
}

// CredentialScope returns "date/region/service/aws4_request".
func CredentialScope(dateStamp, region, service string) string {
	return strings.Join([]string{dateStamp, region, service, terminator}, "/")
}

// StringToSign hashes the canonical request into the string that gets signed.
func StringToSign(amzDate, scope, canonicalRequest string) string {
	return strings.Join([]string{
		Algorithm,
		amzDate,
		scope,
		PayloadHash([]byte(canonicalRequest)),
	}, "\n")
}

// SigningKey derives the request signing key from the secret through the
// date, region, service and terminator HMAC chain.
func SigningKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, terminator)
}

// PayloadHash returns the lowercase hex SHA-256 of body.
func PayloadHash(body []byte) string {
	if len(body) == 0 {
		return EmptyPayloadHash
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// AmzDate formats t as the x-amz-date header value.
func AmzDate(t time.Time) string {
	return t.UTC().Format(amzDateFormat)
}

// DateStamp formats t as the 8-digit credential scope date.
func DateStamp(t time.Time) string {
	return t.UTC().Format(dateStampFormat)
}

// EncodePath percent-encodes each segment of an unescaped path, keeping '/'.
func EncodePath(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = Escape(seg)
	}
	encoded := strings.Join(segments, "/")
	if !strings.HasPrefix(encoded, "/") {
		encoded = "/" + encoded
	}
	return encoded
}

// CanonicalQuery sorts values by key then value and encodes each pair.
func CanonicalQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		vals := append([]string(nil), values[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			pairs = append(pairs, Escape(k)+"="+Escape(v))
		}
	}
	return strings.Join(pairs, "&")
}

// Escape applies the SigV4 URI encoding: unreserved characters pass through,
// everything else (including '/') becomes %XX with uppercase hex.
func Escape(value string) string {
	const hexChars = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(value) * 3)
	for i := 0; i < len(value); i++ {
		c := value[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexChars[c>>4])
		b.WriteByte(hexChars[c&0x0F])
	}
	return b.String()
}

func canonicalHeaders(headers map[string]string) (block, signed string) {
	normalized := make(map[string]string, len(headers))
	names := make([]string, 0, len(headers))
	for name, value := range headers {
		lower := strings.ToLower(strings.TrimSpace(name))
		if _, seen := normalized[lower]; !seen {
			names = append(names, lower)
		}
		normalized[lower] = strings.Join(strings.Fields(value), " ")
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(normalized[name])
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(data))
	return mac.Sum(nil)
}
