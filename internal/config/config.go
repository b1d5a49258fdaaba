// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stefando/weddingPhotos/internal/objectstore"
)

// Configuration keys. They double as environment variable names.
const (
	KeySupabaseURL      = "SUPABASE_URL"
	KeyServiceRoleKey   = "SUPABASE_SERVICE_ROLE_KEY"
	KeyTokenRPCFunction = "TOKEN_RPC_FUNCTION"
	KeyTokenRPCParam    = "TOKEN_RPC_PARAM"
	KeyJWTSecret        = "SUPABASE_JWT_SECRET"
	KeyNamespace        = "OCI_NAMESPACE"
	KeyRegion           = "OCI_REGION"
	KeyBucket           = "OCI_BUCKET"
	KeyAccessKey        = "OCI_ACCESS_KEY"
	KeySecretKey        = "OCI_SECRET_KEY"
	KeyS3Endpoint       = "OCI_S3_ENDPOINT"
	KeyPublicBaseURL    = "PUBLIC_BASE_URL"
	KeyMaxUploadBytes   = "MAX_UPLOAD_BYTES"
	KeyListMaxPages     = "LIST_MAX_PAGES"
	KeyUpstreamTimeout  = "UPSTREAM_TIMEOUT"
	KeyHTTPAddr         = "HTTP_ADDR"
	KeyLogFormat        = "LOG_FORMAT"
	KeyLogLevel         = "LOG_LEVEL"
)

// Defaults
const (
	DefaultTokenRPCFunction = "get_famille_id_from_token"
	DefaultTokenRPCParam    = "p_token"
	DefaultMaxUploadBytes   = 10 << 20
	DefaultListMaxPages     = 1
	DefaultUpstreamTimeout  = 30 * time.Second
	DefaultHTTPAddr         = ":8080"
	DefaultLogFormat        = "text"
	DefaultLogLevel         = "info"
)

// ErrMissingConfig wraps every validation failure.
var ErrMissingConfig = errors.New("missing or invalid configuration")

// Config is the read-only configuration loaded at cold start.
type Config struct {
	SupabaseURL      string
	ServiceRoleKey   string
	TokenRPCFunction string
	TokenRPCParam    string
	JWTSecret        string

	Namespace     string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	S3Endpoint    string
	PublicBaseURL string

	MaxUploadBytes  int64
	ListMaxPages    int
	UpstreamTimeout time.Duration

	HTTPAddr  string
	LogFormat string
	LogLevel  string
}

// NewViper returns a viper instance with defaults registered and environment
// lookup enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyTokenRPCFunction, DefaultTokenRPCFunction)
	v.SetDefault(KeyTokenRPCParam, DefaultTokenRPCParam)
	v.SetDefault(KeyMaxUploadBytes, DefaultMaxUploadBytes)
	v.SetDefault(KeyListMaxPages, DefaultListMaxPages)
	v.SetDefault(KeyUpstreamTimeout, DefaultUpstreamTimeout)
	v.SetDefault(KeyHTTPAddr, DefaultHTTPAddr)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.AutomaticEnv()
	return v
}

// ReadFile merges a config file into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// parseDuration reads a Go duration string. A bare number has no unit and
// yields 0 so Validate rejects it instead of treating it as nanoseconds.
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d
}

// Load builds a Config from v. It does not validate.
func Load(v *viper.Viper) Config {
	return Config{
		SupabaseURL:      strings.TrimRight(strings.TrimSpace(v.GetString(KeySupabaseURL)), "/"),
		ServiceRoleKey:   strings.TrimSpace(v.GetString(KeyServiceRoleKey)),
		TokenRPCFunction: strings.TrimSpace(v.GetString(KeyTokenRPCFunction)),
		TokenRPCParam:    strings.TrimSpace(v.GetString(KeyTokenRPCParam)),
		JWTSecret:        v.GetString(KeyJWTSecret),

		Namespace:     strings.TrimSpace(v.GetString(KeyNamespace)),
		Region:        strings.TrimSpace(v.GetString(KeyRegion)),
		Bucket:        strings.TrimSpace(v.GetString(KeyBucket)),
		AccessKey:     strings.TrimSpace(v.GetString(KeyAccessKey)),
		SecretKey:     strings.TrimSpace(v.GetString(KeySecretKey)),
		S3Endpoint:    strings.TrimRight(strings.TrimSpace(v.GetString(KeyS3Endpoint)), "/"),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(v.GetString(KeyPublicBaseURL)), "/"),

		MaxUploadBytes:  v.GetInt64(KeyMaxUploadBytes),
		ListMaxPages:    v.GetInt(KeyListMaxPages),
		UpstreamTimeout: parseDuration(v.GetString(KeyUpstreamTimeout)),

		HTTPAddr:  v.GetString(KeyHTTPAddr),
		LogFormat: strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
		LogLevel:  strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
	}
}

// StoreEndpoint returns the explicit endpoint override or the OCI S3
// compatibility endpoint derived from namespace and region.
func (c Config) StoreEndpoint() string {
	if c.S3Endpoint != "" {
		return c.S3Endpoint
	}
	if c.Namespace == "" || c.Region == "" {
		return ""
	}
	return objectstore.OCIEndpoint(c.Namespace, c.Region)
}

// Validate reports every missing or invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	required := func(key, value string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	required(KeySupabaseURL, c.SupabaseURL)
	required(KeyServiceRoleKey, c.ServiceRoleKey)
	required(KeyTokenRPCFunction, c.TokenRPCFunction)
	required(KeyTokenRPCParam, c.TokenRPCParam)
	required(KeyRegion, c.Region)
	required(KeyBucket, c.Bucket)
	if c.S3Endpoint == "" {
		required(KeyNamespace, c.Namespace)
	}

	// Static keys come as a pair; neither means the default credential chain
	if (c.AccessKey == "") != (c.SecretKey == "") {
		errs = append(errs, fmt.Errorf("%s and %s must be set together", KeyAccessKey, KeySecretKey))
	}

	for key, raw := range map[string]string{
		KeySupabaseURL:   c.SupabaseURL,
		KeyS3Endpoint:    c.S3Endpoint,
		KeyPublicBaseURL: c.PublicBaseURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", key, raw))
		}
	}

	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", KeyMaxUploadBytes))
	}
	if c.ListMaxPages < 1 {
		errs = append(errs, fmt.Errorf("%s must be >= 1", KeyListMaxPages))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be a positive duration with a unit (e.g. 30s)", KeyUpstreamTimeout))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("%s must be text or json, got %q", KeyLogFormat, c.LogFormat))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrMissingConfig, errors.Join(errs...))
}
