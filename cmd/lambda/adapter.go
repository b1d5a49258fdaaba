package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// proxy adapts API Gateway proxy events to an http.Handler.
type proxy struct {
	router http.Handler
	logger *slog.Logger
}

func newProxy(router http.Handler, logger *slog.Logger) *proxy {
	return &proxy{router: router, logger: logger}
}

// handle is the Lambda handler function. The router is shared by every
// invocation of the execution environment.
func (p *proxy) handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	httpReq, err := createHTTPRequest(ctx, req)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to adapt proxy event", slog.Any("error", err))
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusBadRequest,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error":"Requête invalide"}`,
		}, nil
	}

	rec := newResponseRecorder()
	p.router.ServeHTTP(rec, httpReq)
	return rec.proxyResponse(), nil
}

// createHTTPRequest creates an http.Request from an API Gateway event
func createHTTPRequest(ctx context.Context, req events.APIGatewayProxyRequest) (*http.Request, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode body: %w", err)
		}
		body = decoded
	}

	path := req.Path
	if path == "" {
		path = "/"
	}
	for param, value := range req.PathParameters {
		path = strings.ReplaceAll(path, "{"+param+"}", value)
	}

	u := &url.URL{Path: path}
	query := url.Values{}
	if len(req.MultiValueQueryStringParameters) > 0 {
		for param, values := range req.MultiValueQueryStringParameters {
			query[param] = append(query[param], values...)
		}
	} else {
		for param, value := range req.QueryStringParameters {
			query.Add(param, value)
		}
	}
	u.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, req.HTTPMethod, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.ContentLength = int64(len(body))

	if len(req.MultiValueHeaders) > 0 {
		for key, values := range req.MultiValueHeaders {
			for _, value := range values {
				httpReq.Header.Add(key, value)
			}
		}
	} else {
		for key, value := range req.Headers {
			httpReq.Header.Add(key, value)
		}
	}

	if host := httpReq.Header.Get("Host"); host != "" {
		httpReq.Host = host
	}
	if ip := req.RequestContext.Identity.SourceIP; ip != "" {
		httpReq.RemoteAddr = ip
	}
	return httpReq, nil
}

// responseRecorder captures the router's response
type responseRecorder struct {
	header      http.Header
	body        bytes.Buffer
	statusCode  int
	wroteHeader bool
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{
		header:     http.Header{},
		statusCode: http.StatusOK,
	}
}

// Header implements the http.ResponseWriter interface
func (r *responseRecorder) Header() http.Header {
	return r.header
}

// Write implements the http.ResponseWriter interface
func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.body.Write(b)
}

// WriteHeader implements the http.ResponseWriter interface
func (r *responseRecorder) WriteHeader(statusCode int) {
	if r.wroteHeader {
		return
	}
	r.statusCode = statusCode
	r.wroteHeader = true
}

func (r *responseRecorder) proxyResponse() events.APIGatewayProxyResponse {
	headers := make(map[string]string, len(r.header))
	multi := make(map[string][]string, len(r.header))
	for key, values := range r.header {
		if len(values) == 0 {
			continue
		}
		headers[key] = values[0]
		multi[key] = append([]string(nil), values...)
	}
	return events.APIGatewayProxyResponse{
		StatusCode:        r.statusCode,
		Headers:           headers,
		MultiValueHeaders: multi,
		Body:              r.body.String(),
	}
}
