// Package identity exchanges the opaque application token for a famille id
// through the backend's RPC endpoint.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
)

// Resolution errors
var (
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrTenantNotFound = errors.New("no famille for token")
)

// Resolver maps an opaque caller token to a tenant id.
type Resolver interface {
	Resolve(ctx context.Context, token string) (int64, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, token string) (int64, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, token string) (int64, error) {
	return f(ctx, token)
}

// RPCResolver calls a PostgREST remote procedure:
// POST {BaseURL}/rest/v1/rpc/{Function} with body {"{Param}": token}.
type RPCResolver struct {
	BaseURL    string
	ServiceKey string
	Function   string
	Param      string
	// Timeout bounds one resolution; zero means none.
	Timeout time.Duration
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// NewRPCResolver creates a resolver whose calls are bounded by timeout.
func NewRPCResolver(baseURL, serviceKey, function, param string, timeout time.Duration) *RPCResolver {
	return &RPCResolver{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ServiceKey: serviceKey,
		Function:   function,
		Param:      param,
		Timeout:    timeout,
	}
}

// Resolve returns the famille id bound to token.
func (r *RPCResolver) Resolve(ctx context.Context, token string) (int64, error) {
	if strings.TrimSpace(token) == "" {
		return 0, ErrInvalidToken
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	// postgrest.Client keeps its last error on the struct, so each call gets
	// its own client.
	client := postgrest.NewClient(strings.TrimRight(r.BaseURL, "/")+"/rest/v1", "", map[string]string{
		"apikey":        r.ServiceKey,
		"Authorization": "Bearer " + r.ServiceKey,
	})
	if client.ClientError != nil {
		return 0, fmt.Errorf("%w: rpc client: %v", ErrInvalidToken, client.ClientError)
	}
	call := &callTransport{ctx: ctx, next: r.Transport}
	client.Transport.Parent = call

	body := client.Rpc(r.Function, "", map[string]string{r.Param: token})
	if client.ClientError != nil {
		return 0, fmt.Errorf("%w: rpc %s: %v", ErrInvalidToken, r.Function, client.ClientError)
	}
	if call.status < 200 || call.status > 299 {
		return 0, fmt.Errorf("%w: rpc %s returned %d", ErrInvalidToken, r.Function, call.status)
	}

	id, ok, err := decodeFamilleID([]byte(body))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !ok {
		return 0, ErrTenantNotFound
	}
	return id, nil
}

// callTransport binds the postgrest request to the caller's context and
// records the response status, which Client.Rpc does not expose.
type callTransport struct {
	ctx    context.Context
	next   http.RoundTripper
	status int
}

func (t *callTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	resp, err := next.RoundTrip(req.WithContext(t.ctx))
	if err != nil {
		return nil, err
	}
	t.status = resp.StatusCode
	return resp, nil
}

// decodeFamilleID accepts the shapes PostgREST produces for scalar and
// set-returning functions: 42, null, {"famille_id": 42} or [{"famille_id": 42}].
func decodeFamilleID(body []byte) (int64, bool, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return 0, false, nil
	}

	var raw any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return 0, false, fmt.Errorf("decode rpc response: %w", err)
	}
	return familleIDFrom(raw)
}

func familleIDFrom(raw any) (int64, bool, error) {
	switch v := raw.(type) {
	case nil:
		return 0, false, nil
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, false, fmt.Errorf("famille id %q is not an integer", v.String())
		}
		return id, id > 0, nil
	case string:
		return familleIDFrom(json.Number(v))
	case []any:
		if len(v) == 0 {
			return 0, false, nil
		}
		return familleIDFrom(v[0])
	case map[string]any:
		for _, key := range []string{"famille_id", "familleId", "id"} {
			if field, ok := v[key]; ok {
				return familleIDFrom(field)
			}
		}
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("unexpected rpc response type %T", raw)
	}
}
