// Package authclient signs users in against a GoTrue-compatible password
// grant endpoint.
package authclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/auth"
)

var _ auth.Authenticator = (*Client)(nil)

// maxBodySize bounds how much of a response is read.
const maxBodySize = 1 << 20

// Config holds the endpoint settings.
type Config struct {
	// BaseURL is the auth API root, e.g. https://project.supabase.co/auth/v1.
	BaseURL string
	// APIKey is sent in the apikey header.
	APIKey  string
	Timeout time.Duration
}

// Client implements auth.Authenticator over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithTelemetry instruments the transport with the given providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(cl *Client) {
		cl.http.Transport = otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
		)
	}
}

// New returns a Client for cfg.
func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SignIn exchanges email and password for a session. Client errors of the
// backend (400, 401, 403, 422) become *auth.RejectedError.
func (c *Client) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("email")
	e.Str(email)
	e.FieldStart("password")
	e.Str(password)
	e.ObjEnd()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/token?grant_type=password", bytes.NewReader(e.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send sign in request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "read sign in response")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		s, err := decodeSession(body, c.now())
		if err != nil {
			return nil, errors.Wrap(err, "decode session")
		}
		return s, nil
	case isRejection(resp.StatusCode):
		msg := decodeErrorMessage(body)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &auth.RejectedError{Message: msg}
	default:
		return nil, errors.Errorf("unexpected status %d", resp.StatusCode)
	}
}

func isRejection(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func decodeSession(body []byte, now time.Time) (*auth.Session, error) {
	var (
		s         auth.Session
		expiresIn int64
		expiresAt int64
	)
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "access_token":
			s.AccessToken, err = d.Str()
		case "refresh_token":
			s.RefreshToken, err = d.Str()
		case "token_type":
			s.TokenType, err = d.Str()
		case "expires_in":
			expiresIn, err = d.Int64()
		case "expires_at":
			expiresAt, err = d.Int64()
		case "user":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "id":
					s.User.ID, err = d.Str()
				case "email":
					s.User.Email, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return nil, errors.New("response has no access token")
	}

	switch {
	case expiresAt > 0:
		s.ExpiresAt = time.Unix(expiresAt, 0)
	case expiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(expiresIn) * time.Second)
	}
	return &s, nil
}

// decodeErrorMessage picks the user-facing message from the error shapes
// GoTrue has used over time.
func decodeErrorMessage(body []byte) string {
	fields := map[string]string{}
	_ = jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "error_description", "msg", "message", "error":
			if d.Next() != jx.String {
				return d.Skip()
			}
			v, err := d.Str()
			if err != nil {
				return err
			}
			fields[key] = v
			return nil
		default:
			return d.Skip()
		}
	})
	for _, k := range []string{"error_description", "msg", "message", "error"} {
		if v := fields[k]; v != "" {
			return v
		}
	}
	return ""
}
