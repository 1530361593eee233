package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Request builds and executes one HTTP request.
type Request interface {
	Get(ctx context.Context, url string) (*Response, error)
	Post(ctx context.Context, url string) (*Response, error)

	// SetBody accepts []byte, string, io.Reader or any JSON-encodable value.
	SetBody(body any) Request
	SetHeader(key, value string) Request
	// SetResult sets the target for JSON unmarshaling of the response body.
	SetResult(result any) Request
}

// Response wraps http.Response with the body already read.
type Response struct {
	*http.Response
	body []byte
}

// Body returns the response body.
func (r *Response) Body() []byte {
	return r.body
}

// IsError reports whether the status code is 400 or above.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

type requestBuilder struct {
	client         *http.Client
	requestCounter metric.Int64Counter
	providerName   string
	tracer         trace.Tracer
	headers        map[string]string
	body           any
	result         any
}

func (r *requestBuilder) Get(ctx context.Context, url string) (*Response, error) {
	return r.execute(ctx, http.MethodGet, url)
}

func (r *requestBuilder) Post(ctx context.Context, url string) (*Response, error) {
	return r.execute(ctx, http.MethodPost, url)
}

func (r *requestBuilder) SetBody(body any) Request {
	r.body = body
	return r
}

func (r *requestBuilder) SetHeader(key, value string) Request {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *requestBuilder) SetResult(result any) Request {
	r.result = result
	return r
}

func (r *requestBuilder) execute(ctx context.Context, method, url string) (*Response, error) {
	ctx, span := r.tracer.Start(ctx, "http.request",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", url),
			attribute.String("provider", r.providerName),
		),
	)
	defer span.End()

	bodyReader, err := r.encodeBody()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encoding body")
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "building request")
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.recordFailure(ctx, span, err)
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		r.recordFailure(ctx, span, err)
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	response := &Response{Response: resp, body: body}
	if response.IsError() {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	}

	// A body that fails to unmarshal is not a failed request; the caller
	// still gets the raw bytes and the status code.
	if r.result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, r.result); err != nil {
			span.RecordError(err)
		}
	}

	r.count(ctx, !response.IsError())
	return response, nil
}

// encodeBody turns the configured body into a reader, JSON-encoding
// anything that is not already bytes, a string or a reader.
func (r *requestBuilder) encodeBody() (io.Reader, error) {
	if r.body == nil {
		return nil, nil
	}
	switch b := r.body.(type) {
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	case io.Reader:
		return b, nil
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		if r.headers == nil {
			r.headers = make(map[string]string)
		}
		if _, ok := r.headers["Content-Type"]; !ok {
			r.headers["Content-Type"] = "application/json"
		}
		return bytes.NewReader(payload), nil
	}
}

func (r *requestBuilder) recordFailure(ctx context.Context, span trace.Span, err error) {
	span.RecordError(err)
	if errors.Is(err, context.Canceled) {
		span.SetAttributes(attribute.Bool("context.cancelled", true))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		span.SetAttributes(attribute.Bool("request.timeout", true))
	}
	span.SetStatus(codes.Error, err.Error())
	r.count(ctx, false)
}

func (r *requestBuilder) count(ctx context.Context, success bool) {
	r.requestCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", r.providerName),
		attribute.Bool("success", success),
	))
}
