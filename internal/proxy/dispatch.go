package proxy

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edouard/botwire/internal/schema"
)

// Transport performs one API request and returns the raw response body.
// It must not fail on HTTP 400, whose body carries the API error, and must
// fail on any other non-2xx status. Implementations must be safe for
// concurrent use.
type Transport interface {
	Request(ctx context.Context, method string, fields map[string]string, files map[string]io.Reader) ([]byte, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, method string, fields map[string]string, files map[string]io.Reader) ([]byte, error)

func (f TransportFunc) Request(ctx context.Context, method string, fields map[string]string, files map[string]io.Reader) ([]byte, error) {
	return f(ctx, method, fields, files)
}

// Dispatcher maps a method name and keyword arguments to exactly one
// transport request and decodes the result.
type Dispatcher struct {
	codec     atomic.Pointer[codec]
	transport Transport
	tracer    trace.Tracer
}

// codec is a registry with the marshallers built over it. Calls capture
// one codec so a concurrent SetRegistry never mixes two schemas.
type codec struct {
	reg          *schema.Registry
	marshaller   *Marshaller
	unmarshaller *Unmarshaller
}

func newCodec(reg *schema.Registry) *codec {
	return &codec{reg: reg, marshaller: NewMarshaller(reg), unmarshaller: NewUnmarshaller(reg)}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTracer sets the tracer used for call spans. The default is the
// global provider's "botwire/proxy" tracer.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// NewDispatcher creates a Dispatcher over a built registry.
func NewDispatcher(reg *schema.Registry, t Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: t,
		tracer:    otel.Tracer("botwire/proxy"),
	}
	d.codec.Store(newCodec(reg))
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the schema calls are currently checked against.
func (d *Dispatcher) Registry() *schema.Registry { return d.codec.Load().reg }

// Marshaller returns the marshaller for the current schema.
func (d *Dispatcher) Marshaller() *Marshaller { return d.codec.Load().marshaller }

// SetRegistry replaces the schema. Calls already started finish with the
// schema they began with.
func (d *Dispatcher) SetRegistry(reg *schema.Registry) {
	d.codec.Store(newCodec(reg))
	log.Info().
		Str("component", "proxy").
		Str("operation", "set_registry").
		Int("methods", len(reg.Methods())).
		Msg("schema replaced")
}

// call is the per-invocation state shared by Call and Go.
type call struct {
	codec  *codec
	id     string
	ctx    context.Context
	method *schema.Method
	fields map[string]string
	files  map[string]io.Reader
	span   trace.Span
	start  time.Time
}

// Call invokes method and blocks until the transport returns.
func (d *Dispatcher) Call(ctx context.Context, method string, args map[string]any) (any, error) {
	c, err := d.prepare(ctx, method, args)
	if err != nil {
		return nil, err
	}
	body, err := d.transport.Request(c.ctx, method, c.fields, c.files)
	return d.finish(c, body, err)
}

// Pending is an in-flight call started with Go.
type Pending struct {
	done   chan struct{}
	result any
	err    error
}

// Done is closed once the call has completed.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the call completes and returns its outcome.
func (p *Pending) Wait() (any, error) {
	<-p.done
	return p.result, p.err
}

// Go starts method without blocking on the transport. Schema errors are
// reported through the returned Pending, which is then already done.
func (d *Dispatcher) Go(ctx context.Context, method string, args map[string]any) *Pending {
	p := &Pending{done: make(chan struct{})}
	c, err := d.prepare(ctx, method, args)
	if err != nil {
		p.err = err
		close(p.done)
		return p
	}
	go func() {
		defer close(p.done)
		body, err := d.transport.Request(c.ctx, method, c.fields, c.files)
		p.result, p.err = d.finish(c, body, err)
	}()
	return p
}

// prepare looks up and marshals a call. Nothing is sent on failure.
func (d *Dispatcher) prepare(ctx context.Context, name string, args map[string]any) (*call, error) {
	id := uuid.NewString()
	ctx, span := d.tracer.Start(ctx, "botapi."+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.method", name),
			attribute.String("botwire.call_id", id),
		),
	)

	cd := d.codec.Load()
	m, err := cd.reg.Lookup(name)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	fields, files, err := cd.marshaller.Marshal(m, args)
	if err != nil {
		log.Debug().
			Str("component", "proxy").
			Str("operation", "marshal").
			Str("method", name).
			Err(err).
			Msg("arguments rejected")
		endSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("botwire.files", len(files)))

	return &call{
		codec:  cd,
		id:     id,
		ctx:    ctx,
		method: m,
		fields: fields,
		files:  files,
		span:   span,
		start:  time.Now(),
	}, nil
}

// finish decodes the transport outcome. Transport errors are returned as is.
func (d *Dispatcher) finish(c *call, body []byte, err error) (any, error) {
	elapsed := time.Since(c.start)
	if err != nil {
		log.Debug().
			Str("component", "proxy").
			Str("operation", "call").
			Str("method", c.method.Name).
			Str("call_id", c.id).
			Dur("duration", elapsed).
			Err(err).
			Msg("transport failed")
		endSpan(c.span, err)
		return nil, err
	}

	result, err := c.codec.unmarshaller.UnmarshalBody(c.method.Returns, body)
	if err != nil {
		var te *TeleError
		if errors.As(err, &te) {
			c.span.SetAttributes(attribute.Int("botwire.error_code", te.Code))
			log.Warn().
				Str("component", "proxy").
				Str("operation", "call").
				Str("method", c.method.Name).
				Str("call_id", c.id).
				Int("error_code", te.Code).
				Str("description", te.Description).
				Msg("api error")
		} else {
			log.Error().
				Str("component", "proxy").
				Str("operation", "call").
				Str("method", c.method.Name).
				Str("call_id", c.id).
				Err(err).
				Msg("response decoding failed")
		}
		endSpan(c.span, err)
		return nil, err
	}

	log.Debug().
		Str("component", "proxy").
		Str("operation", "call").
		Str("method", c.method.Name).
		Str("call_id", c.id).
		Dur("duration", elapsed).
		Msg("call completed")
	endSpan(c.span, nil)
	return result, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
