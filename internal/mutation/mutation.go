// Package mutation runs writes against the marketplace service and keeps the
// query cache consistent with them.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"marketplace-bff/internal/apperr"
	"marketplace-bff/internal/query"
	"marketplace-bff/internal/services"
	"marketplace-bff/internal/telemetry"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notification is the user-facing message for a finished mutation.
type Notification struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Outcome is what every mutation resolves to. Exactly one of Data and Err is
// meaningful.
type Outcome[Out any] struct {
	Data         Out
	Err          error
	Notification Notification
}

func (o Outcome[Out]) OK() bool {
	return o.Err == nil
}

// Mutation describes one write. Prepare normalizes the input before struct
// tag validation; Invalidates names the query keys the write makes stale.
type Mutation[In, Out any] struct {
	Name        string
	Prepare     func(In) (In, error)
	Do          func(ctx context.Context, in In) (Out, error)
	Invalidates func(in In, out Out) []query.Key
	Success     func(in In, out Out) string
	Failure     string
}

type Coordinator struct {
	cache    *query.Cache
	ready    services.Readiness
	validate *validator.Validate
	logger   *slog.Logger
}

func NewCoordinator(cache *query.Cache, ready services.Readiness, logger *slog.Logger) *Coordinator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	return &Coordinator{
		cache:    cache,
		ready:    ready,
		validate: v,
		logger:   logger.With("component", "mutation"),
	}
}

// Validate checks v against its `validate` struct tags. Non-struct values
// always pass.
func (c *Coordinator) Validate(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	err := c.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperr.Validation("", err.Error())
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return apperr.Validation(fe.Field(), "Please fill in all fields")
	case "email":
		return apperr.Validation(fe.Field(), "Please enter a valid email address")
	default:
		return apperr.Validation(fe.Field(), fmt.Sprintf("%s is invalid", fe.Field()))
	}
}

// Run executes m. It never panics: validation failures, an unready service,
// backend errors and panics inside Do all come back as a failed Outcome, and
// in those cases the cache is left untouched.
func Run[In, Out any](ctx context.Context, c *Coordinator, m Mutation[In, Out], in In) Outcome[Out] {
	var out Outcome[Out]
	logger := c.logger.With("mutation", m.Name)

	fail := func(result string, err error) Outcome[Out] {
		telemetry.Mutations.WithLabelValues(m.Name, result).Inc()
		out.Err = err
		out.Notification = Notification{Kind: KindError, Message: failureMessage(m.Failure, err)}
		return out
	}

	if m.Prepare != nil {
		prepared, err := m.Prepare(in)
		if err != nil {
			return fail("invalid", asValidation(err))
		}
		in = prepared
	}
	if err := c.Validate(in); err != nil {
		return fail("invalid", err)
	}

	if c.ready != nil && !c.ready.Ready() {
		return fail("not_ready", apperr.NotReady("marketplace service", nil))
	}

	data, err := call(ctx, m, in)
	if err != nil {
		if apperr.IsNotReady(err) {
			return fail("not_ready", err)
		}
		logger.Warn("Mutation failed", "error", err)
		return fail("error", err)
	}

	if m.Invalidates != nil {
		keys := m.Invalidates(in, data)
		n := c.cache.Invalidate(ctx, keys...)
		logger.Debug("Mutation invalidated queries", "prefixes", keys, "entries", n)
	}

	telemetry.Mutations.WithLabelValues(m.Name, "ok").Inc()
	out.Data = data
	msg := ""
	if m.Success != nil {
		msg = m.Success(in, data)
	}
	out.Notification = Notification{Kind: KindSuccess, Message: msg}
	return out
}

func call[In, Out any](ctx context.Context, m Mutation[In, Out], in In) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Remote(m.Name, 0, fmt.Errorf("panic: %v", r))
		}
	}()
	return m.Do(ctx, in)
}

func asValidation(err error) error {
	if apperr.IsValidation(err) {
		return err
	}
	return apperr.Validation("", err.Error())
}

func failureMessage(fallback string, err error) string {
	if apperr.IsValidation(err) || apperr.IsNotReady(err) {
		if appErr, ok := apperr.As(err); ok {
			return appErr.Message()
		}
	}
	if fallback == "" {
		return "Something went wrong"
	}
	return fallback
}
