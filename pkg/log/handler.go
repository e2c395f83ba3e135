package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"

	mserrors "github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// ErrFmtHandler decorates records that carry an error attribute: it adds
// the cockroachdb/errors stacktrace, the concrete error type and, for
// failed grid-search fits, the candidate and fold that failed.
type ErrFmtHandler struct {
	handler slog.Handler
}

// WrapByErrFmtHandler wraps handler with an ErrFmtHandler.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{handler: handler}
}

func (eh *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

func (eh *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key != ErrAttrKey {
			return true
		}
		err, _ = attr.Value.Any().(error)
		return false
	})
	if err != nil {
		r.AddAttrs(errorAttrs(err)...)
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithAttrs(attrs)}
}

func (eh *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithGroup(g)}
}

// ErrorCode maps err to one of the Error* codes, or "" when none applies.
func ErrorCode(err error) string {
	var (
		nf  *mserrors.NotFittedError
		dim *mserrors.DimensionError
		val *mserrors.ValidationError
		ve  *mserrors.ValueError
		cw  *mserrors.ConvergenceWarning
		ni  *mserrors.NumericalInstabilityError
	)
	switch {
	case err == nil:
		return ""
	case mserrors.As(err, &nf):
		return ErrorNotFitted
	case mserrors.As(err, &dim):
		return ErrorDimensionMismatch
	case mserrors.Is(err, mserrors.ErrEmptyData):
		return ErrorEmptyData
	case mserrors.As(err, &val), mserrors.As(err, &ve):
		return ErrorInvalidInput
	case mserrors.As(err, &cw), mserrors.As(err, &ni):
		return ErrorConvergence
	}
	return ""
}

func errorAttrs(err error) []slog.Attr {
	attrs := []slog.Attr{slog.String(ErrorTypeKey, fmt.Sprintf("%T", errors.UnwrapAll(err)))}
	if code := ErrorCode(err); code != "" {
		attrs = append(attrs, slog.String(ErrorCodeKey, code))
	}
	if st := extractStacktrace(err); st != "" {
		attrs = append(attrs, slog.String(StacktraceAttrKey, st))
	}
	var ce *mserrors.CandidateError
	if mserrors.As(err, &ce) {
		attrs = append(attrs,
			slog.Int(CandidateKey, ce.Candidate),
			slog.Int(FoldKey, ce.Fold),
			slog.Any(ParamsKey, ce.Params),
		)
	}
	return attrs
}

func extractStacktrace(err error) string {
	if details := errors.GetSafeDetails(err).SafeDetails; len(details) > 0 {
		return details[0]
	}
	return ""
}
