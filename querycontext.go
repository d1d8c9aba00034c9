package arbor

import "context"

// QueryContext carries the bookkeeping the planner/executor attach to a
// request as it descends through nested include/select levels: the set of
// fields actually requested at the current level (used to decide whether a
// column needs to be selected at all), and pagination already resolved by
// the input validator.
type QueryContext struct {
	// Fields lists the logical field names requested at this level.
	Fields []string
	// Limit is the resolved `take`.
	Limit *int
	// Offset is the resolved `skip`.
	Offset *int
}

// Clone returns a deep-enough copy of qc so that mutating the clone's Fields
// slice never affects the original.
func (qc *QueryContext) Clone() *QueryContext {
	if qc == nil {
		return nil
	}
	clone := &QueryContext{}
	if qc.Fields != nil {
		clone.Fields = append([]string(nil), qc.Fields...)
	}
	if qc.Limit != nil {
		limit := *qc.Limit
		clone.Limit = &limit
	}
	if qc.Offset != nil {
		offset := *qc.Offset
		clone.Offset = &offset
	}
	return clone
}

// AppendFieldOnce returns a QueryContext with field appended to Fields unless
// it is already present, for adding a field that has to be selected
// implicitly (such as a virtual field's dependency).
func (qc *QueryContext) AppendFieldOnce(field string) *QueryContext {
	clone := qc.Clone()
	if clone == nil {
		clone = &QueryContext{}
	}
	for _, f := range clone.Fields {
		if f == field {
			return clone
		}
	}
	clone.Fields = append(clone.Fields, field)
	return clone
}

type queryContextKey struct{}

// NewQueryContext returns a new context carrying qc, retrievable via QueryFromContext.
func NewQueryContext(ctx context.Context, qc *QueryContext) context.Context {
	return context.WithValue(ctx, queryContextKey{}, qc)
}

// QueryFromContext returns the QueryContext attached to ctx, or nil if none.
func QueryFromContext(ctx context.Context) *QueryContext {
	qc, _ := ctx.Value(queryContextKey{}).(*QueryContext)
	return qc
}

// authKey is the context key under which WithAuth stores the authenticated subject.
type authKey struct{}

// WithAuth returns a new context carrying subject as the authenticated subject.
func WithAuth(ctx context.Context, subject any) context.Context {
	return context.WithValue(ctx, authKey{}, subject)
}

// AuthFromContext returns the authenticated subject set by WithAuth, if any.
func AuthFromContext(ctx context.Context) (any, bool) {
	v := ctx.Value(authKey{})
	return v, v != nil
}
