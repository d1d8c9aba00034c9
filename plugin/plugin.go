// Package plugin implements plugin runtime: a registry of
// Plugins, each contributing any subset of a query interceptor, a raw-SQL
// interceptor, a procedure interceptor, a mutation hook, and client
// extension members, folded together from last-registered to first so the
// first-registered plugin ends up as the outermost layer and sees the
// proceed call last. Grounded on the root arbor package's
// Interceptor/Hook/Chain machinery (ent-style middleware), generalized from
// mutation hooks alone to the plugin's full hook surface.
package plugin

import (
	"context"
	"fmt"

	"github.com/arbordb/arbor"
)

// ProcedureCall is the payload a $procs.<name>(...) invocation compiles to.
type ProcedureCall struct {
	Name string
	Args map[string]any
}

// ProcedureHandler executes one procedure call.
type ProcedureHandler func(ctx context.Context, call ProcedureCall) (arbor.Value, error)

// ProcedureInterceptor wraps the next ProcedureHandler in the chain.
type ProcedureInterceptor func(next ProcedureHandler) ProcedureHandler

// SQLInterceptor observes (and may reject) one statement the executor is
// about to send to the driver. Unlike OnQuery/OnEntityMutation it is not
// folded into a proceed chain: every registered SQLInterceptor runs in
// registration order and the first error stops the statement. This keeps
// running even while a hook-initiated mutation has suppressed the mutation-
// hook pipeline for its own nested SQL.
type SQLInterceptor func(ctx context.Context, query string, args []any) error

// Plugin is the unit of registration a client's $use(plugin) call installs.
// Every field is optional; a Plugin need only set what it actually extends.
type Plugin struct {
	// ID identifies this plugin for $unuse(id); plugins without one can
	// still be registered but can only be removed via $unuseAll.
	ID string

	// OnQuery wraps the read-operation Querier chain.
	OnQuery arbor.Interceptor
	// OnEntityMutation wraps the mutation Mutator chain, the same Hook shape executor.Executor drives.
	OnEntityMutation arbor.Hook
	// OnKyselyQuery observes every statement reaching the driver.
	OnKyselyQuery SQLInterceptor
	// OnProcedure wraps a $procs.<name>(...) call.
	OnProcedure ProcedureInterceptor

	// Client contributes top-level members to the client proxy's attribute
	// lookup, e.g. a
	// custom method or computed property name to its implementation.
	Client map[string]any
}

// Registry is the immutable, ordered list of installed Plugins a client
// holds. $use/$unuse/$unuseAll all return a new Registry rather than
// mutating the receiver — the registry is the part of client state those
// calls actually replace, which is why Client.Use returns a new *Client
// wrapping the new Registry rather than mutating the one it was called on.
type Registry struct {
	plugins []*Plugin
}

// NewRegistry returns a Registry containing plugins, in registration order.
func NewRegistry(plugins ...*Plugin) Registry {
	return Registry{plugins: append([]*Plugin(nil), plugins...)}
}

// Use returns a new Registry with p appended as the most-recently-registered
// plugin.
func (r Registry) Use(p *Plugin) Registry {
	next := make([]*Plugin, len(r.plugins), len(r.plugins)+1)
	copy(next, r.plugins)
	next = append(next, p)
	return Registry{plugins: next}
}

// Unuse returns a new Registry with every plugin whose ID equals id removed.
func (r Registry) Unuse(id string) Registry {
	next := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		if p.ID == id {
			continue
		}
		next = append(next, p)
	}
	return Registry{plugins: next}
}

// UnuseAll returns an empty Registry.
func (r Registry) UnuseAll() Registry { return Registry{} }

// Plugins returns the registered plugins in registration order.
func (r Registry) Plugins() []*Plugin { return append([]*Plugin(nil), r.plugins...) }

// QueryInterceptor folds every plugin's OnQuery into a single Interceptor.
// Folding from last-registered to first means the first-registered plugin's
// Intercept call wraps everything else, so it is the outermost layer around
// the eventual call to the base Querier and sees the final result last —
// "first-registered sees the outermost proceed".
func (r Registry) QueryInterceptor() arbor.Interceptor {
	return arbor.InterceptFunc(func(next arbor.Querier) arbor.Querier {
		for i := len(r.plugins) - 1; i >= 0; i-- {
			p := r.plugins[i]
			if p.OnQuery == nil {
				continue
			}
			next = p.OnQuery.Intercept(next)
		}
		return next
	})
}

// MutationHooks collects every plugin's OnEntityMutation, in registration
// order, into an arbor.Chain — the same fold-from-last-registered-to-first
// rule arbor.Chain.Hook already implements.
func (r Registry) MutationHooks() arbor.Chain {
	var hooks []arbor.Hook
	for _, p := range r.plugins {
		if p.OnEntityMutation != nil {
			hooks = append(hooks, p.OnEntityMutation)
		}
	}
	return arbor.NewChain(hooks...)
}

// ProcedureHandler wraps base with every plugin's OnProcedure, same fold
// order as QueryInterceptor.
func (r Registry) ProcedureHandler(base ProcedureHandler) ProcedureHandler {
	handler := base
	for i := len(r.plugins) - 1; i >= 0; i-- {
		p := r.plugins[i]
		if p.OnProcedure == nil {
			continue
		}
		handler = p.OnProcedure(handler)
	}
	return handler
}

// SQLInterceptor composes every plugin's OnKyselyQuery into one function the
// executor installs via executor.WithSQLInterceptor, run in registration
// order; the first one to return an error stops the statement.
func (r Registry) SQLInterceptor() SQLInterceptor {
	return func(ctx context.Context, query string, args []any) error {
		for _, p := range r.plugins {
			if p.OnKyselyQuery == nil {
				continue
			}
			if err := p.OnKyselyQuery(ctx, query, args); err != nil {
				return err
			}
		}
		return nil
	}
}

// ResolveClientMember looks up name across every plugin's Client map,
// walking from the most-recently-registered plugin so a later registration
// wins over an earlier one.
func (r Registry) ResolveClientMember(name string) (any, bool) {
	for i := len(r.plugins) - 1; i >= 0; i-- {
		if v, ok := r.plugins[i].Client[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// ErrMemberNotFound is returned by a client proxy lookup that found neither a
// plugin-contributed member nor a built-in operation handler for name.
func ErrMemberNotFound(name string) error {
	return fmt.Errorf("plugin: no client member or built-in operation named %q", name)
}
