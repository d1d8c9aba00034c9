package client

import (
	"context"
	"fmt"

	"github.com/arbordb/arbor"
	"github.com/arbordb/arbor/plugin"
)

// ConfigError reports a $procs.<name> call that the schema or registration
// state cannot service, as distinct from a validation error in the caller's
// arguments.
type ConfigError struct {
	Name string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("client: procedure %q: %s", e.Name, e.Reason)
}

// Proc invokes the named procedure: `$procs.<name>(input?)`.
// Argument checking is limited to presence and unknown-name rejection —
// scalar type-checking for procedure args has no model shape for
// validate.Validator to compile against, so it is left to the registered
// handler body rather than a generated decoder.
func (c *Client) Proc(ctx context.Context, name string, args map[string]any) (arbor.Value, error) {
	proc, ok := c.schema.Procedure(name)
	if !ok {
		return nil, &ConfigError{Name: name, Reason: "not declared in schema"}
	}
	handler, ok := c.procs[name]
	if !ok {
		return nil, &ConfigError{Name: name, Reason: "no handler registered"}
	}

	if args == nil {
		if !proc.AllOptional() {
			return nil, fmt.Errorf("client: procedure %q: args required", name)
		}
		args = map[string]any{}
	}
	for k := range args {
		if _, ok := proc.Param(k); !ok {
			return nil, fmt.Errorf("client: procedure %q: unknown argument %q", name, k)
		}
	}
	for _, p := range proc.Params {
		if _, present := args[p.Name]; !present && !p.Optional {
			return nil, fmt.Errorf("client: procedure %q: missing required argument %q", name, p.Name)
		}
	}

	base := plugin.ProcedureHandler(func(ctx context.Context, call plugin.ProcedureCall) (arbor.Value, error) {
		return handler(ctx, c, call.Args)
	})
	return c.plugins.ProcedureHandler(base)(ctx, plugin.ProcedureCall{Name: name, Args: args})
}
