// Package client is the external boundary every other package in this
// module exists to serve. A Client binds a compiled schema.Schema to a
// dialect.Driver and wires the input validator, find/mutation planners,
// executor, result processor, and plugin registry into one per-model
// operation surface (client.Model("User").FindMany(...)) plus the
// client-level members ($transaction, $use, $pushSchema, raw SQL, $procs,
// ...). A model is resolved by name at call time against the runtime
// schema registry, rather than one generated field per model type.
package client

import (
	"context"
	"fmt"

	"github.com/arbordb/arbor"
	"github.com/arbordb/arbor/dialect"
	sqlbuilder "github.com/arbordb/arbor/dialect/sql"
	dialectschema "github.com/arbordb/arbor/dialect/sql/schema"
	"github.com/arbordb/arbor/executor"
	"github.com/arbordb/arbor/plugin"
	"github.com/arbordb/arbor/resultproc"
	"github.com/arbordb/arbor/schema"
	"github.com/arbordb/arbor/validate"
)


// Client is the immutable-by-convention root object lifecycle
// rules describe: the schema is fixed at construction, and every state
// change a caller makes ($use, $unuse, $setAuth, $setOptions, a transaction
// clone) returns a new *Client rather than mutating the receiver, so a
// reference a caller is holding never changes out from under it.
type Client struct {
	schema    *schema.Schema
	driver    dialect.Driver
	logger    arbor.Logger
	plugins   plugin.Registry
	auth      any
	options   map[string]any
	procs     map[string]ProcHandler
	validator *validate.Validator
	exec      *executor.Executor
	rp        *resultproc.Processor
}

// ProcHandler implements one $procs.<name> entry. validatedInput is the
// normalized `args` map; `handler({client, ...validatedInput})` shape is expressed
// here as the handler receiving the *Client explicitly rather than through a
// merged object, since Go has no implicit "this".
type ProcHandler func(ctx context.Context, c *Client, validatedInput map[string]any) (arbor.Value, error)

// Option configures a Client at construction time.
type Option func(*Client)

// WithLogger installs l as the diagnostic logger the executor and planners use.
func WithLogger(l arbor.Logger) Option { return func(c *Client) { c.logger = l } }

// WithPlugin registers p at construction, equivalent to calling $use(p)
// immediately after New.
func WithPlugin(p *plugin.Plugin) Option {
	return func(c *Client) { c.plugins = c.plugins.Use(p) }
}

// WithProcHandler registers the handler for a $procs.<name> call. name must
// name a schema.Procedure declared on the bound schema; Query/Mutate checks
// this at call time, not at registration time, since procedures may be
// registered before the schema that declares them is finalized in tests.
func WithProcHandler(name string, h ProcHandler) Option {
	return func(c *Client) { c.procs[name] = h }
}

// WithAuth sets the initial authenticated subject, equivalent to calling
// $setAuth(subject) immediately after New.
func WithAuth(subject any) Option { return func(c *Client) { c.auth = subject } }

// WithOptions seeds the client option bag $options/$setOptions expose.
func WithOptions(opts map[string]any) Option {
	return func(c *Client) {
		for k, v := range opts {
			c.options[k] = v
		}
	}
}

// WithQueryStats wraps the client's driver with dialect/sql query statistics
// collection (query/exec counts, total duration, slow-query detection). It
// only takes effect when the driver is a *dialect/sql.Driver, which is
// always the case for a client built via Open; a client built against a
// transaction or a test double leaves the driver untouched. Collected
// statistics are read back through Client.QueryStats.
func WithQueryStats(opts ...sqlbuilder.StatsOption) Option {
	return func(c *Client) {
		if drv, ok := c.driver.(*sqlbuilder.Driver); ok {
			c.driver = sqlbuilder.NewStatsDriver(drv, opts...)
		}
	}
}

// WithDebugLog wraps the client's driver so every query, exec, and
// transaction event is logged via logFunc, for tracing raw SQL during
// development. Same *dialect/sql.Driver restriction as WithQueryStats.
func WithDebugLog(logFunc func(context.Context, ...any)) Option {
	return func(c *Client) {
		if drv, ok := c.driver.(*sqlbuilder.Driver); ok {
			c.driver = sqlbuilder.NewDebugDriver(drv, sqlbuilder.DebugWithLog(logFunc))
		}
	}
}

// New constructs a Client bound to driver and s.
func New(driver dialect.Driver, s *schema.Schema, opts ...Option) *Client {
	c := &Client{
		schema:  s,
		driver:  driver,
		logger:  arbor.NoopLogger(),
		options: map[string]any{},
		procs:   map[string]ProcHandler{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rebuild()
	return c
}

// Open opens a *sql.DB via dialect/sql.Open for driverName/dataSourceName
// and returns a Client bound to it: an
// `Open(driverName, dataSourceName string, opts ...Option)` convenience
// constructor.
func Open(driverName, dataSourceName string, s *schema.Schema, opts ...Option) (*Client, error) {
	drv, err := sqlbuilder.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("client: opening %s: %w", driverName, err)
	}
	return New(drv, s, opts...), nil
}

// OpenWithStats is Open plus query statistics collection from the first
// query: unlike WithQueryStats, which wraps whatever driver New already
// holds, this opens the *sql.DB directly into a *dialect/sql.StatsDriver via
// dialect/sql.OpenWithStats so no query run before the client exists is
// missed.
func OpenWithStats(driverName, dataSourceName string, s *schema.Schema, statsOpts []sqlbuilder.StatsOption, opts ...Option) (*Client, error) {
	drv, _, err := sqlbuilder.OpenWithStats(driverName, dataSourceName, statsOpts...)
	if err != nil {
		return nil, fmt.Errorf("client: opening %s: %w", driverName, err)
	}
	return New(drv, s, opts...), nil
}

// rebuild recomputes every derived field (validator, executor, result
// processor) from the Client's current driver/plugins/logger. Client
// methods never mutate the original: they clone it, and those that change
// the driver or plugins also rebuild; SetAuth and SetOptions clone without
// rebuilding. The validator's compiled-shape cache is invalidated by
// constructing a fresh one on every rebuild.
func (c *Client) rebuild() {
	c.validator = validate.New(c.schema)
	c.rp = resultproc.New(c.schema)
	c.exec = executor.New(c.driver, c.schema,
		executor.WithLogger(c.logger),
		executor.WithHooks(c.plugins.MutationHooks()),
		executor.WithSQLInterceptor(c.plugins.SQLInterceptor()),
	)
}

// clone returns a shallow copy of c with its own options map (so a later
// $setOptions on either the clone or the original doesn't leak across), not
// yet rebuilt — callers that change schema-independent state (plugins,
// driver) must call rebuild themselves before returning the clone.
func (c *Client) clone() *Client {
	next := &Client{
		schema:  c.schema,
		driver:  c.driver,
		logger:  c.logger,
		plugins: c.plugins,
		auth:    c.auth,
		options: make(map[string]any, len(c.options)),
		procs:   c.procs,
	}
	for k, v := range c.options {
		next.options[k] = v
	}
	return next
}

// Schema returns the bound registry ($schema).
func (c *Client) Schema() *schema.Schema { return c.schema }

// Auth returns the current authenticated subject, or nil ($auth).
func (c *Client) Auth() any { return c.auth }

// QueryStats returns a snapshot of the statistics collected since
// WithQueryStats was installed, or nil if it wasn't.
func (c *Client) QueryStats() *sqlbuilder.StatsSnapshot {
	sd, ok := c.driver.(*sqlbuilder.StatsDriver)
	if !ok {
		return nil
	}
	snap := sd.QueryStats().Stats()
	return &snap
}

// Options returns a copy of the client option bag ($options).
func (c *Client) Options() map[string]any {
	out := make(map[string]any, len(c.options))
	for k, v := range c.options {
		out[k] = v
	}
	return out
}

// SetAuth returns a new Client with subject as the authenticated subject
// ($setAuth), used as the `Auth` passed to every virtual field's
// VirtualFieldFunc. It is stored on the Client only; it is not attached to
// any context.Context (see arbor.WithAuth for that).
func (c *Client) SetAuth(subject any) *Client {
	next := c.clone()
	next.auth = subject
	return next
}

// SetOptions returns a new Client with opts merged into the option bag
// ($setOptions).
func (c *Client) SetOptions(opts map[string]any) *Client {
	next := c.clone()
	for k, v := range opts {
		next.options[k] = v
	}
	return next
}

// SetInputValidation returns a new Client whose validator's compiled-shape
// cache starts empty ($setInputValidation), for a caller that replaced the
// schema or wants to force every shape to recompile (e.g. after a schema
// hot-reload in a long-running process).
func (c *Client) SetInputValidation(s *schema.Schema) *Client {
	next := c.clone()
	next.schema = s
	next.rebuild()
	return next
}

// Use returns a new Client with p added to the plugin registry ($use),
// folded into the mutation-hook chain and SQL interceptor the next
// operation call builds against.
func (c *Client) Use(p *plugin.Plugin) *Client {
	next := c.clone()
	next.plugins = c.plugins.Use(p)
	next.rebuild()
	return next
}

// Unuse returns a new Client with every plugin whose ID equals id removed
// ($unuse).
func (c *Client) Unuse(id string) *Client {
	next := c.clone()
	next.plugins = c.plugins.Unuse(id)
	next.rebuild()
	return next
}

// UnuseAll returns a new Client with no plugins registered ($unuseAll).
func (c *Client) UnuseAll() *Client {
	next := c.clone()
	next.plugins = plugin.NewRegistry()
	next.rebuild()
	return next
}

// Connect verifies the bound driver can reach the database ($connect); the
// driver is already connected (New/Open hold a live connection pool), so
// this is a no-op health check via a trivial SELECT 1.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.exec.Raw(ctx, "SELECT 1", nil)
	return err
}

// Disconnect closes the bound driver's connection pool ($disconnect).
func (c *Client) Disconnect() error {
	return c.driver.Close()
}

// PushSchema diffs the bound schema's declared shape against the live
// database and applies the difference, failing
// with a wrapped validation error when a breaking change is refused without
// opts.AcceptDataLoss. It requires the bound driver to be a concrete
// *dialect/sql.Driver (the one that exposes the *sql.DB atlas's Postgres/
// MySQL/SQLite backends open against); a driver that isn't one (e.g. a
// caller-supplied test double, or a transaction-scoped client) returns a
// ConfigError.
func (c *Client) PushSchema(ctx context.Context, opts dialectschema.PushOptions) error {
	sqlDriver, ok := c.driver.(*sqlbuilder.Driver)
	if !ok {
		return arbor.NewConfigError("$pushSchema requires a dialect/sql.Driver-backed client, not a transaction or test double")
	}
	pusher := dialectschema.NewPusher(c.driver.Dialect(), sqlDriver.DB())
	return pusher.Push(ctx, c.schema, opts)
}

// ExecuteRaw runs query (with positional arguments $executeRaw's caller has
// already built, e.g. via a tagged-template-equivalent helper) and returns
// the number of rows it affected. It traverses the executor's SQL
// interceptor but never the mutation-hook chain.
func (c *Client) ExecuteRaw(ctx context.Context, query string, args ...any) (int64, error) {
	return c.exec.RawExec(ctx, query, args)
}

// QueryRaw runs query and returns its rows keyed by whatever column name the
// database returned (there is no schema.Model behind a raw statement to map
// columns back through).
func (c *Client) QueryRaw(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return c.exec.Raw(ctx, query, args)
}

// ExecuteRawUnsafe is ExecuteRaw for a caller-built query string with
// positional parameters, named separately to flag that the
// query text itself is not a compile-time-checked tagged template — in Go
// both forms take the same (string, ...any) shape, so ExecuteRawUnsafe is
// ExecuteRaw under another name, kept as a distinct method only so callers
// porting from a tagged-template-based client find the symbol they expect.
func (c *Client) ExecuteRawUnsafe(ctx context.Context, query string, args ...any) (int64, error) {
	return c.ExecuteRaw(ctx, query, args...)
}

// QueryRawUnsafe is QueryRaw under the Unsafe name; see ExecuteRawUnsafe.
func (c *Client) QueryRawUnsafe(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return c.QueryRaw(ctx, query, args...)
}

// QB returns the dialect-scoped AST query builder entry points ($qb): the
// same Select/InsertInto/Update/DeleteFrom constructors the planner itself
// builds against, scoped to this Client's bound dialect so a caller doesn't
// need to track which provider it's running against.
func (c *Client) QB() QueryBuilder { return QueryBuilder{dialectName: c.driver.Dialect()} }

// QBRaw returns an empty dialect-aware Builder ($qbRaw), the low-level
// string/placeholder accumulator every higher-level builder in dialect/sql
// is built on, for a caller-composed SQL fragment (e.g. a custom $expr).
func (c *Client) QBRaw() sqlbuilder.Builder { return sqlbuilder.NewBuilder(c.driver.Dialect()) }

// QueryBuilder scopes the dialect/sql package's query constructors to one
// dialect, the Go expression of `$qb` raw AST builder.
type QueryBuilder struct {
	dialectName string
}

// Select starts a SELECT builder over columns.
func (q QueryBuilder) Select(columns ...string) *sqlbuilder.Selector {
	return sqlbuilder.Select(q.dialectName, columns...)
}

// InsertInto starts an INSERT builder targeting table.
func (q QueryBuilder) InsertInto(table string) *sqlbuilder.InsertBuilder {
	return sqlbuilder.InsertInto(q.dialectName, table)
}

// Update starts an UPDATE builder targeting table.
func (q QueryBuilder) Update(table string) *sqlbuilder.UpdateBuilder {
	return sqlbuilder.Update(q.dialectName, table)
}

// DeleteFrom starts a DELETE builder targeting table.
func (q QueryBuilder) DeleteFrom(table string) *sqlbuilder.DeleteBuilder {
	return sqlbuilder.DeleteFrom(q.dialectName, table)
}
