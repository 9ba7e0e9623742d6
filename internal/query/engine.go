package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Executor runs a compiled query against the underlying store. Query
// issues the single primary read; Count is only used for offset
// pagination totals. Implementations must honour ctx cancellation.
type Executor interface {
	Query(ctx context.Context, q CompiledQuery) ([]map[string]any, error)
	Count(ctx context.Context, q CompiledQuery) (int64, error)
}

// CacheStore is the injected cache capability. Get returns ok=false on a
// miss; Set stores a payload under a TTL. There is no invalidation hook:
// freshness is TTL-bounded only, which list-endpoint callers must account
// for by choosing short TTLs or bypassing the cache.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// Expander hydrates compiled relation expansions onto result rows.
type Expander interface {
	Expand(ctx context.Context, sec SecurityContext, expansions []Expansion, rows []map[string]any) error
}

// MetricsRecorder receives engine telemetry. All methods must be safe for
// concurrent use.
type MetricsRecorder interface {
	ObserveQuery(entity string, d time.Duration)
	CacheHit(entity string)
	CacheMiss(entity string)
	ValidationRejected(entity string)
	QueryTimeout(entity string)
}

// Engine sequences compilation, cache lookup, execution and envelope
// assembly. It holds no per-request state; the cache store is the only
// shared resource.
type Engine struct {
	opts     Options
	exec     Executor
	cache    CacheStore
	expander Expander
	metrics  MetricsRecorder
	log      zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithCache(store CacheStore) Option {
	return func(e *Engine) { e.cache = store }
}

func WithExpander(x Expander) Option {
	return func(e *Engine) { e.expander = x }
}

func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates an engine over the given executor. Unset options fall
// back to DefaultOptions; a nil cache disables the read-through path.
func NewEngine(exec Executor, opts Options, options ...Option) *Engine {
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = DefaultOptions().MaxLimit
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultOptions().DefaultLimit
	}
	if opts.MaxOrClauses <= 0 {
		opts.MaxOrClauses = DefaultOptions().MaxOrClauses
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultOptions().CacheTTL
	}
	e := &Engine{opts: opts, exec: exec, log: zerolog.Nop()}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// cachedPayload is the cache entry body: the data slice plus pagination,
// without per-request metadata.
type cachedPayload struct {
	Data       []map[string]any `json:"data"`
	Pagination *PageInfo        `json:"pagination"`
}

// Execute runs the full pipeline for one request and returns the uniform
// result envelope. On a cache hit execution is skipped entirely, though
// compilation still runs so invalid requests are rejected consistently.
//
// Concurrent requests that miss on the same key will both execute and
// both populate the cache; there is no single-flight de-duplication.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	requestID := uuid.NewString()
	log := e.log.With().Str("request_id", requestID).Str("entity", req.Entity).Logger()

	compiled, err := e.Compile(req)
	if err != nil {
		if IsValidation(err) && e.metrics != nil {
			e.metrics.ValidationRejected(req.Entity)
		}
		log.Debug().Err(err).Msg("query rejected at compile time")
		return nil, err
	}

	useCache := e.cache != nil && e.opts.EnableCache && !req.BypassCache
	key := ""
	if useCache {
		key = CacheKey(req)
		if payload, ok := e.cacheGet(ctx, log, key); ok {
			if e.metrics != nil {
				e.metrics.CacheHit(req.Entity)
			}
			return &Result{
				Data:       payload.Data,
				Pagination: payload.Pagination,
				Metadata: Metadata{
					ExecutionTimeMs: time.Since(start).Milliseconds(),
					CacheHit:        true,
					RequestID:       requestID,
				},
			}, nil
		}
		if e.metrics != nil {
			e.metrics.CacheMiss(req.Entity)
		}
	}

	rows, total, err := e.executeWithTimeout(ctx, compiled)
	if err != nil {
		if IsTimeout(err) {
			if e.metrics != nil {
				e.metrics.QueryTimeout(req.Entity)
			}
			log.Warn().Dur("timeout", e.opts.Timeout).Msg("query abandoned after timeout")
		} else {
			log.Error().Err(err).Msg("storage read failed")
		}
		return nil, err
	}

	if e.expander != nil && len(compiled.Expansions) > 0 {
		if err := e.expander.Expand(ctx, req.Security, compiled.Expansions, rows); err != nil {
			log.Error().Err(err).Msg("relation expansion failed")
			return nil, &StorageError{Err: err}
		}
	}

	pageInfo := buildPageInfo(compiled, rows, total)

	if useCache {
		e.cacheSet(ctx, log, key, cachedPayload{Data: rows, Pagination: pageInfo})
	}

	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.ObserveQuery(req.Entity, elapsed)
	}
	log.Debug().Int("rows", len(rows)).Dur("elapsed", elapsed).Msg("query executed")

	return &Result{
		Data:       rows,
		Pagination: pageInfo,
		Metadata: Metadata{
			ExecutionTimeMs: elapsed.Milliseconds(),
			CacheHit:        false,
			RequestID:       requestID,
		},
	}, nil
}

// Compile turns a raw request into the single CompiledQuery handed to
// storage adapters. All validation errors surface here, before any
// storage call.
func (e *Engine) Compile(req Request) (CompiledQuery, error) {
	cfg := req.Config
	params := req.Params

	sort, err := CompileSort(firstValue(params, "sort"), cfg.AllowedSortFields)
	if err != nil {
		return CompiledQuery{}, err
	}

	pagination, err := CompilePagination(params, sort, cfg.Schema, e.opts)
	if err != nil {
		return CompiledQuery{}, err
	}
	sort = cursorSort(sort, pagination)

	base := make([]Clause, 0, len(cfg.BaseFilter)+len(req.BaseFilter))
	base = append(base, cfg.BaseFilter...)
	base = append(base, req.BaseFilter...)

	filter, err := CompileFilter(params, req.Security, cfg, base, e.opts)
	if err != nil {
		return CompiledQuery{}, err
	}

	if term := firstValue(params, "search"); term != "" {
		strategies := ParseSearchStrategies(firstValue(params, "searchMode"))
		group, err := CompileSearch(term, strategies, cfg)
		if err != nil {
			return CompiledQuery{}, err
		}
		if len(group) > 0 {
			filter.OrGroups = append(filter.OrGroups, group)
		}
	}

	if pagination.Strategy == StrategyCursor && pagination.Cursor != nil {
		op := OpGt
		if pagination.Descending {
			op = OpLt
		}
		filter.And = append(filter.And, Clause{Field: pagination.CursorField, Op: op, Value: pagination.Cursor})
	}

	expansions, err := CompileExpansions(ParseExpansionPaths(params), cfg.Expansions, req.Security)
	if err != nil {
		return CompiledQuery{}, err
	}

	agg, err := compileAggregation(params, cfg)
	if err != nil {
		return CompiledQuery{}, err
	}

	return CompiledQuery{
		Entity:      req.Entity,
		Schema:      cfg.Schema,
		Filter:      filter,
		Sort:        sort,
		Projection:  CompileProjection(firstValue(params, "fields"), cfg.AllowedFields),
		Pagination:  pagination,
		Expansions:  expansions,
		Aggregation: agg,
	}, nil
}

// compileAggregation reads the groupBy/metric control parameters for
// report queries. The bucket field must exist in the schema; the metric
// field must be numeric.
func compileAggregation(params map[string][]string, cfg EntityConfig) (*Aggregation, error) {
	groupBy := firstValue(params, "groupBy")
	if groupBy == "" {
		if firstValue(params, "metric") != "" {
			return nil, newValidationError("metric", "requires groupBy")
		}
		return nil, nil
	}
	if _, ok := cfg.Schema[groupBy]; !ok {
		return nil, newValidationError("groupBy", "unknown field %q", groupBy)
	}

	agg := &Aggregation{GroupBy: groupBy}
	if metric := firstValue(params, "metric"); metric != "" {
		if cfg.Schema[metric] != FieldTypeNumber {
			return nil, newValidationError("metric", "field %q is not numeric", metric)
		}
		agg.MetricField = metric
	}
	return agg, nil
}

type queryOutcome struct {
	rows []map[string]any
	err  error
}

type countOutcome struct {
	total int64
	err   error
}

// executeWithTimeout races the primary read (and, for offset pagination,
// the independent count read) against the configured timeout. On timeout
// the in-flight reads are cancelled and abandoned without being awaited.
func (e *Engine) executeWithTimeout(ctx context.Context, q CompiledQuery) ([]map[string]any, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	queryCh := make(chan queryOutcome, 1)
	go func() {
		rows, err := e.exec.Query(ctx, q)
		queryCh <- queryOutcome{rows: rows, err: err}
	}()

	needCount := q.Pagination.Strategy == StrategyOffset && q.Aggregation == nil
	countCh := make(chan countOutcome, 1)
	if needCount {
		go func() {
			total, err := e.exec.Count(ctx, q)
			countCh <- countOutcome{total: total, err: err}
		}()
	}

	var rows []map[string]any
	select {
	case out := <-queryCh:
		if out.err != nil {
			return nil, 0, e.asStorageError(ctx, out.err)
		}
		rows = out.rows
	case <-ctx.Done():
		return nil, 0, e.ctxError(ctx)
	}

	if !needCount {
		return rows, -1, nil
	}

	select {
	case out := <-countCh:
		if out.err != nil {
			return nil, 0, e.asStorageError(ctx, out.err)
		}
		return rows, out.total, nil
	case <-ctx.Done():
		return nil, 0, e.ctxError(ctx)
	}
}

func (e *Engine) ctxError(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return &TimeoutError{Timeout: e.opts.Timeout}
	}
	return ctx.Err()
}

func (e *Engine) asStorageError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return &TimeoutError{Timeout: e.opts.Timeout}
	}
	return &StorageError{Err: err}
}

func buildPageInfo(q CompiledQuery, rows []map[string]any, total int64) *PageInfo {
	p := q.Pagination
	switch p.Strategy {
	case StrategyOffset:
		info := &PageInfo{Page: p.Page, Limit: p.Limit}
		if total >= 0 {
			t := total
			pages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
			info.Total = &t
			info.Pages = &pages
			info.HasNext = p.Page < pages
		}
		info.HasPrev = p.Page > 1
		return info
	case StrategyCursor:
		info := &PageInfo{Limit: p.Limit, HasPrev: p.Cursor != nil}
		info.HasNext = len(rows) == p.Limit
		if len(rows) > 0 {
			if v, ok := rows[len(rows)-1][p.CursorField]; ok {
				info.Cursor = fmt.Sprintf("%v", v)
			}
		}
		return info
	default:
		return nil
	}
}

func (e *Engine) cacheGet(ctx context.Context, log zerolog.Logger, key string) (cachedPayload, bool) {
	raw, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		// Cache failures degrade to a miss rather than failing the read.
		log.Warn().Err(err).Msg("cache get failed")
		return cachedPayload{}, false
	}
	if !ok {
		return cachedPayload{}, false
	}
	var payload cachedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Warn().Err(err).Msg("cache entry corrupt, ignoring")
		return cachedPayload{}, false
	}
	return payload, true
}

func (e *Engine) cacheSet(ctx context.Context, log zerolog.Logger, key string, payload cachedPayload) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Msg("cache payload marshal failed")
		return
	}
	if err := e.cache.Set(ctx, key, raw, e.opts.CacheTTL); err != nil {
		log.Warn().Err(err).Msg("cache set failed")
	}
}
