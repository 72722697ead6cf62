package resolve

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/accordlabs/accord/lib/value"
)

var Logger = logger.GetLogger("resolve")

// --------------------------------------------------------------------------
// Resolver
// --------------------------------------------------------------------------

// Resolver dispatches conflicts to named resolution strategies.
type Resolver struct {
	opts Options

	strategies *xsync.MapOf[string, Strategy]
	rules      *xsync.MapOf[value.DataType, MergeRule]

	histMu  sync.Mutex
	history []HistoryRecord

	set      *metrics.Set
	cTotal   *metrics.Counter
	perStrat *xsync.MapOf[string, *metrics.Counter]
}

// New creates a new resolver with the specified options (optional). The
// built-in strategies are registered immediately; the built-in merge rules
// are registered when EnableMergeRules is set.
//
// Thread-safety: This function is not thread-safe and should only be called
// once during initialization.
func New(opts *Options) *Resolver {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.DefaultStrategy == "" {
		o.DefaultStrategy = StrategyLastWriteWins
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.HistorySize <= 0 {
		o.HistorySize = defaultHistorySize
	}
	if o.StringDelimiter == "" {
		o.StringDelimiter = defaultStringDelimiter
	}

	set := metrics.NewSet()
	r := &Resolver{
		opts:       o,
		strategies: xsync.NewMapOf[string, Strategy](),
		rules:      xsync.NewMapOf[value.DataType, MergeRule](),
		set:        set,
		cTotal:     set.NewCounter("accord_resolve_resolutions_total"),
		perStrat:   xsync.NewMapOf[string, *metrics.Counter](),
	}

	r.strategies.Store(StrategyServerWins, serverWins)
	r.strategies.Store(StrategyClientWins, clientWins)
	r.strategies.Store(StrategyLastWriteWins, lastWriteWins)
	r.strategies.Store(StrategyAutoMerge, r.autoMerge)

	if o.EnableMergeRules {
		r.rules.Store(value.TypeArray, mergeArrays)
		r.rules.Store(value.TypeObject, mergeObjects)
		r.rules.Store(value.TypeString, mergeStrings(o.StringDelimiter))
	}
	return r
}

// --------------------------------------------------------------------------
// Resolution
// --------------------------------------------------------------------------

// ResolveConflict resolves one conflict. The strategy is selected in order:
// the conflict's forced strategy, auto-merge when a merge rule covers the
// conflict's data type, then the configured default. Failed attempts are
// retried with the same conflict; once the retry budget is exhausted a
// ResolutionError is returned.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Resolver) ResolveConflict(c Conflict) (Resolution, error) {
	if c.DataType == "" {
		c.DataType = c.ServerValue.DataType()
	}
	name := r.selectStrategy(c)

	var lastErr error
	attempts := 0
	for attempts <= r.opts.MaxRetries {
		attempts++

		res, err := r.attempt(name, c)
		if err == nil {
			r.record(c, res, name)
			return res, nil
		}
		lastErr = err
		Logger.Debugf("resolving %q with %q failed (attempt %d): %v", c.Key, name, attempts, err)
	}

	return Resolution{}, &ResolutionError{
		Key:      c.Key,
		Strategy: name,
		Attempts: attempts,
		Err:      lastErr,
	}
}

// selectStrategy picks the strategy name for a conflict.
func (r *Resolver) selectStrategy(c Conflict) string {
	if c.ForcedStrategy != "" {
		return c.ForcedStrategy
	}
	if r.opts.EnableMergeRules {
		if _, ok := r.rules.Load(c.DataType); ok {
			return StrategyAutoMerge
		}
	}
	return r.opts.DefaultStrategy
}

// attempt runs one resolution attempt with the named strategy.
func (r *Resolver) attempt(name string, c Conflict) (res Resolution, err error) {
	strategy, ok := r.strategies.Load(name)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("strategy %q panicked: %v", name, rec)
		}
	}()
	return strategy(c)
}

// record tracks a successful resolution in the history and the counters.
func (r *Resolver) record(c Conflict, res Resolution, strategy string) {
	r.cTotal.Inc()
	counter, _ := r.perStrat.LoadOrCompute(strategy, func() *metrics.Counter {
		return r.set.GetOrCreateCounter(fmt.Sprintf(`accord_resolve_resolutions_total{strategy=%q}`, strategy))
	})
	counter.Inc()

	if !r.opts.TrackHistory {
		return
	}
	r.histMu.Lock()
	defer r.histMu.Unlock()
	r.history = append(r.history, HistoryRecord{
		Conflict:   c,
		Resolution: res,
		Strategy:   strategy,
		Timestamp:  time.Now(),
	})
	if len(r.history) > r.opts.HistorySize {
		r.history = r.history[len(r.history)-r.opts.HistorySize:]
	}
}

// --------------------------------------------------------------------------
// Registration
// --------------------------------------------------------------------------

// RegisterStrategy adds or replaces a named strategy at runtime.
func (r *Resolver) RegisterStrategy(name string, s Strategy) error {
	if name == "" {
		return fmt.Errorf("strategy name must not be empty")
	}
	if s == nil {
		return fmt.Errorf("strategy %q must not be nil", name)
	}
	r.strategies.Store(name, s)
	return nil
}

// RegisterMergeRule adds or replaces the merge rule for a data type at
// runtime. Conflicts of that type are picked up by auto-merge from then on.
func (r *Resolver) RegisterMergeRule(dt value.DataType, rule MergeRule) error {
	if dt == "" {
		return fmt.Errorf("merge rule data type must not be empty")
	}
	if rule == nil {
		return fmt.Errorf("merge rule for %q must not be nil", dt)
	}
	r.rules.Store(dt, rule)
	return nil
}

// --------------------------------------------------------------------------
// History and Statistics
// --------------------------------------------------------------------------

// History returns the recorded resolutions, oldest first, optionally
// narrowed by a filter.
func (r *Resolver) History(filter *HistoryFilter) []HistoryRecord {
	r.histMu.Lock()
	defer r.histMu.Unlock()

	out := make([]HistoryRecord, 0, len(r.history))
	for _, rec := range r.history {
		if filter != nil {
			if filter.Strategy != "" && rec.Strategy != filter.Strategy {
				continue
			}
			if !filter.Since.IsZero() && rec.Timestamp.Before(filter.Since) {
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}

// Statistics returns a snapshot of the resolver counters.
func (r *Resolver) Statistics() Statistics {
	perStrategy := make(map[string]uint64)
	r.perStrat.Range(func(name string, c *metrics.Counter) bool {
		perStrategy[name] = c.Get()
		return true
	})
	return Statistics{
		TotalResolutions: r.cTotal.Get(),
		PerStrategy:      perStrategy,
		Strategies:       r.strategies.Size(),
		MergeRules:       r.rules.Size(),
	}
}

// WritePrometheus writes the resolver counters in Prometheus text format.
func (r *Resolver) WritePrometheus(w io.Writer) {
	r.set.WritePrometheus(w)
}
