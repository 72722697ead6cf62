package resolve

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/accordlabs/accord/lib/value"
)

func TestServerWinsAndClientWins(t *testing.T) {
	r := New(nil)
	c := Conflict{
		Key:         "doc",
		ServerValue: value.String("from server"),
		ClientValue: value.String("from client"),
		Metadata:    map[string]string{"origin": "test"},
	}

	testCases := []struct {
		strategy   string
		wantValue  value.Value
		wantSource string
	}{
		{StrategyServerWins, value.String("from server"), SourceServer},
		{StrategyClientWins, value.String("from client"), SourceClient},
	}
	for _, tc := range testCases {
		t.Run(tc.strategy, func(t *testing.T) {
			c.ForcedStrategy = tc.strategy
			res, err := r.ResolveConflict(c)
			if err != nil {
				t.Fatalf("ResolveConflict() error = %v", err)
			}
			if !res.Value.Equal(tc.wantValue) {
				t.Errorf("value = %s, want %s", res.Value, tc.wantValue)
			}
			if res.Source != tc.wantSource {
				t.Errorf("source = %q, want %q", res.Source, tc.wantSource)
			}
			if res.Metadata["origin"] != "test" {
				t.Errorf("metadata not carried through: %v", res.Metadata)
			}
		})
	}
}

func TestLastWriteWins(t *testing.T) {
	r := New(nil)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name       string
		serverTS   time.Time
		clientTS   time.Time
		wantSource string
	}{
		{"ServerNewer", base.Add(time.Minute), base, SourceServer},
		{"ClientNewer", base, base.Add(time.Minute), SourceClient},
		{"TieFavorsServer", base, base, SourceServer},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := r.ResolveConflict(Conflict{
				Key:             "counter",
				ServerValue:     value.Int(1),
				ClientValue:     value.Int(2),
				ServerTimestamp: tc.serverTS,
				ClientTimestamp: tc.clientTS,
				ForcedStrategy:  StrategyLastWriteWins,
			})
			if err != nil {
				t.Fatalf("ResolveConflict() error = %v", err)
			}
			if res.Source != tc.wantSource {
				t.Errorf("source = %q, want %q", res.Source, tc.wantSource)
			}
		})
	}
}

func TestLastWriteWinsIsDefaultForScalars(t *testing.T) {
	// no merge rule covers scalars, so selection falls through to the default
	r := New(nil)
	res, err := r.ResolveConflict(Conflict{
		Key:             "n",
		ServerValue:     value.Int(1),
		ClientValue:     value.Int(2),
		ServerTimestamp: time.Now(),
		ClientTimestamp: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("ResolveConflict() error = %v", err)
	}
	if !res.Value.Equal(value.Int(1)) {
		t.Errorf("value = %s, want server value 1", res.Value)
	}
}

func TestAutoMergeObjects(t *testing.T) {
	r := New(nil)
	before := time.Now().UnixMilli()

	res, err := r.ResolveConflict(Conflict{
		Key:         "profile",
		ServerValue: value.Object(map[string]value.Value{"a": value.Int(1)}),
		ClientValue: value.Object(map[string]value.Value{"b": value.Int(2)}),
	})
	if err != nil {
		t.Fatalf("ResolveConflict() error = %v", err)
	}
	if res.Source != SourceMerged {
		t.Errorf("source = %q, want %q", res.Source, SourceMerged)
	}

	obj := res.Value.Obj
	if !obj["a"].Equal(value.Int(1)) || !obj["b"].Equal(value.Int(2)) {
		t.Errorf("merged object = %s", res.Value)
	}
	meta, ok := obj["_metadata"]
	if !ok || meta.Kind != value.KindObject {
		t.Fatalf("merged object missing _metadata: %s", res.Value)
	}
	mergedAt := meta.Obj["mergedAt"].Num
	if mergedAt < float64(before) || mergedAt > float64(time.Now().UnixMilli()) {
		t.Errorf("mergedAt = %v outside test window", mergedAt)
	}
}

func TestAutoMergeObjectClientOverridesServer(t *testing.T) {
	r := New(nil)
	res, err := r.ResolveConflict(Conflict{
		Key:         "profile",
		ServerValue: value.Object(map[string]value.Value{"name": value.String("old"), "age": value.Int(30)}),
		ClientValue: value.Object(map[string]value.Value{"name": value.String("new")}),
	})
	if err != nil {
		t.Fatalf("ResolveConflict() error = %v", err)
	}
	if !res.Value.Obj["name"].Equal(value.String("new")) {
		t.Errorf("client field did not override server: %s", res.Value)
	}
	if !res.Value.Obj["age"].Equal(value.Int(30)) {
		t.Errorf("server-only field lost: %s", res.Value)
	}
}

func TestAutoMergeArrays(t *testing.T) {
	r := New(nil)
	server := value.Array(value.Int(1), value.Int(2))
	client := value.Array(value.Int(2), value.Int(3))

	res, err := r.ResolveConflict(Conflict{Key: "tags", ServerValue: server, ClientValue: client})
	if err != nil {
		t.Fatalf("ResolveConflict() error = %v", err)
	}
	want := value.Array(value.Int(1), value.Int(2), value.Int(3))
	if !res.Value.Equal(want) {
		t.Fatalf("merged array = %s, want %s", res.Value, want)
	}

	// merging the result with the same client again must not change it
	again, err := r.ResolveConflict(Conflict{Key: "tags", ServerValue: res.Value, ClientValue: client})
	if err != nil {
		t.Fatalf("ResolveConflict() retry error = %v", err)
	}
	if !again.Value.Equal(res.Value) {
		t.Errorf("re-merge changed the result: %s -> %s", res.Value, again.Value)
	}
}

func TestAutoMergeStrings(t *testing.T) {
	t.Run("DefaultDelimiter", func(t *testing.T) {
		r := New(nil)
		res, err := r.ResolveConflict(Conflict{
			Key:         "notes",
			ServerValue: value.String("server line"),
			ClientValue: value.String("client line"),
		})
		if err != nil {
			t.Fatalf("ResolveConflict() error = %v", err)
		}
		if res.Value.Str != "server line\nclient line" {
			t.Errorf("merged string = %q", res.Value.Str)
		}
	})

	t.Run("CustomDelimiter", func(t *testing.T) {
		opts := DefaultOptions()
		opts.StringDelimiter = " | "
		r := New(opts)
		res, err := r.ResolveConflict(Conflict{
			Key:         "notes",
			ServerValue: value.String("a"),
			ClientValue: value.String("b"),
		})
		if err != nil {
			t.Fatalf("ResolveConflict() error = %v", err)
		}
		if res.Value.Str != "a | b" {
			t.Errorf("merged string = %q", res.Value.Str)
		}
	})
}

func TestMergeRulesDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.EnableMergeRules = false
	r := New(opts)

	res, err := r.ResolveConflict(Conflict{
		Key:             "profile",
		ServerValue:     value.Object(map[string]value.Value{"a": value.Int(1)}),
		ClientValue:     value.Object(map[string]value.Value{"b": value.Int(2)}),
		ServerTimestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("ResolveConflict() error = %v", err)
	}
	// falls through to last-write-wins, no merge stamp
	if res.Source != SourceServer {
		t.Errorf("source = %q, want %q", res.Source, SourceServer)
	}
	if _, ok := res.Value.Obj["_metadata"]; ok {
		t.Error("value was merged although merge rules are disabled")
	}
}

func TestForcedStrategyOverridesAutoMerge(t *testing.T) {
	r := New(nil)
	client := value.Object(map[string]value.Value{"b": value.Int(2)})

	res, err := r.ResolveConflict(Conflict{
		Key:            "profile",
		ServerValue:    value.Object(map[string]value.Value{"a": value.Int(1)}),
		ClientValue:    client,
		ForcedStrategy: StrategyClientWins,
	})
	if err != nil {
		t.Fatalf("ResolveConflict() error = %v", err)
	}
	if !res.Value.Equal(client) {
		t.Errorf("value = %s, want untouched client value", res.Value)
	}
}

func TestDataTypeInferredFromServerValue(t *testing.T) {
	r := New(nil)
	res, err := r.ResolveConflict(Conflict{
		Key:         "tags",
		ServerValue: value.Array(value.String("a")),
		ClientValue: value.Array(value.String("b")),
	})
	if err != nil {
		t.Fatalf("ResolveConflict() error = %v", err)
	}
	want := value.Array(value.String("a"), value.String("b"))
	if !res.Value.Equal(want) {
		t.Errorf("value = %s, want %s (auto-merge via inferred array type)", res.Value, want)
	}
}

func TestUnknownStrategyExhaustsRetries(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRetries = 2
	r := New(opts)

	_, err := r.ResolveConflict(Conflict{
		Key:            "doc",
		ServerValue:    value.Int(1),
		ClientValue:    value.Int(2),
		ForcedStrategy: "does-not-exist",
	})
	if err == nil {
		t.Fatal("ResolveConflict() error = nil, want resolution failure")
	}
	if !errors.Is(err, ErrResolutionExhausted) {
		t.Errorf("error does not match ErrResolutionExhausted: %v", err)
	}
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("error does not unwrap to ErrUnknownStrategy: %v", err)
	}

	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("error type = %T, want *ResolutionError", err)
	}
	if resErr.Key != "doc" || resErr.Strategy != "does-not-exist" {
		t.Errorf("resolution error = %+v", resErr)
	}
	// the initial attempt plus MaxRetries retries
	if resErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", resErr.Attempts)
	}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	r := New(nil)

	var calls atomic.Int32
	flaky := func(c Conflict) (Resolution, error) {
		if calls.Add(1) < 3 {
			return Resolution{}, fmt.Errorf("transient failure")
		}
		return Resolution{Value: c.ServerValue, Source: SourceServer}, nil
	}
	if err := r.RegisterStrategy("flaky", flaky); err != nil {
		t.Fatalf("RegisterStrategy() error = %v", err)
	}

	res, err := r.ResolveConflict(Conflict{
		Key:            "doc",
		ServerValue:    value.Int(7),
		ClientValue:    value.Int(8),
		ForcedStrategy: "flaky",
	})
	if err != nil {
		t.Fatalf("ResolveConflict() error = %v", err)
	}
	if !res.Value.Equal(value.Int(7)) {
		t.Errorf("value = %s, want 7", res.Value)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("strategy called %d times, want 3", got)
	}
}

func TestStrategyPanicIsRecovered(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRetries = 1
	r := New(opts)

	if err := r.RegisterStrategy("explosive", func(Conflict) (Resolution, error) {
		panic("boom")
	}); err != nil {
		t.Fatalf("RegisterStrategy() error = %v", err)
	}

	_, err := r.ResolveConflict(Conflict{
		Key:            "doc",
		ServerValue:    value.Int(1),
		ClientValue:    value.Int(2),
		ForcedStrategy: "explosive",
	})
	if err == nil {
		t.Fatal("ResolveConflict() error = nil, want resolution failure")
	}
	if !strings.Contains(err.Error(), "panicked") {
		t.Errorf("error = %v, want panic report", err)
	}
}

func TestRegisterStrategyValidation(t *testing.T) {
	r := New(nil)
	if err := r.RegisterStrategy("", serverWins); err == nil {
		t.Error("RegisterStrategy(\"\") error = nil")
	}
	if err := r.RegisterStrategy("x", nil); err == nil {
		t.Error("RegisterStrategy(nil) error = nil")
	}
	if err := r.RegisterMergeRule("", mergeArrays); err == nil {
		t.Error("RegisterMergeRule(\"\") error = nil")
	}
	if err := r.RegisterMergeRule(value.TypeScalar, nil); err == nil {
		t.Error("RegisterMergeRule(nil) error = nil")
	}
}

func TestRegisterMergeRuleExtendsAutoMerge(t *testing.T) {
	r := New(nil)

	// scalars get no built-in rule; register one summing both sides
	sum := func(server, client value.Value) (value.Value, error) {
		return value.Number(server.Num + client.Num), nil
	}
	if err := r.RegisterMergeRule(value.TypeScalar, sum); err != nil {
		t.Fatalf("RegisterMergeRule() error = %v", err)
	}

	res, err := r.ResolveConflict(Conflict{
		Key:         "n",
		ServerValue: value.Int(40),
		ClientValue: value.Int(2),
	})
	if err != nil {
		t.Fatalf("ResolveConflict() error = %v", err)
	}
	if res.Source != SourceMerged || !res.Value.Equal(value.Number(42)) {
		t.Errorf("resolution = %+v, want merged 42", res)
	}
}

func TestHistory(t *testing.T) {
	t.Run("RecordsAndFilters", func(t *testing.T) {
		r := New(nil)

		resolveWith := func(strategy string) {
			t.Helper()
			_, err := r.ResolveConflict(Conflict{
				Key:            "k",
				ServerValue:    value.Int(1),
				ClientValue:    value.Int(2),
				ForcedStrategy: strategy,
			})
			if err != nil {
				t.Fatalf("ResolveConflict(%s) error = %v", strategy, err)
			}
		}

		resolveWith(StrategyServerWins)
		time.Sleep(2 * time.Millisecond)
		cutoff := time.Now()
		time.Sleep(2 * time.Millisecond)
		resolveWith(StrategyClientWins)
		resolveWith(StrategyServerWins)

		all := r.History(nil)
		if len(all) != 3 {
			t.Fatalf("History() returned %d records, want 3", len(all))
		}
		if all[0].Strategy != StrategyServerWins || all[1].Strategy != StrategyClientWins {
			t.Errorf("history not in resolution order: %v, %v", all[0].Strategy, all[1].Strategy)
		}

		byStrategy := r.History(&HistoryFilter{Strategy: StrategyServerWins})
		if len(byStrategy) != 2 {
			t.Errorf("History(strategy) returned %d records, want 2", len(byStrategy))
		}

		since := r.History(&HistoryFilter{Since: cutoff})
		if len(since) != 2 {
			t.Errorf("History(since) returned %d records, want 2", len(since))
		}
	})

	t.Run("Bounded", func(t *testing.T) {
		opts := DefaultOptions()
		opts.HistorySize = 2
		r := New(opts)

		for i := 0; i < 5; i++ {
			if _, err := r.ResolveConflict(Conflict{
				Key:            fmt.Sprintf("k%d", i),
				ServerValue:    value.Int(int64(i)),
				ClientValue:    value.Int(int64(i)),
				ForcedStrategy: StrategyServerWins,
			}); err != nil {
				t.Fatalf("ResolveConflict() error = %v", err)
			}
		}

		records := r.History(nil)
		if len(records) != 2 {
			t.Fatalf("History() returned %d records, want 2", len(records))
		}
		if records[0].Conflict.Key != "k3" || records[1].Conflict.Key != "k4" {
			t.Errorf("history kept %q, %q, want the two newest", records[0].Conflict.Key, records[1].Conflict.Key)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		opts := DefaultOptions()
		opts.TrackHistory = false
		r := New(opts)

		if _, err := r.ResolveConflict(Conflict{
			Key:            "k",
			ServerValue:    value.Int(1),
			ClientValue:    value.Int(2),
			ForcedStrategy: StrategyServerWins,
		}); err != nil {
			t.Fatalf("ResolveConflict() error = %v", err)
		}
		if got := r.History(nil); len(got) != 0 {
			t.Errorf("History() returned %d records with tracking disabled", len(got))
		}
	})
}

func TestStatistics(t *testing.T) {
	r := New(nil)

	for i := 0; i < 3; i++ {
		if _, err := r.ResolveConflict(Conflict{
			Key:            "k",
			ServerValue:    value.Int(1),
			ClientValue:    value.Int(2),
			ForcedStrategy: StrategyServerWins,
		}); err != nil {
			t.Fatalf("ResolveConflict() error = %v", err)
		}
	}
	if _, err := r.ResolveConflict(Conflict{
		Key:         "tags",
		ServerValue: value.Array(value.Int(1)),
		ClientValue: value.Array(value.Int(2)),
	}); err != nil {
		t.Fatalf("ResolveConflict() error = %v", err)
	}

	stats := r.Statistics()
	if stats.TotalResolutions != 4 {
		t.Errorf("TotalResolutions = %d, want 4", stats.TotalResolutions)
	}
	if stats.PerStrategy[StrategyServerWins] != 3 {
		t.Errorf("PerStrategy[server-wins] = %d, want 3", stats.PerStrategy[StrategyServerWins])
	}
	if stats.PerStrategy[StrategyAutoMerge] != 1 {
		t.Errorf("PerStrategy[auto-merge] = %d, want 1", stats.PerStrategy[StrategyAutoMerge])
	}
	if stats.Strategies != 4 {
		t.Errorf("Strategies = %d, want 4 built-ins", stats.Strategies)
	}
	if stats.MergeRules != 3 {
		t.Errorf("MergeRules = %d, want 3 built-ins", stats.MergeRules)
	}
}

func TestWritePrometheus(t *testing.T) {
	r := New(nil)
	if _, err := r.ResolveConflict(Conflict{
		Key:            "k",
		ServerValue:    value.Int(1),
		ClientValue:    value.Int(2),
		ForcedStrategy: StrategyServerWins,
	}); err != nil {
		t.Fatalf("ResolveConflict() error = %v", err)
	}

	var buf bytes.Buffer
	r.WritePrometheus(&buf)
	if !strings.Contains(buf.String(), "accord_resolve_resolutions_total") {
		t.Errorf("prometheus output missing resolution counter:\n%s", buf.String())
	}
}
