package budget

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fakeCompressor struct {
	result   string
	err      error
	calls    int
	outline  string
	profiles string
	summary  string
}

func (f *fakeCompressor) Compress(_ context.Context, _ int, outline, profiles, summaries string) (string, error) {
	f.calls++
	f.outline, f.profiles, f.summary = outline, profiles, summaries
	return f.result, f.err
}

type fakeSink struct {
	saved map[int]string
	err   error
}

func (f *fakeSink) SaveContext(chapter int, text string) error {
	if f.err != nil {
		return f.err
	}
	if f.saved == nil {
		f.saved = make(map[int]string)
	}
	f.saved[chapter] = text
	return nil
}

// limit 100 tokens, 400 characters
var small = Limits{MaxContextTokens: 110, TokenBuffer: 10, TokensPerChar: 0.25}

func newTestBudgeter(t *testing.T, limits Limits, comp Compressor, sink Sink) *Budgeter {
	t.Helper()
	b, err := New(limits, nil, comp, sink, zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1))))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b
}

func TestPrepare_FitsPassesThrough(t *testing.T) {
	comp := &fakeCompressor{}
	b := newTestBudgeter(t, small, comp, nil)

	got, err := b.Prepare(context.Background(), 3, "Outline.", "Profiles.", []string{"Summary one.", "", "Summary two."})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	want := "Outline.\n\nProfiles.\n\nSummary one.\n\nSummary two."
	if got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
	if got.Compressed || comp.calls != 0 {
		t.Error("compression must not run when context fits")
	}
	if got.Tokens != CharRatio(0.25).Estimate(want) {
		t.Errorf("Tokens = %d", got.Tokens)
	}
}

func TestPrepare_ExactlyAtLimit(t *testing.T) {
	comp := &fakeCompressor{}
	b := newTestBudgeter(t, small, comp, nil)

	// 400 characters estimate to exactly 100 tokens
	got, err := b.Prepare(context.Background(), 1, strings.Repeat("a", 400), "", nil)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if got.Compressed || got.Tokens != 100 {
		t.Errorf("bundle at limit must pass through, got %+v", got.Tokens)
	}
}

func TestPrepare_Compresses(t *testing.T) {
	comp := &fakeCompressor{result: "Compressed passage."}
	sink := &fakeSink{}
	b := newTestBudgeter(t, small, comp, sink)

	outline := strings.Repeat("o", 300)
	profiles := strings.Repeat("p", 300)
	summaries := []string{strings.Repeat("s", 150), strings.Repeat("t", 150)}

	got, err := b.Prepare(context.Background(), 4, outline, profiles, summaries)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if !got.Compressed || got.Text != "Compressed passage." {
		t.Errorf("bundle = %+v", got)
	}
	if comp.calls != 1 {
		t.Errorf("compressor called %d times, want 1", comp.calls)
	}
	if comp.outline != strings.Repeat("o", 120) || comp.profiles != strings.Repeat("p", 120) {
		t.Errorf("outline/profiles not truncated to 30%% shares: %d/%d", len(comp.outline), len(comp.profiles))
	}
	if comp.summary != strings.Repeat("s", 150)+"\n\n"+strings.Repeat("t", 8) {
		t.Errorf("summaries not truncated to 40%% share from the start: %q", comp.summary)
	}
	if sink.saved[4] != "Compressed passage." {
		t.Errorf("compressed context not persisted: %v", sink.saved)
	}
}

func TestPrepare_BoundAlwaysHolds(t *testing.T) {
	comp := &fakeCompressor{result: strings.Repeat("x", 5000)}
	b := newTestBudgeter(t, small, comp, nil)

	got, err := b.Prepare(context.Background(), 2, strings.Repeat("o", 1000), strings.Repeat("p", 1000), []string{strings.Repeat("s", 1000)})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if got.Tokens > small.Limit() || CharRatio(0.25).Estimate(got.Text) > small.Limit() {
		t.Errorf("bundle estimate %d exceeds limit %d", got.Tokens, small.Limit())
	}
}

type wordEstimator struct{}

func (wordEstimator) Estimate(s string) int { return utf8.RuneCountInString(s) }

func TestPrepare_BoundHoldsWithOtherEstimator(t *testing.T) {
	comp := &fakeCompressor{result: strings.Repeat("y", 1000)}
	b, err := New(small, wordEstimator{}, comp, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.Prepare(context.Background(), 2, strings.Repeat("o", 1000), "", nil)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if got.Tokens > small.Limit() {
		t.Errorf("bundle estimate %d exceeds limit %d", got.Tokens, small.Limit())
	}
}

func TestPrepare_CompressionFailurePropagates(t *testing.T) {
	cause := errors.New("backend down")
	b := newTestBudgeter(t, small, &fakeCompressor{err: cause}, nil)

	_, err := b.Prepare(context.Background(), 7, strings.Repeat("o", 1000), "", nil)
	if !errors.Is(err, cause) {
		t.Fatalf("Prepare() error = %v, want wrapped compression failure", err)
	}
}

func TestPrepare_SinkFailureIsNotFatal(t *testing.T) {
	b := newTestBudgeter(t, small, &fakeCompressor{result: "ok"}, &fakeSink{err: errors.New("disk full")})
	got, err := b.Prepare(context.Background(), 1, strings.Repeat("o", 1000), "", nil)
	if err != nil || got.Text != "ok" {
		t.Errorf("Prepare() = %+v, %v", got, err)
	}
}

func TestPartition(t *testing.T) {
	for _, available := range []int{0, 1, 3, 7, 10, 99, 101, 400, 472000, 472001} {
		o, p, s := Partition(available)
		if o+p+s > available {
			t.Errorf("Partition(%d) = %d+%d+%d exceeds available", available, o, p, s)
		}
		check := func(name string, got, pct int) {
			exact := float64(available) * float64(pct) / 100
			if float64(got) < exact-1 || float64(got) > exact+1 {
				t.Errorf("Partition(%d) %s = %d, want %.2f±1", available, name, got, exact)
			}
		}
		check("outline", o, 30)
		check("profiles", p, 30)
		check("summaries", s, 40)
	}
	if o, p, s := Partition(472000); o != 141600 || p != 141600 || s != 188800 {
		t.Errorf("Partition(472000) = %d/%d/%d", o, p, s)
	}
}

func TestLimits_Defaults(t *testing.T) {
	l := Limits{MaxContextTokens: 128000, TokenBuffer: 10000, TokensPerChar: 0.25}
	if l.Limit() != 118000 || l.AvailableChars() != 472000 {
		t.Errorf("Limit()=%d AvailableChars()=%d", l.Limit(), l.AvailableChars())
	}
}

func TestNew_Validation(t *testing.T) {
	log := zaptest.NewLogger(t)
	if _, err := New(Limits{MaxContextTokens: 10, TokenBuffer: 10, TokensPerChar: 0.25}, nil, &fakeCompressor{}, nil, log); err == nil {
		t.Error("expected error for empty budget")
	}
	if _, err := New(Limits{MaxContextTokens: 10, TokensPerChar: 0}, nil, &fakeCompressor{}, nil, log); err == nil {
		t.Error("expected error for zero ratio")
	}
	if _, err := New(small, nil, nil, nil, log); err == nil {
		t.Error("expected error without compressor")
	}
}
