package core

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
)

const (
	invalidCSV = "Data,valor,account\n15/01/2024,10,A\n16/01/2024,20,B\n"
	fixedCSV   = "data_transacao,valor,conta_origem\n2024-01-15,10,A\n2024-01-16,20,B\n"
	validCSV   = "data_transacao,valor,conta_origem,tipo\n2024-01-15,10,A,PIX\n"
)

type memCache struct {
	mu       sync.Mutex
	scripts  map[string]string
	stores   int
	storeErr error
}

func newMemCache() *memCache {
	return &memCache{scripts: make(map[string]string)}
}

func (c *memCache) Lookup(_ context.Context, fp string) (*Script, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.scripts[fp]
	if !ok {
		return nil, nil
	}
	return &Script{Fingerprint: fp, Body: body}, nil
}

func (c *memCache) Store(_ context.Context, fp, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores++
	if c.storeErr != nil {
		return c.storeErr
	}
	c.scripts[fp] = body
	return nil
}

type fakeGenerator struct {
	script string
	err    error
	calls  int
	last   GenerationRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req GenerationRequest) (string, error) {
	g.calls++
	g.last = req
	return g.script, g.err
}

// fakeCorrector writes output to the output path instead of running the script.
type fakeCorrector struct {
	output string
	err    error
	calls  int
	script string
}

func (c *fakeCorrector) Apply(_ context.Context, script, _, out string) error {
	c.calls++
	c.script = script
	if c.err != nil {
		return c.err
	}
	if c.output == "" {
		return nil
	}
	return os.WriteFile(out, []byte(c.output), 0o644)
}

type memSink struct {
	ingested []*Dataset
	err      error
}

func (s *memSink) Ingest(_ context.Context, _ string, _ *Template, ds *Dataset) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.ingested = append(s.ingested, ds)
	return ds.Len(), nil
}

type memAudit struct {
	entries []AuditEntry
}

func (a *memAudit) Record(_ context.Context, e AuditEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

type harness struct {
	pipeline  *Pipeline
	cache     *memCache
	generator *fakeGenerator
	corrector *fakeCorrector
	sink      *memSink
	audit     *memAudit
}

func newHarness(t *testing.T, withGenerator bool) *harness {
	t.Helper()
	h := &harness{
		cache:     newMemCache(),
		generator: &fakeGenerator{script: "def processar_csv(i, o): pass"},
		corrector: &fakeCorrector{output: fixedCSV},
		sink:      &memSink{},
		audit:     &memAudit{},
	}
	deps := PipelineDeps{
		Cache:     h.cache,
		Corrector: h.corrector,
		Sink:      h.sink,
		Audit:     h.audit,
		WorkDir:   t.TempDir(),
	}
	if withGenerator {
		deps.Generator = h.generator
	}
	p, err := NewPipeline(deps)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	h.pipeline = p
	return h
}

func (h *harness) run(t *testing.T, content, script string) (*RunResult, error) {
	t.Helper()
	path := writeFile(t, "input.csv", []byte(content))
	return h.pipeline.Run(context.Background(), RunRequest{
		Path:     path,
		Template: transacoesTemplate(),
		Script:   script,
	})
}

func TestPipeline_ValidInput(t *testing.T) {
	h := newHarness(t, true)

	res, err := h.run(t, validCSV, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Phase != PhaseIngested || res.Source != SourceNone {
		t.Errorf("phase/source = %s/%s, want ingested/none", res.Phase, res.Source)
	}
	if h.corrector.calls != 0 || h.generator.calls != 0 {
		t.Errorf("corrector/generator called for valid input")
	}
	if h.cache.stores != 0 {
		t.Errorf("cache stores = %d, want 0", h.cache.stores)
	}
	if len(h.audit.entries) != 1 || h.audit.entries[0].SuccessRows != 1 {
		t.Errorf("audit = %+v", h.audit.entries)
	}
}

func TestPipeline_GeneratesAndStoresUnderOriginalFingerprint(t *testing.T) {
	h := newHarness(t, true)

	res, err := h.run(t, invalidCSV, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantFP := Fingerprint([]string{"Data", "valor", "account"})
	if res.Fingerprint != wantFP {
		t.Errorf("Fingerprint = %s, want %s", res.Fingerprint, wantFP)
	}
	if res.Source != SourceGenerator || res.Phase != PhaseIngested {
		t.Errorf("source/phase = %s/%s", res.Source, res.Phase)
	}
	if res.Corrected == nil || !res.Corrected.Valid {
		t.Errorf("corrected report = %+v, want valid", res.Corrected)
	}
	if got := h.cache.scripts[wantFP]; got != h.generator.script {
		t.Errorf("stored script = %q, want generator output", got)
	}
	if res.RowsIngested != 2 {
		t.Errorf("RowsIngested = %d, want 2", res.RowsIngested)
	}

	req := h.generator.last
	if !strings.Contains(req.Sample, "15/01/2024") {
		t.Errorf("sample = %q", req.Sample)
	}
	if !strings.Contains(req.ReportText, "Colunas com nome errado") {
		t.Errorf("report text = %q", req.ReportText)
	}
	if entry := h.audit.entries[0]; !entry.UsedGenerator || entry.Source != SourceGenerator {
		t.Errorf("audit entry = %+v", entry)
	}
}

func TestPipeline_CacheHitSkipsGenerator(t *testing.T) {
	h := newHarness(t, true)
	fp := Fingerprint([]string{"Data", "valor", "account"})
	h.cache.scripts[fp] = "cached script"

	res, err := h.run(t, invalidCSV, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Source != SourceCache {
		t.Errorf("Source = %s, want cache", res.Source)
	}
	if h.generator.calls != 0 {
		t.Errorf("generator called %d times on cache hit", h.generator.calls)
	}
	if h.corrector.script != "cached script" {
		t.Errorf("corrector ran %q", h.corrector.script)
	}
	if h.cache.stores != 0 {
		t.Errorf("cache script was re-stored")
	}
}

func TestPipeline_ManualScript(t *testing.T) {
	h := newHarness(t, false)

	res, err := h.run(t, invalidCSV, "manual script")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Source != SourceManual {
		t.Errorf("Source = %s, want manual", res.Source)
	}
	if got := h.cache.scripts[res.Fingerprint]; got != "manual script" {
		t.Errorf("stored = %q, want manual script", got)
	}
}

func TestPipeline_Failures(t *testing.T) {
	tests := []struct {
		name      string
		generator bool
		setup     func(h *harness)
		check     func(t *testing.T, err error)
	}{
		{
			name:      "no generator",
			generator: false,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrNoGenerator) {
					t.Errorf("got %v, want ErrNoGenerator", err)
				}
			},
		},
		{
			name:      "generator error",
			generator: true,
			setup:     func(h *harness) { h.generator.err = errors.New("quota exceeded") },
			check: func(t *testing.T, err error) {
				var gf *GenerationFailure
				if !errors.As(err, &gf) {
					t.Errorf("got %T, want *GenerationFailure", err)
				}
			},
		},
		{
			name:      "empty script",
			generator: true,
			setup:     func(h *harness) { h.generator.script = "" },
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrEmptyScript) {
					t.Errorf("got %v, want ErrEmptyScript", err)
				}
			},
		},
		{
			name:      "script raises",
			generator: true,
			setup:     func(h *harness) { h.corrector.err = errors.New("exit status 1") },
			check: func(t *testing.T, err error) {
				var ecv *ExecutionContractViolation
				if !errors.As(err, &ecv) {
					t.Errorf("got %T, want *ExecutionContractViolation", err)
				}
			},
		},
		{
			name:      "no output",
			generator: true,
			setup:     func(h *harness) { h.corrector.output = "" },
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrNoOutput) {
					t.Errorf("got %v, want ErrNoOutput", err)
				}
			},
		},
		{
			name:      "output still invalid",
			generator: true,
			setup:     func(h *harness) { h.corrector.output = invalidCSV },
			check: func(t *testing.T, err error) {
				var ecv *ExecutionContractViolation
				if !errors.As(err, &ecv) || !errors.Is(err, ErrStillInvalid) {
					t.Fatalf("got %v, want ErrStillInvalid", err)
				}
				if ecv.Remaining == nil || ecv.Remaining.Valid {
					t.Errorf("Remaining = %+v, want findings", ecv.Remaining)
				}
			},
		},
		{
			name:      "ingest failure",
			generator: true,
			setup:     func(h *harness) { h.sink.err = errors.New("connection refused") },
			check: func(t *testing.T, err error) {
				var pf *PersistenceFailure
				if !errors.As(err, &pf) || pf.Op != "ingest" {
					t.Errorf("got %v, want ingest PersistenceFailure", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.generator)
			if tt.setup != nil {
				tt.setup(h)
			}
			res, err := h.run(t, invalidCSV, "")
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)

			if res == nil || res.Phase == PhaseIngested {
				t.Errorf("result = %+v, want a non-ingested phase", res)
			}
			if len(h.sink.ingested) != 0 {
				t.Error("rows ingested after a failure")
			}
			if len(h.cache.scripts) != 0 {
				t.Error("script stored after a failure")
			}
			if len(h.audit.entries) != 0 {
				t.Error("audit written after a failure")
			}
		})
	}
}

func TestPipeline_CacheStoreFailureIsSurfacedAfterIngest(t *testing.T) {
	h := newHarness(t, true)
	h.cache.storeErr = errors.New("redis down")

	res, err := h.run(t, invalidCSV, "")
	var pf *PersistenceFailure
	if !errors.As(err, &pf) || pf.Op != "cache_store" {
		t.Fatalf("got %v, want cache_store PersistenceFailure", err)
	}
	if res.Phase != PhaseIngested {
		t.Errorf("Phase = %s, want ingested", res.Phase)
	}
	if len(h.audit.entries) != 1 {
		t.Errorf("audit entries = %d, want 1", len(h.audit.entries))
	}
}

func TestPipeline_ReadError(t *testing.T) {
	h := newHarness(t, true)

	res, err := h.run(t, "", "")
	var re *ReadError
	if !errors.As(err, &re) {
		t.Fatalf("got %v, want *ReadError", err)
	}
	if res.Report == nil || !res.Report.Has(KindReadError) {
		t.Errorf("report = %+v, want read error finding", res.Report)
	}
}

type populatingLocker struct {
	cache *memCache
	fp    string
	locks int
}

func (l *populatingLocker) Lock(context.Context, string) (func(), error) {
	l.locks++
	// Simulates another worker finishing generation while we waited.
	l.cache.scripts[l.fp] = "from other worker"
	return func() {}, nil
}

func TestPipeline_LockRechecksCache(t *testing.T) {
	h := newHarness(t, true)
	locker := &populatingLocker{cache: h.cache, fp: Fingerprint([]string{"Data", "valor", "account"})}
	h.pipeline.locker = locker

	res, err := h.run(t, invalidCSV, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if locker.locks != 1 {
		t.Errorf("locks = %d, want 1", locker.locks)
	}
	if res.Source != SourceCache || h.generator.calls != 0 {
		t.Errorf("source = %s, generator calls = %d; want cache, 0", res.Source, h.generator.calls)
	}
}

type failingLocker struct{ err error }

func (l failingLocker) Lock(context.Context, string) (func(), error) { return nil, l.err }

func TestPipeline_LockFailureStopsGeneration(t *testing.T) {
	h := newHarness(t, true)
	lockErr := errors.New("redis down")
	h.pipeline.locker = failingLocker{err: lockErr}

	res, err := h.run(t, invalidCSV, "")
	var gf *GenerationFailure
	if !errors.As(err, &gf) || !errors.Is(err, lockErr) {
		t.Fatalf("got %v, want GenerationFailure wrapping the lock error", err)
	}
	if h.generator.calls != 0 {
		t.Errorf("generator calls = %d, want 0", h.generator.calls)
	}
	if res.Phase != PhaseFailed {
		t.Errorf("phase = %s, want %s", res.Phase, PhaseFailed)
	}
}

func TestPipeline_PrepareThenApply(t *testing.T) {
	h := newHarness(t, true)
	path := writeFile(t, "input.csv", []byte(invalidCSV))

	prep, err := h.pipeline.Prepare(context.Background(), RunRequest{Path: path, Template: transacoesTemplate()})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prep.Phase != PhaseResolved || prep.Script == "" {
		t.Fatalf("prepared = %+v", prep)
	}
	if h.corrector.calls != 0 || len(h.sink.ingested) != 0 {
		t.Fatal("Prepare had side effects beyond generation")
	}

	res, err := h.pipeline.Apply(context.Background(), prep)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.RunID != prep.RunID {
		t.Errorf("RunID = %s, want %s", res.RunID, prep.RunID)
	}
}

func TestPipeline_InspectResolvesNothing(t *testing.T) {
	h := newHarness(t, true)
	path := writeFile(t, "input.csv", []byte(invalidCSV))

	prep, err := h.pipeline.Inspect(context.Background(), RunRequest{Path: path, Template: transacoesTemplate()})
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if prep.Report.Valid || prep.Phase != PhaseLoaded {
		t.Errorf("valid/phase = %v/%s, want false/loaded", prep.Report.Valid, prep.Phase)
	}
	if prep.Script != "" || h.generator.calls != 0 {
		t.Errorf("Inspect resolved a script")
	}
	if want := Fingerprint([]string{"Data", "valor", "account"}); prep.Fingerprint != want {
		t.Errorf("fingerprint = %s, want %s", prep.Fingerprint, want)
	}

	fp, ds, err := h.pipeline.Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if fp != prep.Fingerprint || ds.Len() != 2 {
		t.Errorf("Fingerprint() = %s (%d rows), want %s (2 rows)", fp, ds.Len(), prep.Fingerprint)
	}
}

func TestNewPipeline_RequiresDeps(t *testing.T) {
	if _, err := NewPipeline(PipelineDeps{}); err == nil {
		t.Error("NewPipeline accepted empty deps")
	}
}
