package core

// pipeline.go orchestrates a run: load, fingerprint, validate, resolve a
// correction script, apply it, re-validate and ingest.
//
// A run has two halves. Prepare is side-effect free apart from generation:
// it produces the report and, for invalid input, the script to apply. Apply
// executes the script in a sandboxed runner, re-validates the output against
// the same template and only then persists. Scripts that came from the
// generator or were supplied manually are stored under the fingerprint of
// the original input after a successful ingestion, never before.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DefaultWorkDir holds per-run scratch directories.
const DefaultWorkDir = "data/runs"

// ScriptCache maps structural fingerprints to correction scripts.
// Lookup returns nil without error on a miss.
type ScriptCache interface {
	Lookup(ctx context.Context, fingerprint string) (*Script, error)
	Store(ctx context.Context, fingerprint, body string) error
}

// GenerationRequest is everything a generator may use to write a script.
type GenerationRequest struct {
	Fingerprint string
	ReportText  string
	Report      *Report
	Sample      string
	Template    *Template
}

// CorrectionGenerator produces a correction script source.
type CorrectionGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// Corrector runs a script's entry point on inputPath, writing outputPath.
// Contract failures are reported as *ExecutionContractViolation.
type Corrector interface {
	Apply(ctx context.Context, script, inputPath, outputPath string) error
}

// GenerationLocker serializes generation per fingerprint across processes.
type GenerationLocker interface {
	Lock(ctx context.Context, fingerprint string) (unlock func(), err error)
}

// Archiver copies run artifacts to long-term storage.
type Archiver interface {
	ArchiveFile(ctx context.Context, runID, name, path string) error
	ArchiveJSON(ctx context.Context, runID, name string, v any) error
}

// PipelineDeps wires a Pipeline. Cache, Corrector, Sink and Audit are required.
type PipelineDeps struct {
	Loader    *Loader
	Hasher    Hasher
	Cache     ScriptCache
	Generator CorrectionGenerator
	Corrector Corrector
	Sink      IngestionSink
	Audit     AuditLog
	Locker    GenerationLocker
	Archiver  Archiver

	WorkDir       string
	SampleLines   int
	DateThreshold float64
}

// Pipeline runs files through validation, correction and ingestion.
type Pipeline struct {
	loader    *Loader
	hasher    Hasher
	cache     ScriptCache
	generator CorrectionGenerator
	corrector Corrector
	sink      IngestionSink
	audit     AuditLog
	locker    GenerationLocker
	archiver  Archiver

	workDir       string
	sampleLines   int
	dateThreshold float64
}

// NewPipeline validates deps and applies defaults.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	switch {
	case deps.Cache == nil:
		return nil, errors.New("pipeline: script cache is required")
	case deps.Corrector == nil:
		return nil, errors.New("pipeline: corrector is required")
	case deps.Sink == nil:
		return nil, errors.New("pipeline: ingestion sink is required")
	case deps.Audit == nil:
		return nil, errors.New("pipeline: audit log is required")
	}

	p := &Pipeline{
		loader:        deps.Loader,
		hasher:        deps.Hasher,
		cache:         deps.Cache,
		generator:     deps.Generator,
		corrector:     deps.Corrector,
		sink:          deps.Sink,
		audit:         deps.Audit,
		locker:        deps.Locker,
		archiver:      deps.Archiver,
		workDir:       deps.WorkDir,
		sampleLines:   deps.SampleLines,
		dateThreshold: deps.DateThreshold,
	}
	if p.loader == nil {
		p.loader = NewLoader(nil)
	}
	if p.workDir == "" {
		p.workDir = DefaultWorkDir
	}
	if p.sampleLines <= 0 {
		p.sampleLines = DefaultSampleLines
	}
	if p.dateThreshold <= 0 {
		p.dateThreshold = DefaultDateThreshold
	}
	return p, nil
}

// Loader returns the loader used by the pipeline.
func (p *Pipeline) Loader() *Loader {
	return p.loader
}

// HasGenerator reports whether cache misses can be resolved by generation.
func (p *Pipeline) HasGenerator() bool {
	return p.generator != nil
}

// WorkDir returns the root of per-run scratch directories.
func (p *Pipeline) WorkDir() string {
	return p.workDir
}

// RunDir creates and returns the scratch directory for runID.
func (p *Pipeline) RunDir(runID string) (string, error) {
	dir := filepath.Join(p.workDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return dir, nil
}

// RunRequest describes one file to process.
type RunRequest struct {
	// RunID is generated when empty.
	RunID    string
	Path     string
	FileName string
	Template *Template
	// Script overrides cache and generator when set.
	Script string
}

// Prepared is the outcome of Prepare.
type Prepared struct {
	RunID       string       `json:"run_id"`
	FileName    string       `json:"arquivo_nome"`
	InputPath   string       `json:"-"`
	Template    *Template    `json:"-"`
	Dataset     *Dataset     `json:"-"`
	Encoding    string       `json:"encoding,omitempty"`
	Fingerprint string       `json:"hash_estrutura,omitempty"`
	Report      *Report      `json:"relatorio"`
	ReportText  string       `json:"relatorio_texto"`
	Script      string       `json:"script,omitempty"`
	Source      ScriptSource `json:"fonte_script"`
	Phase       RunPhase     `json:"fase"`
	started     time.Time
}

// RunResult is the outcome of a full run.
type RunResult struct {
	RunID        string        `json:"run_id"`
	FileName     string        `json:"arquivo_nome"`
	Fingerprint  string        `json:"hash_estrutura"`
	Encoding     string        `json:"encoding"`
	Phase        RunPhase      `json:"fase"`
	Report       *Report       `json:"relatorio"`
	ReportText   string        `json:"relatorio_texto"`
	Corrected    *Report       `json:"relatorio_corrigido,omitempty"`
	Source       ScriptSource  `json:"fonte_script"`
	Script       string        `json:"script,omitempty"`
	RowsTotal    int           `json:"registros_total"`
	RowsIngested int           `json:"registros_sucesso"`
	Duration     time.Duration `json:"-"`
}

// Inspect loads, fingerprints and validates the file without resolving a
// script. A load failure returns a ReadError report together with the
// *ReadError.
func (p *Pipeline) Inspect(ctx context.Context, req RunRequest) (*Prepared, error) {
	if req.Template == nil {
		return nil, errors.New("pipeline: template is required")
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	name := req.FileName
	if name == "" {
		name = filepath.Base(req.Path)
	}
	log := loggerFrom(ctx).With("run_id", runID, "file", name, "template", req.Template.Name)

	prep := &Prepared{
		RunID:     runID,
		FileName:  name,
		InputPath: req.Path,
		Template:  req.Template,
		Source:    SourceNone,
		Phase:     PhaseFailed,
		started:   time.Now(),
	}

	ds, err := p.loader.Load(req.Path)
	if err != nil {
		prep.Report = readFailure(err)
		prep.ReportText = RenderReport(prep.Report)
		log.Warn("load failed", "error", err)
		return prep, err
	}
	prep.Dataset = ds
	prep.Encoding = ds.Encoding
	prep.Fingerprint = p.hasher.Fingerprint(ds)
	prep.Phase = PhaseLoaded

	validator := NewValidator(req.Template, WithDateThreshold(p.dateThreshold))
	prep.Report = validator.Validate(ds)
	prep.ReportText = RenderReport(prep.Report)

	log.Info("validated",
		"fingerprint", prep.Fingerprint,
		"encoding", ds.Encoding,
		"rows", ds.Len(),
		"valid", prep.Report.Valid,
		"errors", prep.Report.ErrorCount,
	)

	if prep.Report.Valid {
		prep.Phase = PhaseValid
	}
	return prep, nil
}

// Prepare inspects the file and, when it is invalid, resolves a correction
// script from the request override, the cache or the generator.
func (p *Pipeline) Prepare(ctx context.Context, req RunRequest) (*Prepared, error) {
	prep, err := p.Inspect(ctx, req)
	if err != nil || prep.Report.Valid {
		return prep, err
	}

	if req.Script != "" {
		prep.Script = req.Script
		prep.Source = SourceManual
		prep.Phase = PhaseResolved
		return prep, nil
	}

	script, source, err := p.resolveScript(ctx, prep)
	if err != nil {
		prep.Phase = PhaseFailed
		return prep, err
	}
	prep.Script = script
	prep.Source = source
	prep.Phase = PhaseResolved
	loggerFrom(ctx).Info("script resolved",
		"run_id", prep.RunID,
		"source", source,
		"fingerprint", prep.Fingerprint,
	)
	return prep, nil
}

// Fingerprint loads the file at path and returns its structural fingerprint.
func (p *Pipeline) Fingerprint(path string) (string, *Dataset, error) {
	ds, err := p.loader.Load(path)
	if err != nil {
		return "", nil, err
	}
	return p.hasher.Fingerprint(ds), ds, nil
}

// resolveScript returns the cached script for the fingerprint or asks the
// generator for one.
func (p *Pipeline) resolveScript(ctx context.Context, prep *Prepared) (string, ScriptSource, error) {
	cached, err := p.cache.Lookup(ctx, prep.Fingerprint)
	if err != nil {
		return "", SourceNone, &PersistenceFailure{Op: "cache_lookup", Err: err}
	}
	if cached != nil {
		return cached.Body, SourceCache, nil
	}

	if p.generator == nil {
		return "", SourceNone, ErrNoGenerator
	}

	if p.locker != nil {
		unlock, err := p.locker.Lock(ctx, prep.Fingerprint)
		if err != nil {
			return "", SourceNone, &GenerationFailure{Err: fmt.Errorf("acquire generation lock: %w", err)}
		}
		defer unlock()

		// Another run may have stored a script while we waited.
		cached, err = p.cache.Lookup(ctx, prep.Fingerprint)
		if err != nil {
			return "", SourceNone, &PersistenceFailure{Op: "cache_lookup", Err: err}
		}
		if cached != nil {
			return cached.Body, SourceCache, nil
		}
	}

	sample, err := ReadSample(prep.InputPath, prep.Encoding, p.sampleLines)
	if err != nil {
		return "", SourceNone, &ReadError{Path: prep.InputPath, Encoding: prep.Encoding, Err: err}
	}

	script, err := p.generator.Generate(ctx, GenerationRequest{
		Fingerprint: prep.Fingerprint,
		ReportText:  prep.ReportText,
		Report:      prep.Report,
		Sample:      sample,
		Template:    prep.Template,
	})
	if err != nil {
		var gf *GenerationFailure
		if errors.As(err, &gf) {
			return "", SourceNone, err
		}
		return "", SourceNone, &GenerationFailure{Err: err}
	}
	if script == "" {
		return "", SourceNone, &GenerationFailure{Err: ErrEmptyScript}
	}
	return script, SourceGenerator, nil
}

// Apply finishes a prepared run: correct when needed, re-validate, ingest,
// store the script and write the audit record. The returned result is never
// nil; its Phase tells how far the run got.
func (p *Pipeline) Apply(ctx context.Context, prep *Prepared) (*RunResult, error) {
	res := &RunResult{
		RunID:       prep.RunID,
		FileName:    prep.FileName,
		Fingerprint: prep.Fingerprint,
		Encoding:    prep.Encoding,
		Phase:       PhaseFailed,
		Report:      prep.Report,
		ReportText:  prep.ReportText,
		Source:      prep.Source,
		Script:      prep.Script,
	}
	log := loggerFrom(ctx).With("run_id", prep.RunID, "file", prep.FileName)

	if prep.Dataset == nil || prep.Report == nil {
		return res, errors.New("pipeline: run was not prepared")
	}

	final := prep.Dataset
	outputPath := ""
	if !prep.Report.Valid {
		if prep.Script == "" {
			return res, errors.New("pipeline: invalid input and no script resolved")
		}

		dir, err := p.RunDir(prep.RunID)
		if err != nil {
			return res, err
		}
		outputPath = filepath.Join(dir, "output.csv")

		start := time.Now()
		if err := p.corrector.Apply(ctx, prep.Script, prep.InputPath, outputPath); err != nil {
			var ecv *ExecutionContractViolation
			if !errors.As(err, &ecv) {
				err = &ExecutionContractViolation{Err: err}
			}
			log.Warn("correction failed", "error", err, "source", prep.Source)
			return res, err
		}
		if _, err := os.Stat(outputPath); err != nil {
			return res, &ExecutionContractViolation{Err: ErrNoOutput}
		}
		log.Info("correction applied", "source", prep.Source, "duration_ms", time.Since(start).Milliseconds())

		fixed, err := p.loader.Load(outputPath)
		if err != nil {
			report := readFailure(err)
			res.Corrected = report
			return res, &ExecutionContractViolation{Err: fmt.Errorf("reload corrected output: %w", err), Remaining: report}
		}

		validator := NewValidator(prep.Template, WithDateThreshold(p.dateThreshold))
		res.Corrected = validator.Validate(fixed)
		if !res.Corrected.Valid {
			log.Warn("corrected output still invalid", "errors", res.Corrected.ErrorCount)
			return res, &ExecutionContractViolation{Err: ErrStillInvalid, Remaining: res.Corrected}
		}
		res.Phase = PhaseCorrected
		final = fixed
	}

	res.RowsTotal = final.Len()
	n, err := p.sink.Ingest(ctx, prep.RunID, prep.Template, final)
	if err != nil {
		return res, &PersistenceFailure{Op: "ingest", Err: err}
	}
	res.RowsIngested = n
	res.Phase = PhaseIngested
	res.Duration = time.Since(prep.started)

	// Ingestion is committed from here on; later failures are surfaced
	// without rolling it back.
	var errs []error
	if prep.Source == SourceGenerator || prep.Source == SourceManual {
		if err := p.cache.Store(ctx, prep.Fingerprint, prep.Script); err != nil {
			errs = append(errs, &PersistenceFailure{Op: "cache_store", Err: err})
		}
	}
	if err := p.audit.Record(ctx, NewAuditEntry(ctx, res)); err != nil {
		errs = append(errs, &PersistenceFailure{Op: "audit", Err: err})
	}

	p.archive(ctx, prep, res, outputPath)

	log.Info("run completed",
		"rows_total", res.RowsTotal,
		"rows_ingested", res.RowsIngested,
		"source", res.Source,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, errors.Join(errs...)
}

// Run is Prepare followed by Apply.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	prep, err := p.Prepare(ctx, req)
	if err != nil {
		res := &RunResult{Phase: PhaseFailed}
		if prep != nil {
			res.RunID = prep.RunID
			res.FileName = prep.FileName
			res.Fingerprint = prep.Fingerprint
			res.Encoding = prep.Encoding
			res.Report = prep.Report
			res.ReportText = prep.ReportText
		}
		return res, err
	}
	return p.Apply(ctx, prep)
}

// archive copies artifacts of a finished run. Failures are logged only.
func (p *Pipeline) archive(ctx context.Context, prep *Prepared, res *RunResult, outputPath string) {
	if p.archiver == nil {
		return
	}
	log := loggerFrom(ctx).With("run_id", prep.RunID)

	if err := p.archiver.ArchiveFile(ctx, prep.RunID, "input.csv", prep.InputPath); err != nil {
		log.Warn("archive input failed", "error", err)
	}
	if outputPath != "" {
		if err := p.archiver.ArchiveFile(ctx, prep.RunID, "output.csv", outputPath); err != nil {
			log.Warn("archive output failed", "error", err)
		}
	}
	if err := p.archiver.ArchiveJSON(ctx, prep.RunID, "result.json", res); err != nil {
		log.Warn("archive result failed", "error", err)
	}
}

// MarshalReport renders a report as indented JSON.
func MarshalReport(r *Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
