package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"drive-ocr/internal/document"
	"drive-ocr/internal/normalize"
	"drive-ocr/internal/ocr"
	"drive-ocr/internal/storage"
)

// Source lists and downloads image files.
type Source interface {
	List(ctx context.Context, folderID string, max int) ([]storage.ImageEntry, error)
	Fetch(ctx context.Context, fileID string) ([]byte, error)
}

// Files moves and shares source files.
type Files interface {
	Relocate(ctx context.Context, fileID, dest string) error
	Publish(ctx context.Context, fileID string) (string, error)
}

type Normalizer interface {
	Normalize(data []byte, mime string) (normalize.Image, error)
}

type Documents interface {
	Append(ctx context.Context, docID string, b document.Block) (document.Cursor, error)
	Create(ctx context.Context, title string, b document.Block) (document.Cursor, error)
}

// Ledger remembers which files were already appended.
type Ledger interface {
	Appended(ctx context.Context, fileID string) (docID string, ok bool, err error)
	MarkAppended(ctx context.Context, fileID, docID string) error
}

// ListingLedger is a Ledger whose marker arrives with the listed entry.
type ListingLedger interface {
	FromListing(e storage.ImageEntry) (docID string, ok bool)
}

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Metrics interface {
	File(outcome string)
	StageFailure(stage string)
	RunDuration(d time.Duration)
}

type Deps struct {
	Source     Source
	Files      Files
	Normalizer Normalizer
	Text       ocr.TextExtractor
	Objects    ocr.ObjectDetector
	Docs       Documents
	Ledger     Ledger
	Notifier   Notifier
	Metrics    Metrics
}

type Options struct {
	SourceFolderID string
	DoneFolderID   string
	// TargetDocID is the shared document; unused when PerFile is set.
	TargetDocID string
	MaxFiles    int

	PerFile       bool
	DetectObjects bool
	Publish       bool
	Convert       bool
}

// Outcome is what happened to one listed file.
type Outcome struct {
	Entry storage.ImageEntry
	// Stage is the last stage the file completed.
	Stage    Stage
	FailedAt Stage
	Err      error
	Skipped  bool
	DocID    string
	Link     string
	Text     ocr.Result
	Objects  *ocr.ObjectSet
}

func (o Outcome) Failed() bool { return o.Err != nil }

type Pipeline struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Source == nil, deps.Files == nil, deps.Docs == nil, deps.Text == nil:
		return nil, errors.New("pipeline: source, files, docs and text extractor are required")
	case opts.DetectObjects && deps.Objects == nil:
		return nil, errors.New("pipeline: object detection requested without a detector")
	case opts.Convert && deps.Normalizer == nil:
		return nil, errors.New("pipeline: conversion requested without a normalizer")
	case !opts.PerFile && opts.TargetDocID == "":
		return nil, errors.New("pipeline: target document is required in shared mode")
	case opts.SourceFolderID == "" || opts.DoneFolderID == "":
		return nil, errors.New("pipeline: source and done folders are required")
	}
	if deps.Ledger == nil {
		deps.Ledger = noLedger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noMetrics{}
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 10
	}
	return &Pipeline{deps: deps, opts: opts}, nil
}

// Run processes up to MaxFiles images in listing order, one at a time. Only a
// listing failure or cancellation is returned as an error; per-file failures
// are recorded in the outcomes.
func (p *Pipeline) Run(ctx context.Context) ([]Outcome, error) {
	runID := uuid.New().String()
	start := time.Now()

	log.Printf("[%s] Step 1: listing up to %d images in folder %s", runID, p.opts.MaxFiles, p.opts.SourceFolderID)
	entries, err := p.deps.Source.List(ctx, p.opts.SourceFolderID, p.opts.MaxFiles)
	if err != nil {
		log.Printf("[%s] Listing failed: %v", runID, err)
		return nil, err
	}
	log.Printf("[%s] ✓ %d images to process (plan: %s)", runID, len(entries), planString(p.opts.Plan()))

	outcomes := make([]Outcome, 0, len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			log.Printf("[%s] Run interrupted before file %d/%d: %v", runID, i+1, len(entries), err)
			p.report(context.WithoutCancel(ctx), runID, outcomes, time.Since(start))
			return outcomes, err
		}
		log.Printf("[%s] Step 2.%d: %s (%s, %s)", runID, i+1, e.Name, e.ID, e.MimeType)
		o := p.process(ctx, runID, e)
		outcomes = append(outcomes, o)
	}

	// the summary still goes out when the last file was interrupted
	err = ctx.Err()
	if err != nil {
		log.Printf("[%s] Run interrupted during the last file: %v", runID, err)
	}
	p.report(context.WithoutCancel(ctx), runID, outcomes, time.Since(start))
	return outcomes, err
}

// work carries intermediate results between the stages of one file.
type work struct {
	data []byte
	img  normalize.Image
}

func (p *Pipeline) process(ctx context.Context, runID string, e storage.ImageEntry) Outcome {
	o := Outcome{Entry: e, Stage: StageListed}
	plan := p.opts.Plan()

	docID, done, err := p.appended(ctx, e)
	if err != nil {
		log.Printf("[%s] WARN file=%s ledger lookup: %v", runID, e.ID, err)
	} else if done && (p.opts.PerFile || docID == p.opts.TargetDocID) {
		log.Printf("[%s] file=%s already appended to %s - skipping to relocation", runID, e.ID, docID)
		o.Skipped, o.DocID = true, docID
		plan = skipPlan
	}

	var w work
	for _, st := range plan {
		if err := ctx.Err(); err != nil {
			return p.fail(runID, o, st, err)
		}
		if err := p.step(ctx, runID, st, &o, &w); err != nil {
			return p.fail(runID, o, st, err)
		}
		o.Stage = st
	}

	if o.Skipped {
		p.deps.Metrics.File("skipped")
	} else {
		p.deps.Metrics.File("processed")
	}
	log.Printf("[%s] ✓ file=%s done (doc=%s)", runID, e.ID, o.DocID)
	return o
}

func (p *Pipeline) appended(ctx context.Context, e storage.ImageEntry) (string, bool, error) {
	if l, ok := p.deps.Ledger.(ListingLedger); ok {
		docID, done := l.FromListing(e)
		return docID, done, nil
	}
	return p.deps.Ledger.Appended(ctx, e.ID)
}

func (p *Pipeline) step(ctx context.Context, runID string, st Stage, o *Outcome, w *work) error {
	e := o.Entry
	switch st {
	case StageSkipped:
		return nil

	case StageFetched:
		data, err := p.deps.Source.Fetch(ctx, e.ID)
		if err != nil {
			return err
		}
		w.data = data
		log.Printf("[%s] fetched %d bytes", runID, len(data))

	case StageNormalized:
		w.img = normalize.Image{Data: w.data, MimeType: e.MimeType}
		if !p.opts.Convert {
			return nil
		}
		img, err := p.deps.Normalizer.Normalize(w.data, e.MimeType)
		if err != nil {
			return err
		}
		if img.MimeType != normalize.Canonical(e.MimeType) {
			log.Printf("[%s] converted %s -> %s", runID, e.MimeType, img.MimeType)
		}
		w.img = img

	case StageRecognized:
		return p.recognize(ctx, runID, o, w)

	case StageRelocated:
		return p.deps.Files.Relocate(ctx, e.ID, p.opts.DoneFolderID)

	case StagePublished:
		link, err := p.deps.Files.Publish(ctx, e.ID)
		if err != nil {
			return err
		}
		o.Link = link
		log.Printf("[%s] shared %s", runID, link)

	case StageAppended:
		return p.appendBlock(ctx, runID, o)

	default:
		return fmt.Errorf("unexpected stage %s", st)
	}
	return nil
}

// recognize fails only when every requested recognition failed.
func (p *Pipeline) recognize(ctx context.Context, runID string, o *Outcome, w *work) error {
	o.Text = ocr.RecognizeText(ctx, p.deps.Text, w.img.Data, w.img.MimeType)
	if o.Text.Kind == ocr.KindFailure {
		log.Printf("[%s] WARN file=%s text recognition: %v", runID, o.Entry.ID, o.Text.Err)
	}
	if !p.opts.DetectObjects {
		return o.Text.Err
	}
	set := ocr.LocalizeObjects(ctx, p.deps.Objects, w.img.Data)
	o.Objects = &set
	if set.Failed() {
		log.Printf("[%s] WARN file=%s object localization: %v", runID, o.Entry.ID, set.Err)
		if o.Text.Kind == ocr.KindFailure {
			return errors.Join(o.Text.Err, set.Err)
		}
	}
	return nil
}

func (p *Pipeline) appendBlock(ctx context.Context, runID string, o *Outcome) error {
	block := FormatBlock(o.Entry.Name, o.Text, o.Objects, o.Link)
	var (
		cur document.Cursor
		err error
	)
	if p.opts.PerFile {
		cur, err = p.deps.Docs.Create(ctx, o.Entry.Name, block)
	} else {
		cur, err = p.deps.Docs.Append(ctx, p.opts.TargetDocID, block)
	}
	if err != nil {
		return err
	}
	o.DocID = cur.DocID
	log.Printf("[%s] appended %d chars at index %d of %s", runID, document.Len(block.Text), cur.Index, cur.DocID)

	if err := p.deps.Ledger.MarkAppended(ctx, o.Entry.ID, cur.DocID); err != nil {
		log.Printf("[%s] WARN file=%s ledger mark: %v", runID, o.Entry.ID, err)
	}
	return nil
}

func (p *Pipeline) fail(runID string, o Outcome, st Stage, err error) Outcome {
	o.FailedAt, o.Err = st, err
	log.Printf("[%s] file=%s name=%s stage=%s: %v", runID, o.Entry.ID, o.Entry.Name, st, err)
	p.deps.Metrics.StageFailure(st.String())
	p.deps.Metrics.File("failed")
	return o
}

// FormatBlock lays out the block for one file: name, text, optional objects
// and link lines, then a blank separator line.
func FormatBlock(name string, text ocr.Result, objects *ocr.ObjectSet, link string) document.Block {
	var b document.Builder
	b.Line(name)
	switch text.Kind {
	case ocr.KindText:
		b.Line(strings.TrimRight(text.Text, "\r\n"))
	case ocr.KindEmpty:
		b.Line("(no text detected)")
	case ocr.KindFailure:
		b.Line("(text recognition failed: " + text.Reason + ")")
	}
	if objects != nil {
		if objects.Failed() {
			b.Line("Objects: (object detection failed: " + objects.Failure + ")")
		} else {
			b.Line("Objects: " + objects.Format())
		}
	}
	if link != "" {
		b.Write("Link: ")
		b.WriteLink(link, link)
		b.Line("")
	}
	b.Line("")
	return b.Block()
}

func (p *Pipeline) report(ctx context.Context, runID string, outcomes []Outcome, took time.Duration) {
	p.deps.Metrics.RunDuration(took)
	summary := Summarize(runID, outcomes, took)
	log.Printf("[%s] %s", runID, strings.ReplaceAll(summary, "\n", "; "))
	if p.deps.Notifier == nil {
		return
	}
	if err := p.deps.Notifier.Notify(ctx, summary); err != nil {
		log.Printf("[%s] WARN notify: %v", runID, err)
	}
}

// Summarize renders the per-run report sent to the notifier.
func Summarize(runID string, outcomes []Outcome, took time.Duration) string {
	var processed, skipped int
	var failed []string
	for _, o := range outcomes {
		switch {
		case o.Failed():
			failed = append(failed, fmt.Sprintf("%s (%s)", o.Entry.Name, o.FailedAt))
		case o.Skipped:
			skipped++
		default:
			processed++
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "drive-ocr run %s: %d processed, %d skipped, %d failed in %s",
		runID, processed, skipped, len(failed), took.Round(time.Millisecond))
	if len(failed) > 0 {
		sb.WriteString("\nfailed: " + strings.Join(failed, ", "))
	}
	return sb.String()
}

func planString(plan []Stage) string {
	names := make([]string, len(plan))
	for i, s := range plan {
		names[i] = s.String()
	}
	return strings.Join(names, " -> ")
}

type noLedger struct{}

func (noLedger) Appended(context.Context, string) (string, bool, error) { return "", false, nil }
func (noLedger) MarkAppended(context.Context, string, string) error     { return nil }

type noMetrics struct{}

func (noMetrics) File(string)               {}
func (noMetrics) StageFailure(string)       {}
func (noMetrics) RunDuration(time.Duration) {}
