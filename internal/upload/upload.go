// Package upload validates uploaded audience files.
//
// Validate runs the whole pipeline over an in-memory payload:
//
//	parse -> emptiness check -> row ceiling -> canonicalize -> sanitize -> preview
//
// Hard failures (ParseError, EmptyFileError, RowLimitExceededError, ReadError)
// stop the pipeline and no rows or preview are returned. Missing required
// columns are advisory and reported in the Preview.
package upload

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"audience/internal/metrics"
	"audience/internal/parser"
	"audience/internal/records"
	"audience/internal/schema"
	"audience/internal/transformer"
	"audience/internal/transformer/builtin"
)

// DefaultMaxRows is the row ceiling applied when Options.MaxRows is not set.
const DefaultMaxRows = 100

// Options configures a validation run. The zero value is usable.
type Options struct {
	// MaxRows is the largest accepted number of data rows.
	MaxRows int
	// MaxBytes caps the payload size read by ValidateReader. Zero means no cap.
	MaxBytes int64
	// Required is the column vocabulary; schema.Customer() when zero.
	Required schema.ColumnSet
	Parser   parser.Options
	Logger   *zap.Logger
	// Job labels metrics and log lines.
	Job string
}

func (o Options) withDefaults() Options {
	if o.MaxRows <= 0 {
		o.MaxRows = DefaultMaxRows
	}
	if o.Required.IsZero() {
		o.Required = schema.Customer()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Job == "" {
		o.Job = "upload"
	}
	return o
}

// Outcome is the result of a successful validation.
type Outcome struct {
	ID uuid.UUID
	// Fingerprint is the hex xxh3-128 digest of the payload.
	Fingerprint string
	Format      parser.Format
	Preview     Preview
	Rows        []Row
}

// Fingerprint returns the hex xxh3-128 digest of data.
func Fingerprint(data []byte) string {
	sum := xxh3.Hash128(data).Bytes()
	return hex.EncodeToString(sum[:])
}

// ValidateReader reads the payload from r and validates it. Read failures,
// payloads larger than opt.MaxBytes and context cancellation during the read
// are reported as *ReadError.
func ValidateReader(ctx context.Context, r io.Reader, opt Options) (Outcome, error) {
	opt = opt.withDefaults()

	var data []byte
	err := step(opt.Job, "read", func() error {
		var err error
		data, err = readAll(ctx, r, opt.MaxBytes)
		return err
	})
	if err != nil {
		rerr := &ReadError{Err: err}
		opt.Logger.Info("upload rejected", zap.String("job", opt.Job), zap.Error(rerr))
		return Outcome{}, rerr
	}
	return Validate(data, opt)
}

// Validate runs the pipeline over data.
func Validate(data []byte, opt Options) (Outcome, error) {
	opt = opt.withDefaults()
	log := opt.Logger.With(zap.String("job", opt.Job))

	var (
		tbl    records.Table
		format parser.Format
	)
	err := step(opt.Job, "parse", func() error {
		var err error
		tbl, format, err = parser.Decode(data, opt.Parser)
		return err
	})
	if err != nil {
		perr := &ParseError{Format: format, Err: err}
		log.Info("upload rejected", zap.Error(perr))
		return Outcome{}, perr
	}
	metrics.RecordRow(opt.Job, "parsed", int64(tbl.Len()))

	if err := checkRowCount(tbl, opt.MaxRows); err != nil {
		metrics.RecordRow(opt.Job, "rejected", int64(tbl.Len()))
		log.Info("upload rejected", zap.Error(err), zap.Int("rows", tbl.Len()))
		return Outcome{}, err
	}

	canon := builtin.NewCanonicalize(opt.Required, tbl.Headers)
	if dups := canon.Collisions(); len(dups) > 0 {
		log.Warn("duplicate columns, rightmost value kept", zap.Strings("columns", dups))
	}

	chain := transformer.Chain{
		timed{job: opt.Job, step: "canonicalize", t: canon},
		timed{job: opt.Job, step: "sanitize", t: builtin.Sanitize{}},
	}
	recs := chain.Apply(tbl.Rows)

	rows := make([]Row, len(recs))
	for i, rec := range recs {
		rows[i] = newRow(rec, opt.Required)
	}

	var preview Preview
	_ = step(opt.Job, "preview", func() error {
		preview = buildPreview(canon.Columns(), opt.Required, rows, canon.Missing(), canon.Collisions())
		return nil
	})
	metrics.RecordRow(opt.Job, "accepted", int64(len(rows)))

	out := Outcome{
		ID:          uuid.New(),
		Fingerprint: Fingerprint(data),
		Format:      format,
		Preview:     preview,
		Rows:        rows,
	}
	log.Debug("upload validated",
		zap.String("id", out.ID.String()),
		zap.String("format", string(format)),
		zap.Int("rows", len(rows)),
		zap.Strings("missing", preview.MissingColumns),
	)
	return out, nil
}

// checkRowCount applies the emptiness check and then the row ceiling.
func checkRowCount(tbl records.Table, maxRows int) error {
	n := tbl.Len()
	if n == 0 {
		return &EmptyFileError{HeadersOnly: len(tbl.Headers) > 0}
	}
	if n > maxRows {
		return &RowLimitExceededError{Observed: n, Limit: maxRows}
	}
	return nil
}

func readAll(ctx context.Context, r io.Reader, maxBytes int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes+1)
	}
	data, err := io.ReadAll(ctxReader{ctx: ctx, r: r})
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("payload exceeds %d bytes", maxBytes)
	}
	return data, nil
}

// ctxReader fails reads once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// step times fn and records it as a pipeline step.
func step(job, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStep(job, name, err, time.Since(start))
	return err
}

// timed records a transformer's run as a pipeline step.
type timed struct {
	job  string
	step string
	t    transformer.Transformer
}

func (t timed) Apply(in []records.Record) []records.Record {
	var out []records.Record
	_ = step(t.job, t.step, func() error {
		out = t.t.Apply(in)
		return nil
	})
	return out
}
