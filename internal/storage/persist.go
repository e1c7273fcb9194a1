package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"audience/internal/metrics"
	"audience/internal/upload"
)

// ErrIncomplete is returned by Persist for uploads missing required columns.
var ErrIncomplete = errors.New("storage: upload is missing required columns")

var errSaveUpload = errors.New("storage: save upload")

// rollbackTimeout bounds the cleanup after a failed Persist.
const rollbackTimeout = 10 * time.Second

// PersistOptions tunes Persist.
type PersistOptions struct {
	Filename  string
	BatchSize int
	Job       string
	Logger    *zap.Logger
}

// Persist records out and its rows. Only uploads that have every required
// column are stored. Rows are written in file order, numbered from 1, with
// each row's flat JSON object as payload. If any write fails, the upload and
// the rows already written are deleted and Persist returns 0.
func Persist(ctx context.Context, repo Repository, out upload.Outcome, opt PersistOptions) (int64, error) {
	if !out.Preview.HasAllRequired {
		return 0, ErrIncomplete
	}
	if opt.BatchSize <= 0 {
		opt.BatchSize = 500
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	log := opt.Logger.With(zap.String("upload_id", out.ID.String()))

	start := time.Now()
	n, err := persist(ctx, log, repo, out, opt)
	metrics.RecordStep(opt.Job, "save", err, time.Since(start))
	if err != nil {
		if !errors.Is(err, errSaveUpload) {
			rollback(ctx, log, repo, out.ID.String())
		}
		return 0, err
	}
	metrics.RecordRow(opt.Job, "inserted", n)
	log.Info("upload saved", zap.Int64("rows", n))
	return n, nil
}

func persist(ctx context.Context, log *zap.Logger, repo Repository, out upload.Outcome, opt PersistOptions) (int64, error) {
	err := repo.SaveUpload(ctx, Upload{
		ID:             out.ID.String(),
		Fingerprint:    out.Fingerprint,
		Filename:       opt.Filename,
		TotalRows:      out.Preview.TotalRows,
		HasAllRequired: out.Preview.HasAllRequired,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errSaveUpload, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan []any, opt.BatchSize)
	encErr := make(chan error, 1)
	go func() {
		defer close(in)
		for i, row := range out.Rows {
			payload, err := json.Marshal(row)
			if err != nil {
				encErr <- fmt.Errorf("storage: encode row %d: %w", i+1, err)
				cancel()
				return
			}
			select {
			case in <- []any{out.ID.String(), i + 1, string(payload)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	counting := func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		n, err := repo.LoadRows(ctx, columns, rows)
		if err == nil {
			metrics.RecordBatches(opt.Job, 1)
		}
		return n, err
	}

	n, err := LoadBatches(ctx, log, RowColumns, in, opt.BatchSize, counting)
	select {
	case e := <-encErr:
		return n, e
	default:
	}
	if err != nil {
		return n, fmt.Errorf("storage: load rows: %w", err)
	}
	return n, nil
}

// rollback deletes a partially written upload. It runs even when ctx is
// already cancelled.
func rollback(ctx context.Context, log *zap.Logger, repo Repository, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := repo.DeleteUpload(ctx, id); err != nil {
		log.Error("rollback failed, partial upload left behind", zap.Error(err))
		return
	}
	log.Warn("upload rolled back")
}
