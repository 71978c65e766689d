package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolEngine/internal/acl"
	"poolEngine/internal/fhe"
	"poolEngine/internal/ledger"
	"poolEngine/internal/model"
	"poolEngine/internal/pool"
	"poolEngine/internal/storage"
)

const (
	ModeTransparent  = "transparent"
	ModeConfidential = "confidential"
)

// ErrorSink receives failed operations.
type ErrorSink interface {
	PutErrors(ctx context.Context, errs []model.OperationError) error
}

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	Mode          string
	Pool          pool.Config
	LedgerAddress common.Address
	BatchSize     uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	ReportPath    string
}

// Runner replays an operations file against a fresh pool.
type Runner struct {
	cfg    RunConfig
	events *retryingSink
	errs   ErrorSink
	logger *zap.Logger
	target target
}

type lineOp struct {
	line int
	op   model.Operation
	err  error
}

// NewRunner builds the pool for cfg.Mode with its ledger. Events are written
// to events through a retrying wrapper; failed operations go to errs.
func NewRunner(cfg RunConfig, events storage.Storage, errs ErrorSink, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		return nil, fmt.Errorf("event storage is nil")
	}
	if cfg.BatchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}

	r := &Runner{
		cfg: cfg,
		events: &retryingSink{
			inner:      events,
			maxRetries: cfg.MaxRetries,
			backoff:    cfg.RetryBackoff,
			logger:     logger,
		},
		errs:   errs,
		logger: logger,
	}

	switch cfg.Mode {
	case ModeTransparent:
		led := ledger.New()
		p, err := pool.NewTransparent(cfg.Pool, led, r.events, logger)
		if err != nil {
			return nil, err
		}
		r.target = &transparentTarget{ledger: led, pool: p, logger: logger}
	case ModeConfidential:
		if cfg.LedgerAddress == (common.Address{}) {
			return nil, fmt.Errorf("ledger address is required in confidential mode")
		}
		grants := acl.NewLedger()
		cop := fhe.NewCoprocessor(grants)
		led := ledger.NewConfidential(cfg.LedgerAddress, cop, grants)
		p, err := pool.NewConfidential(cfg.Pool, led, cop, grants, r.events, logger)
		if err != nil {
			return nil, err
		}
		r.target = &confidentialTarget{cop: cop, ledger: led, pool: p, logger: logger}
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	return r, nil
}

// Run applies every operation in inputPath in order and returns the report.
// Operation failures are recorded, not returned; only I/O and cancellation
// abort the run.
func (r *Runner) Run(ctx context.Context, inputPath string) (Report, error) {
	ops, err := readOperations(inputPath)
	if err != nil {
		return Report{}, err
	}

	report := newReport(r.cfg.Mode)
	if len(ops) > 0 {
		ranges, err := SplitRange(1, uint64(len(ops)), r.cfg.BatchSize)
		if err != nil {
			return Report{}, err
		}

		for _, lineRange := range ranges {
			select {
			case <-ctx.Done():
				return Report{}, ctx.Err()
			default:
			}

			batch := ops[lineRange.From-1 : lineRange.To]
			failures := r.applyBatch(ctx, batch, &report)

			if len(failures) > 0 && r.errs != nil {
				if err := r.errs.PutErrors(ctx, failures); err != nil {
					return Report{}, fmt.Errorf("store errors: %w", err)
				}
			}

			r.logger.Info("batch complete",
				zap.Int("ops", len(batch)),
				zap.Int("failed", len(failures)),
				zap.Uint64("from", lineRange.From),
				zap.Uint64("to", lineRange.To),
			)
		}
	}

	report.Events = int(r.events.written.Load())
	report.Snapshot = r.target.snapshot()
	if err := WriteReport(r.cfg.ReportPath, report); err != nil {
		return Report{}, err
	}
	return report, nil
}

func (r *Runner) applyBatch(ctx context.Context, batch []lineOp, report *Report) []model.OperationError {
	var failures []model.OperationError
	for _, item := range batch {
		err := item.err
		if err == nil {
			err = r.applyOne(ctx, item.op)
		}
		report.record(item.op.Op, err)
		if err == nil {
			continue
		}
		r.logger.Debug("operation failed", zap.Int("line", item.line), zap.String("op", string(item.op.Op)), zap.Error(err))
		failures = append(failures, model.OperationError{
			Line:   item.line,
			Op:     item.op.Op,
			Caller: item.op.Caller,
			Error:  err.Error(),
		})
	}
	return failures
}

func (r *Runner) applyOne(ctx context.Context, op model.Operation) error {
	caller, err := ParseAddress(op.Caller)
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}
	return r.target.apply(ctx, caller, op)
}

// readOperations parses every non-empty line; malformed lines are kept with
// their decode error so they show up in the error output.
func readOperations(path string) ([]lineOp, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var ops []lineOp
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		item := lineOp{line: lineNo}
		if err := json.Unmarshal(line, &item.op); err != nil {
			item.err = fmt.Errorf("decode operation: %w", err)
		}
		ops = append(ops, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return ops, nil
}
