// Package dispatch routes a named operation and its argument bag through
// lookup, the read-only guard, schema validation, statement building and
// execution, and turns whatever comes back into a single text response.
package dispatch

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/sqlgate/internal/apperr"
	"github.com/triage-ai/sqlgate/internal/catalog"
	"github.com/triage-ai/sqlgate/internal/executor"
	"github.com/triage-ai/sqlgate/internal/policy"
	"github.com/triage-ai/sqlgate/internal/sqlbuild"
	"github.com/triage-ai/sqlgate/internal/storage"
	"go.uber.org/zap"
)

// ErrorPrefix starts every failure response.
const ErrorPrefix = "Error occurred: "

// Call is one invocation as received from a transport.
type Call struct {
	Operation string
	Arguments map[string]any // nil means no arguments
	ClientID  string // empty for unauthenticated transports
	Transport string
}

// Result is the caller-visible response. Failures are text too; IsError
// lets transports that have an error flag set it.
type Result struct {
	Text    string
	IsError bool
}

// outcome is what a handler produced before formatting into a Result.
type outcome struct {
	text         string
	rowsAffected int64
	rowsReturned int
}

type handlerFunc func(ctx context.Context, args map[string]any) (outcome, error)

// Dispatcher is safe for concurrent use; it holds no per-request state.
type Dispatcher struct {
	catalog  *catalog.Catalog
	guard    policy.Guard
	exec     *executor.Executor
	writer   storage.EventWriter
	logger   *zap.Logger
	handlers map[string]handlerFunc
}

// New creates a Dispatcher with the given dependencies.
func New(
	cat *catalog.Catalog,
	guard policy.Guard,
	exec *executor.Executor,
	writer storage.EventWriter,
	logger *zap.Logger,
) *Dispatcher {
	d := &Dispatcher{
		catalog: cat,
		guard:   guard,
		exec:    exec,
		writer:  writer,
		logger:  logger,
	}
	d.handlers = map[string]handlerFunc{
		policy.ListTable:     d.listTables,
		policy.DescribeTable: d.describeTable,
		policy.ReadData:      d.readData,
		policy.InsertData:    d.insertData,
		policy.UpdateData:    d.updateData,
		policy.CreateTable:   d.createTable,
		policy.CreateIndex:   d.createIndex,
		policy.DropTable:     d.dropTable,
	}
	return d
}

// Operations lists what the current policy allows callers to invoke.
func (d *Dispatcher) Operations() []catalog.Descriptor {
	return d.catalog.Descriptors(d.guard)
}

// Handle runs one call. It never returns an error and never panics; every
// failure is rendered into the Result text.
func (d *Dispatcher) Handle(ctx context.Context, call Call) (res Result) {
	start := time.Now()
	var out outcome
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = apperr.New(apperr.ExecutionError, "internal error: %v", r)
			res = d.errorResult(call.Operation, err)
		}
		d.record(call, start, out, err)
	}()

	out, err = d.run(ctx, call)
	if err != nil {
		return d.errorResult(call.Operation, err)
	}
	return Result{Text: out.text}
}

func (d *Dispatcher) run(ctx context.Context, call Call) (outcome, error) {
	op, ok := d.catalog.Lookup(call.Operation)
	if !ok {
		return outcome{}, apperr.New(apperr.UnknownOperation, "unknown operation %q", call.Operation)
	}
	// The catalog already hides denied operations; a caller holding a stale
	// list still gets a policy violation here rather than an execution.
	if err := d.guard.Check(op.Name); err != nil {
		return outcome{}, err
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if err := op.Validate(args); err != nil {
		return outcome{}, err
	}

	handler, ok := d.handlers[op.Name]
	if !ok {
		return outcome{}, apperr.New(apperr.UnknownOperation, "no handler for operation %q", op.Name)
	}
	return handler(ctx, args)
}

func (d *Dispatcher) errorResult(op string, err error) Result {
	return Result{
		Text:    ErrorPrefix + apperr.WithOp(op, err).Error(),
		IsError: true,
	}
}

func (d *Dispatcher) record(call Call, start time.Time, out outcome, err error) {
	latency := time.Since(start)
	result := "ok"
	detail := ""
	if err != nil {
		result = apperr.KindOf(err).String()
		detail = err.Error()
	}

	fields := []zap.Field{
		zap.String("operation", call.Operation),
		zap.String("transport", call.Transport),
		zap.String("outcome", result),
		zap.Duration("latency", latency),
	}
	if err != nil {
		d.logger.Warn("operation failed", append(fields, zap.Error(err))...)
	} else {
		d.logger.Info("operation handled", fields...)
	}

	d.writer.Write(&storage.OperationEvent{
		RequestID:    uuid.New().String(),
		Timestamp:    start,
		Operation:    call.Operation,
		ClientID:     call.ClientID,
		Transport:    call.Transport,
		Mutating:     policy.IsMutating(call.Operation),
		PolicyMode:   d.guard.Mode(),
		Outcome:      result,
		Detail:       detail,
		RowsAffected: out.rowsAffected,
		RowsReturned: clampInt32(out.rowsReturned),
		LatencyMs:    float32(float64(latency) / float64(time.Millisecond)),
	})
}

func (d *Dispatcher) listTables(ctx context.Context, args map[string]any) (outcome, error) {
	schemas, err := stringListArg(args, "parameters")
	if err != nil {
		return outcome{}, err
	}
	rows, err := d.exec.Query(ctx, sqlbuild.ListTables(schemas))
	if err != nil {
		return outcome{}, err
	}
	return outcome{text: formatTables(rows), rowsReturned: len(rows)}, nil
}

func (d *Dispatcher) describeTable(ctx context.Context, args map[string]any) (outcome, error) {
	table, err := stringArg(args, "tableName")
	if err != nil {
		return outcome{}, err
	}
	stmt, err := sqlbuild.DescribeTable(table)
	if err != nil {
		return outcome{}, err
	}
	rows, err := d.exec.Query(ctx, stmt)
	if err != nil {
		return outcome{}, err
	}
	return outcome{text: formatColumns(table, rows), rowsReturned: len(rows)}, nil
}

func (d *Dispatcher) readData(ctx context.Context, args map[string]any) (outcome, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return outcome{}, err
	}
	stmt, err := sqlbuild.Read(query)
	if err != nil {
		return outcome{}, err
	}
	rows, err := d.exec.Query(ctx, stmt)
	if err != nil {
		return outcome{}, err
	}
	text, err := formatRows(rows)
	if err != nil {
		return outcome{}, err
	}
	return outcome{text: text, rowsReturned: len(rows)}, nil
}

func (d *Dispatcher) insertData(ctx context.Context, args map[string]any) (outcome, error) {
	table, err := stringArg(args, "tableName")
	if err != nil {
		return outcome{}, err
	}
	rows, err := rowsArg(args, "data")
	if err != nil {
		return outcome{}, err
	}
	stmts, err := sqlbuild.Insert(table, rows)
	if err != nil {
		return outcome{}, err
	}
	n, err := d.exec.Exec(ctx, stmts...)
	if err != nil {
		return outcome{}, err
	}
	return outcome{text: fmt.Sprintf("Inserted %d record(s)", len(stmts)), rowsAffected: n}, nil
}

func (d *Dispatcher) updateData(ctx context.Context, args map[string]any) (outcome, error) {
	table, err := stringArg(args, "tableName")
	if err != nil {
		return outcome{}, err
	}
	updates, err := objectArg(args, "updates")
	if err != nil {
		return outcome{}, err
	}
	where, err := stringArg(args, "whereClause")
	if err != nil {
		return outcome{}, err
	}
	stmt, err := sqlbuild.Update(table, updates, where)
	if err != nil {
		return outcome{}, err
	}
	n, err := d.exec.Exec(ctx, stmt)
	if err != nil {
		return outcome{}, err
	}
	return outcome{text: fmt.Sprintf("Updated %d record(s)", n), rowsAffected: n}, nil
}

func (d *Dispatcher) createTable(ctx context.Context, args map[string]any) (outcome, error) {
	table, err := stringArg(args, "tableName")
	if err != nil {
		return outcome{}, err
	}
	cols, err := columnDefsArg(args, "columns")
	if err != nil {
		return outcome{}, err
	}
	stmt, err := sqlbuild.CreateTable(table, cols)
	if err != nil {
		return outcome{}, err
	}
	if _, err := d.exec.Exec(ctx, stmt); err != nil {
		return outcome{}, err
	}
	return outcome{text: fmt.Sprintf("Table '%s' created successfully", table)}, nil
}

func (d *Dispatcher) createIndex(ctx context.Context, args map[string]any) (outcome, error) {
	table, err := stringArg(args, "tableName")
	if err != nil {
		return outcome{}, err
	}
	index, err := stringArg(args, "indexName")
	if err != nil {
		return outcome{}, err
	}
	cols, err := stringListArg(args, "columns")
	if err != nil {
		return outcome{}, err
	}
	unique, err := boolArg(args, "unique", false)
	if err != nil {
		return outcome{}, err
	}
	stmt, err := sqlbuild.CreateIndex(table, index, cols, unique)
	if err != nil {
		return outcome{}, err
	}
	if _, err := d.exec.Exec(ctx, stmt); err != nil {
		return outcome{}, err
	}
	return outcome{text: fmt.Sprintf("Index '%s' created successfully", index)}, nil
}

func (d *Dispatcher) dropTable(ctx context.Context, args map[string]any) (outcome, error) {
	table, err := stringArg(args, "tableName")
	if err != nil {
		return outcome{}, err
	}
	stmt, err := sqlbuild.DropTable(table)
	if err != nil {
		return outcome{}, err
	}
	if _, err := d.exec.Exec(ctx, stmt); err != nil {
		return outcome{}, err
	}
	return outcome{text: fmt.Sprintf("Table '%s' dropped successfully", table)}, nil
}

// clampInt32 saturates n to the event column's range.
func clampInt32(n int) int32 {
	switch {
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < math.MinInt32:
		return math.MinInt32
	}
	return int32(n)
}
