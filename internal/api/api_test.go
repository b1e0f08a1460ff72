package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/triage-ai/sqlgate/internal/auth"
	"github.com/triage-ai/sqlgate/internal/catalog"
	"github.com/triage-ai/sqlgate/internal/dispatch"
	"github.com/triage-ai/sqlgate/internal/executor"
	"github.com/triage-ai/sqlgate/internal/policy"
	"github.com/triage-ai/sqlgate/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testKey = "sgk_http_test_key"

type sqlmockProvider struct {
	db *sql.DB
}

func (p *sqlmockProvider) Acquire(ctx context.Context) (*executor.Conn, error) {
	return executor.NewConn(ctx, p.db)
}

func newTestRouter(t *testing.T, readOnly bool, logger *zap.Logger) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	cat, err := catalog.New()
	require.NoError(t, err)

	d := dispatch.New(cat, policy.New(readOnly),
		executor.New(&sqlmockProvider{db: db}, time.Second, logger), storage.NewLogWriter(logger), logger)
	return NewRouter(&Dependencies{
		Dispatcher: d,
		Auth:       auth.NewStaticAuthenticator(testKey),
		Logger:     logger,
	}), mock
}

func do(h http.Handler, method, path, body, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz_NoAuth(t *testing.T) {
	h, _ := newTestRouter(t, false, zap.NewNop())
	rec := do(h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListOperations(t *testing.T) {
	h, _ := newTestRouter(t, true, zap.NewNop())
	rec := do(h, http.MethodGet, "/v1/operations", "", testKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListOperationsResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Operations, 3)
	assert.Equal(t, "list_table", resp.Operations[0].Name)
}

func TestAuthRequired(t *testing.T) {
	h, _ := newTestRouter(t, false, zap.NewNop())

	tests := []struct {
		name string
		key  string
	}{
		{"missing", ""},
		{"wrong product", "tsk_some_other_key"},
		{"not listed", "sgk_unknown_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodGet, "/v1/operations", "", tt.key)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			rec = do(h, http.MethodPost, "/v1/operations/list_table", "{}", tt.key)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestCallOperation_Update(t *testing.T) {
	h, mock := newTestRouter(t, false, zap.NewNop())
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE [orders] SET [shipped] = @p1 WHERE id = 9").
		WithArgs(true).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	rec := do(h, http.MethodPost, "/v1/operations/update_data",
		`{"tableName":"orders","updates":{"shipped":true},"whereClause":"id = 9"}`, testKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CallOperationResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, CallOperationResp{Text: "Updated 1 record(s)"}, resp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallOperation_WideIntegerExact(t *testing.T) {
	h, mock := newTestRouter(t, false, zap.NewNop())
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE [accounts] SET [balance] = @p1 WHERE id = 1").
		WithArgs(int64(9007199254740993)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	rec := do(h, http.MethodPost, "/v1/operations/update_data",
		`{"tableName":"accounts","updates":{"balance":9007199254740993},"whereClause":"id = 1"}`, testKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CallOperationResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, CallOperationResp{Text: "Updated 1 record(s)"}, resp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallOperation_EmptyBodyMeansNoArguments(t *testing.T) {
	h, mock := newTestRouter(t, false, zap.NewNop())
	mock.ExpectQuery("SELECT TABLE_SCHEMA, TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_SCHEMA, TABLE_NAME").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_SCHEMA", "TABLE_NAME"}).AddRow("dbo", "orders"))
	mock.ExpectClose()

	rec := do(h, http.MethodPost, "/v1/operations/list_table", "", testKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CallOperationResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dbo.orders", resp.Text)
}

func TestCallOperation_FailureIs200WithIsError(t *testing.T) {
	h, _ := newTestRouter(t, true, zap.NewNop())

	rec := do(h, http.MethodPost, "/v1/operations/create_index",
		`{"tableName":"t","indexName":"ix","columns":["a"]}`, testKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CallOperationResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsError)
	assert.Contains(t, resp.Text, "create_index: policy_violation")
}

func TestCallOperation_BadBody(t *testing.T) {
	h, _ := newTestRouter(t, false, zap.NewNop())

	for _, body := range []string{`[1,2]`, `{"tableName":`, `"text"`, `{"a":1} {}`} {
		rec := do(h, http.MethodPost, "/v1/operations/describe_table", body, testKey)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestCallOperation_BodyTooLarge(t *testing.T) {
	h, _ := newTestRouter(t, false, zap.NewNop())
	body := `{"query":"SELECT '` + strings.Repeat("x", maxBodyBytes) + `'"}`

	rec := do(h, http.MethodPost, "/v1/operations/read_data", body, testKey)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRequestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h, _ := newTestRouter(t, false, zap.New(core))

	do(h, http.MethodGet, "/v1/operations", "", "")

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/v1/operations", fields["path"])
	assert.Equal(t, int64(http.StatusUnauthorized), fields["status"])
}
