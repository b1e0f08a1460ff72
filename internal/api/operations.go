package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/triage-ai/sqlgate/internal/auth"
	"github.com/triage-ai/sqlgate/internal/catalog"
	"github.com/triage-ai/sqlgate/internal/dispatch"
)

// maxBodyBytes matches the gRPC transport's message limit.
const maxBodyBytes = 4 << 20

// ErrorResp is the body of every non-2xx response.
type ErrorResp struct {
	Detail string `json:"detail"`
}

// ListOperationsResp is the body of GET /v1/operations.
type ListOperationsResp struct {
	Operations []catalog.Descriptor `json:"operations"`
}

// CallOperationResp is the body of POST /v1/operations/{name}. Operation
// failures are reported here with IsError set and a 200 status.
type CallOperationResp struct {
	Text    string `json:"text"`
	IsError bool   `json:"is_error"`
}

// handleListOperations implements GET /v1/operations.
func (d *Dependencies) handleListOperations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ListOperationsResp{Operations: d.Dispatcher.Operations()})
}

// handleCallOperation implements POST /v1/operations/{name}. The body is
// the argument object; an empty body means no arguments.
func (d *Dependencies) handleCallOperation(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResp{Detail: "Request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Failed to read body"})
		return
	}

	args, err := dispatch.DecodeArguments(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Body must be a JSON object"})
		return
	}

	res := d.Dispatcher.Handle(r.Context(), dispatch.Call{
		Operation: r.PathValue("name"),
		Arguments: args,
		ClientID:  auth.ClientID(r.Context()),
		Transport: "http",
	})
	writeJSON(w, http.StatusOK, CallOperationResp{Text: res.Text, IsError: res.IsError})
}
