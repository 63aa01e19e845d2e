package posting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/documents"
)

func newTestRouter(t *testing.T) (*chi.Mux, *Service) {
	t.Helper()
	svc, _, _ := newTestService(t, testSettings())
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r, svc
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerPostDocument(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/documents", cashSaleRequest("100"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var result PostResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, documents.StateFinalized, result.Document.State)
	require.Equal(t, "F001-00000001", result.Document.FullNumber("", 8))
	require.Equal(t, 1, result.LedgerEntries)
}

func TestHandlerPostRejectsMalformedBody(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Invalid Body")
}

func TestHandlerPostRejectsInvalidRequest(t *testing.T) {
	r, _ := newTestRouter(t)

	req := cashSaleRequest("100")
	req.CompanyID = 0
	rec := doJSON(t, r, http.MethodPost, "/documents", req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Validation Failed")
}

func TestHandlerPostDuplicateConflicts(t *testing.T) {
	r, _ := newTestRouter(t)

	req := cashSaleRequest("100")
	req.DateOnline = &testClock

	rec := doJSON(t, r, http.MethodPost, "/documents", req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/documents", req)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Duplicate Posting")
}

func TestHandlerPostBreakdownMismatch(t *testing.T) {
	r, _ := newTestRouter(t)

	req := cashSaleRequest("100")
	req.PaymentBreakdown[0].Amount = dec("90")
	rec := doJSON(t, r, http.MethodPost, "/documents", req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Validation Failed")
}

func TestHandlerShowDocument(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/documents", cashSaleRequest("100"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var posted PostResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posted))

	rec = doJSON(t, r, http.MethodGet, fmt.Sprintf("/documents/%d", posted.Document.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc documents.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, posted.Document.ID, doc.ID)
	require.Equal(t, "F001", doc.Series)

	rec = doJSON(t, r, http.MethodGet, "/documents/9999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerListDocuments(t *testing.T) {
	r, _ := newTestRouter(t)

	for i := 0; i < 3; i++ {
		req := cashSaleRequest("100")
		at := testClock.Add(time.Duration(i) * time.Minute)
		req.DateOnline = &at
		rec := doJSON(t, r, http.MethodPost, "/documents", req)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, r, http.MethodGet, "/documents?company_id=1&page=1&per_page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Documents  []documents.Document `json:"documents"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Documents, 2)
	require.Equal(t, 3, page.Pagination.Total)

	rec = doJSON(t, r, http.MethodGet, "/documents", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerDeliverCreditSale(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/documents", creditSaleRequest("250"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var posted PostResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posted))
	require.Equal(t, documents.StateToDeliver, posted.Document.State)

	path := fmt.Sprintf("/documents/%d/deliver", posted.Document.ID)
	rec = doJSON(t, r, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc documents.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, documents.StateFinalized, doc.State)

	// Delivering twice is an illegal transition.
	rec = doJSON(t, r, http.MethodPost, path, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Illegal State Transition")
}

func TestHandlerCancelDocument(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/documents", cashSaleRequest("100"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var posted PostResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posted))

	path := fmt.Sprintf("/documents/%d/cancel", posted.Document.ID)

	// Reason is mandatory.
	rec = doJSON(t, r, http.MethodPost, path, map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, path, map[string]string{"reason": "customer returned the goods"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result CancelResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.FormalNote)
	require.Equal(t, documents.StateCanceled, result.Original.State)

	// A canceled document cannot be canceled again.
	rec = doJSON(t, r, http.MethodPost, path, map[string]string{"reason": "again"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Not Cancelable")

	rec = doJSON(t, r, http.MethodPost, "/documents/404/cancel", map[string]string{"reason": "missing"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}
