package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusReportsDatasetState(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Catalog: newFakeCatalog()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var body struct {
		Database struct {
			SizeBytes int64 `json:"size_bytes"`
		} `json:"database"`
		Tables []struct {
			TableName string `json:"table_name"`
			RowCount  int64  `json:"row_count"`
		} `json:"tables"`
		IngestRuns []struct {
			TableName string `json:"table_name"`
			Status    string `json:"status"`
			Rows      int64  `json:"rows"`
		} `json:"ingest_runs"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body.Database.SizeBytes != 40960 {
		t.Fatalf("size_bytes = %d", body.Database.SizeBytes)
	}
	if len(body.Tables) != 1 || body.Tables[0].RowCount != 2 {
		t.Fatalf("tables = %+v", body.Tables)
	}
	if len(body.IngestRuns) != 1 || body.IngestRuns[0].Status != "completed" {
		t.Fatalf("ingest_runs = %+v", body.IngestRuns)
	}
}

func TestStatusWithoutCatalogReturns501(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}
