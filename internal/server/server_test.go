package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redline/internal/job"
	"redline/internal/pipeline"
	"redline/internal/playbook"
	"redline/internal/prompt"
)

// scriptedClient answers mapping calls with a fixed classification and
// fails everything else.
type scriptedClient struct {
	mappingJSON string
	err         error
}

func (c *scriptedClient) Complete(ctx context.Context, p string) (string, error) {
	return c.CompleteWithSystem(ctx, "", p)
}

func (c *scriptedClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	switch system {
	case prompt.MappingSystem:
		return c.mappingJSON, nil
	case prompt.SecondPassSystem:
		return `{"results": []}`, nil
	case prompt.AmendmentSystem:
		return `{"noChanges": true, "reason": "already conforms"}`, nil
	}
	return "", fmt.Errorf("unexpected system prompt")
}

func newTestServer(client *scriptedClient) (*Server, *job.Store) {
	jobs := job.NewStore()
	pipe := pipeline.New(client, nil, pipeline.DefaultConfig())
	lib := playbook.NewLibrary()
	lib.Replace([]*playbook.Playbook{{Name: "gdpr"}, {Name: "ccpa"}})
	return New(pipe, jobs, lib, nil), jobs
}

func postJSON(t *testing.T, srv http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

const mapRequestBody = `{
	"structure": [
		{"sectionNumber": "1.", "sectionHeading": "Definitions", "text": "defined terms", "level": 1},
		{"sectionNumber": "2.", "sectionHeading": "Confidentiality", "text": "confidentiality text", "level": 1}
	],
	"rules": [{"id": "r1", "content": "notice obligations"}]
}`

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(&scriptedClient{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestServer_Map(t *testing.T) {
	srv, jobs := newTestServer(&scriptedClient{
		mappingJSON: `{"results": [{"ruleId": "r1", "status": "mapped", "locations": ["2."]}]}`,
	})

	rec := postJSON(t, srv, "/v1/map", mapRequestBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		JobID           string `json:"jobId"`
		ProcessingOrder []string `json:"processingOrder"`
		RuleStatus      []struct {
			RuleID string `json:"ruleId"`
			Status string `json:"status"`
		} `json:"ruleStatus"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.JobID)
	assert.Equal(t, []string{"2."}, body.ProcessingOrder)
	require.Len(t, body.RuleStatus, 1)
	assert.Equal(t, "mapped", body.RuleStatus[0].Status)

	t.Run("job completed", func(t *testing.T) {
		j, ok := jobs.Get(body.JobID)
		require.True(t, ok)
		assert.Equal(t, job.StatusCompleted, j.Status)
	})
}

func TestServer_MapValidation(t *testing.T) {
	srv, _ := newTestServer(&scriptedClient{})

	t.Run("missing rules", func(t *testing.T) {
		rec := postJSON(t, srv, "/v1/map", `{"structure": [{"sectionNumber": "1."}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "structure and rules are required")
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := postJSON(t, srv, "/v1/map", `{"structure": [`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid request body")
	})
}

func TestServer_MapPipelineFailure(t *testing.T) {
	srv, _ := newTestServer(&scriptedClient{err: fmt.Errorf("provider down")})

	rec := postJSON(t, srv, "/v1/map", mapRequestBody)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "provider down")
}

func TestServer_Amend(t *testing.T) {
	srv, _ := newTestServer(&scriptedClient{
		mappingJSON: `{"results": [{"ruleId": "r1", "status": "mapped", "locations": ["2."]}]}`,
	})

	rec := postJSON(t, srv, "/v1/amend", mapRequestBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		JobID      string `json:"jobId"`
		Amendments []struct {
			SectionNumber string `json:"sectionNumber"`
			Success       bool   `json:"success"`
		} `json:"amendments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Amendments, 1)
	assert.Equal(t, "2.", body.Amendments[0].SectionNumber)
	assert.True(t, body.Amendments[0].Success)
}

func TestServer_AmendValidation(t *testing.T) {
	srv, _ := newTestServer(&scriptedClient{})
	rec := postJSON(t, srv, "/v1/amend", `{"rules": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "structure is required")
}

func TestServer_Jobs(t *testing.T) {
	srv, jobs := newTestServer(&scriptedClient{})

	t.Run("unknown id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/jobs/does-not-exist", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("known id", func(t *testing.T) {
		id := jobs.Create("map")
		req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var j job.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &j))
		assert.Equal(t, id, j.ID)
		assert.Equal(t, job.StatusRunning, j.Status)
	})
}

func TestServer_Playbooks(t *testing.T) {
	srv, _ := newTestServer(&scriptedClient{})
	req := httptest.NewRequest(http.MethodGet, "/v1/playbooks", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["ccpa", "gdpr"]`, rec.Body.String())
}

func TestServer_PlaybooksWithoutLibrary(t *testing.T) {
	srv := New(pipeline.New(&scriptedClient{}, nil, pipeline.DefaultConfig()), job.NewStore(), nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/playbooks", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
