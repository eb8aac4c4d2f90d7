package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookwatch/hookwatch/internal/httpclient"
)

func testClient() *httpclient.SaferClient {
	// httptest listens on loopback, so skip private-IP blocking
	return httpclient.WrapClient(&http.Client{})
}

func TestDispatchSuccess(t *testing.T) {
	var gotBody map[string]interface{}
	var gotPath, gotAccept string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer api.Close()

	d := NewDispatcher(testClient(), api.URL, "tok")
	status, err := d.Dispatch(context.Background(), DispatchRequest{
		Owner:    "acme",
		Repo:     "deploy",
		Workflow: "release.yml",
		Inputs:   map[string]string{"job_id": "j-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "/repos/acme/deploy/actions/workflows/release.yml/dispatches", gotPath)
	assert.Equal(t, "application/vnd.github+json", gotAccept)

	// ref defaults to main
	assert.Equal(t, "main", gotBody["ref"])
	inputs, ok := gotBody["inputs"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "j-1", inputs["job_id"])
}

func TestDispatchErrorCapturesBody(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"Workflow does not have workflow_dispatch trigger"}`))
	}))
	defer api.Close()

	d := NewDispatcher(testClient(), api.URL, "tok")
	status, err := d.Dispatch(context.Background(), DispatchRequest{
		Owner:    "acme",
		Repo:     "deploy",
		Workflow: "release.yml",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, err.Error(), "workflow_dispatch")
}

func TestDispatchRejectsIncompleteTarget(t *testing.T) {
	d := NewDispatcher(testClient(), "", "tok")
	_, err := d.Dispatch(context.Background(), DispatchRequest{Owner: "acme"})
	require.Error(t, err)
}

func TestDispatchCustomRef(t *testing.T) {
	var gotBody map[string]interface{}
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer api.Close()

	d := NewDispatcher(testClient(), api.URL, "")
	_, err := d.Dispatch(context.Background(), DispatchRequest{
		Owner:    "acme",
		Repo:     "deploy",
		Workflow: "release.yml",
		Ref:      "staging",
	})
	require.NoError(t, err)
	assert.Equal(t, "staging", gotBody["ref"])
}
