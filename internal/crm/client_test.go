package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListDeals(t *testing.T) {
	var gotToken, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("Api-Token")
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"deals": [
				{"id": "101", "group": "8", "stage": "43", "title": "Lua de mel", "contact": "55"},
				{"id": 102, "group": "8", "stage": "53", "title": "Euro trip", "contact": "56"}
			],
			"meta": {"total": "2"}
		}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-token", 5*time.Second)
	deals, total, err := client.ListDeals(context.Background(), "8", 100, 0)
	require.NoError(t, err)

	assert.Equal(t, "secret-token", gotToken)
	assert.Contains(t, gotQuery, "limit=100")
	assert.Contains(t, gotQuery, "offset=0")

	assert.Equal(t, 2, total)
	require.Len(t, deals, 2)
	assert.Equal(t, "101", deals[0].ID)
	assert.Equal(t, "8", deals[0].PipelineID)
	assert.Equal(t, "43", deals[0].StageID)
	// Numeric ids normalize to strings.
	assert.Equal(t, "102", deals[1].ID)
}

func TestGetContact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3/contacts/55", r.URL.Path)
		w.Write([]byte(`{"contact": {"id": "55", "email": "ana@example.com", "phone": "+5511999"}}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "t", 5*time.Second)
	contact, err := client.GetContact(context.Background(), "55")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", contact.Email)
	assert.Equal(t, "+5511999", contact.Phone)
}

func TestUpdateDealStage(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/3/deals/101", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"deal": {"id": "101", "stage": "53"}}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "t", 5*time.Second)
	resp, err := client.UpdateDealStage(context.Background(), "101", "53")
	require.NoError(t, err)

	deal := gotBody["deal"].(map[string]any)
	assert.Equal(t, "53", deal["stage"])
	assert.Contains(t, resp, `"stage": "53"`)
}

func TestAPIError_IncludesExcerpt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"title":"stage does not exist"}]}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "t", 5*time.Second)
	_, err := client.UpdateDealStage(context.Background(), "101", "999")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "stage does not exist")
}

func TestAPIError_ExcerptBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	client := New(srv.URL, "t", 5*time.Second)
	_, err := client.GetDeal(context.Background(), "101")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Len(t, apiErr.Body, 512)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := New(srv.URL, "t", 50*time.Millisecond)
	_, _, err := client.ListDeals(context.Background(), "8", 10, 0)
	assert.Error(t, err)
}
