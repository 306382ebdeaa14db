package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/coachcal/coachcal/internal/trainees"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) authedRequest(
	ctx context.Context, t *testing.T, token, method, path string, body []byte,
) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, method, serverEndpoint+path, bytes.NewBuffer(body))
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-COACHCAL-TOKEN", token)

	resp, err := s.httpClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (s *IntegrationTestSuite) TestTrainees_CRUD() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	token := doLogin(ctx, t)

	// add
	addBody := []byte(`{
		"fullName": "דנה כהן",
		"countingMethod": "card_ticket",
		"cardSessionsTotal": 10
	}`)
	resp := s.authedRequest(ctx, t, token, "POST", "/trainee", addBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var added trainees.Trainee
	require.NoError(t, json.Unmarshal(respBytes, &added))
	require.NotZero(t, added.ID)
	assert.Equal(t, "דנה כהן", added.FullName)
	assert.Equal(t, trainees.CardTicket, added.CountingMethod)
	assert.True(t, added.IsActive)

	// get
	resp = s.authedRequest(ctx, t, token, "GET", fmt.Sprintf("/trainee/%d", added.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	respBytes, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var fetched trainees.Trainee
	require.NoError(t, json.Unmarshal(respBytes, &fetched))
	assert.Equal(t, added.ID, fetched.ID)

	// update
	updateBody := []byte(`{
		"fullName": "דנה כהן",
		"countingMethod": "card_ticket",
		"cardSessionsTotal": 10,
		"cardSessionsUsed": 4
	}`)
	resp = s.authedRequest(ctx, t, token, "PUT", fmt.Sprintf("/trainee/%d", added.ID), updateBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	respBytes, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var updated trainees.Trainee
	require.NoError(t, json.Unmarshal(respBytes, &updated))
	assert.Equal(t, 4, updated.CardSessionsUsed)

	// list
	resp = s.authedRequest(ctx, t, token, "GET", "/trainee", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	respBytes, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var listed []trainees.Trainee
	require.NoError(t, json.Unmarshal(respBytes, &listed))
	require.NotEmpty(t, listed)

	// deactivate
	resp = s.authedRequest(ctx, t, token, "DELETE", fmt.Sprintf("/trainee/%d", added.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// deactivated trainee disappears from the active list
	resp = s.authedRequest(ctx, t, token, "GET", "/trainee", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	respBytes, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	listed = nil
	require.NoError(t, json.Unmarshal(respBytes, &listed))
	for _, trainee := range listed {
		assert.NotEqual(t, added.ID, trainee.ID)
	}
}

func (s *IntegrationTestSuite) TestTrainees_Unauthorized() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", serverEndpoint+"/trainee", nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")

	resp, err := s.httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
