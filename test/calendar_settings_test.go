package test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/coachcal/coachcal/internal/calendar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) TestCalendarSettings() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	token := doLogin(ctx, t)

	// a trainer without stored settings gets the defaults
	resp := s.authedRequest(ctx, t, token, "GET", "/calendar/settings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var settings calendar.SyncSettings
	require.NoError(t, json.Unmarshal(respBytes, &settings))
	assert.False(t, settings.AutoSyncEnabled)
	assert.Equal(t, calendar.DirectionBidirectional, settings.SyncDirection)
	assert.Equal(t, calendar.FrequencyHourly, settings.SyncFrequency)

	// store custom settings
	updateBody := []byte(`{
		"autoSyncEnabled": true,
		"syncDirection": "to_google",
		"syncFrequency": "daily",
		"defaultCalendarId": "primary"
	}`)
	resp = s.authedRequest(ctx, t, token, "PUT", "/calendar/settings", updateBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = s.authedRequest(ctx, t, token, "GET", "/calendar/settings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	respBytes, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, json.Unmarshal(respBytes, &settings))
	assert.True(t, settings.AutoSyncEnabled)
	assert.Equal(t, calendar.DirectionToGoogle, settings.SyncDirection)
	assert.Equal(t, calendar.FrequencyDaily, settings.SyncFrequency)

	// invalid frequency rejected
	badBody := []byte(`{
		"autoSyncEnabled": true,
		"syncDirection": "to_google",
		"syncFrequency": "weekly",
		"defaultCalendarId": "primary"
	}`)
	resp = s.authedRequest(ctx, t, token, "PUT", "/calendar/settings", badBody)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func (s *IntegrationTestSuite) TestCalendarStatus_NotConnected() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	token := doLogin(ctx, t)

	resp := s.authedRequest(ctx, t, token, "GET", "/calendar/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var status calendar.ConnectionStatus
	require.NoError(t, json.Unmarshal(respBytes, &status))
	assert.False(t, status.Connected)
	assert.Empty(t, status.CalendarID)
}
