package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginChecker_IsLogged(t *testing.T) {
	db, mock := redismock.NewClientMock()

	loginChecker := NewLoginChecker(time.Hour, db)
	require.NotNil(t, loginChecker)

	ctx := context.Background()

	mock.ExpectGet(sessionKeyPrefix + "invalid token").SetErr(redis.Nil)
	isLogged, err := loginChecker.IsLogged(ctx, "invalid token")
	require.Equal(t, "redis: nil", err.Error())
	assert.False(t, isLogged)

	mock.ExpectGet(sessionKeyPrefix + "invalid token").SetErr(redis.Nil)
	isLogged, err = loginChecker.IsLogged(ctx, "invalid token")
	require.Equal(t, "redis: nil", err.Error())
	assert.False(t, isLogged) // idempotent

	testToken := "test-token"
	now := time.Now()
	sessionKey := sessionKeyPrefix + testToken

	mock.ExpectGet(sessionKey).SetVal(fmt.Sprintf("%d", now.Unix()))
	isLogged, err = loginChecker.IsLogged(ctx, testToken)
	require.NoError(t, err)
	assert.True(t, isLogged)
	mock.ExpectGet(sessionKey).SetVal(fmt.Sprintf("%d", now.Unix()))
	isLogged, err = loginChecker.IsLogged(ctx, testToken)
	require.NoError(t, err)
	assert.True(t, isLogged) // idempotent
}

func TestLoginChecker_IsLogged_ExpiredSession(t *testing.T) {
	db, mock := redismock.NewClientMock()

	loginChecker := NewLoginChecker(time.Hour, db)

	// session created well past the TTL, the key is still in redis
	createdAt := time.Now().Add(-2 * time.Hour)
	sessionKey := sessionKeyPrefix + "stale-token"

	mock.ExpectGet(sessionKey).SetVal(fmt.Sprintf("%d", createdAt.Unix()))
	isLogged, err := loginChecker.IsLogged(context.Background(), "stale-token")
	require.NoError(t, err)
	assert.False(t, isLogged)

	mock.ExpectGet(sessionKey).SetVal("not-a-unix-timestamp")
	isLogged, err = loginChecker.IsLogged(context.Background(), "stale-token")
	require.Error(t, err)
	assert.False(t, isLogged)
}
