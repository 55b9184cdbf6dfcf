package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer x ,broken,=nokey,team=lat")
	require.Equal(t, map[string]string{"authorization": "Bearer x", "team": "lat"}, headers)
}

func TestInitDisabled(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)

	shutdown, err := Init(context.Background(), Config{ServiceName: "latd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
