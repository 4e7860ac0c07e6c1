package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.Error(t, d.UnmarshalText([]byte("not-a-duration")))
	require.Error(t, d.UnmarshalText([]byte("-5s")), "negative durations are rejected")
}

func TestDuration_MarshalRoundTrip(t *testing.T) {
	d := Duration(45 * time.Second)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "45s", string(text))

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"45s"`, string(data))
}
