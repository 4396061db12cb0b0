package main

import (
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"
)

func TestFlags(t *testing.T) {
	t.Setenv("GEARJOB_ADDRESS", "localhost:4730")
	a := &app{}
	parser, err := kong.New(a, kong.Exit(func(int) { t.Fatalf("unexpected exit by arg parser") }))
	require.NoError(t, err)
	_, err = parser.Parse([]string{"-H", "jobs1"})
	require.NoError(t, err)
	require.Equal(t, "localhost:4730", a.Address)
	require.Equal(t, "jobs1", a.Hostname)
	require.Equal(t, time.Hour, a.Retention)

	_, err = parser.Parse([]string{"--retention", "90s", "--log-level", "WARN"})
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, a.Retention)
	require.Equal(t, "WARN", a.LogLevel.String())
}
