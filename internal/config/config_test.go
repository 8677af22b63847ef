package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"speedd/internal/config"
)

func TestParseCLIDefaults(t *testing.T) {
	cli, err := config.ParseCLI(nil)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cli.Address)
	require.Equal(t, 8080, cli.Port)
}

func TestParseCLIOverrides(t *testing.T) {
	cli, err := config.ParseCLI([]string{"--address", "127.0.0.1", "--port", "9999"})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cli.Address)
	require.Equal(t, 9999, cli.Port)
}

func TestParseCLIRejectsUnknownFlag(t *testing.T) {
	_, err := config.ParseCLI([]string{"--bogus"})
	require.Error(t, err)
}
