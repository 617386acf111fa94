package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseClickHouseURL(t *testing.T) {
	cases := []struct {
		raw    string
		addr   string
		host   string
		secure bool
	}{
		{"localhost", "localhost:9000", "localhost", false},
		{"localhost:9000", "localhost:9000", "localhost", false},
		{"clickhouse://ch.internal:19000/haruup", "ch.internal:19000", "ch.internal", false},
		{"https://ch.example.com", "ch.example.com:9440", "ch.example.com", true},
		{"tcp://ch.example.com?secure=true", "ch.example.com:9440", "ch.example.com", true},
		{"[::1]:9000", "[::1]:9000", "::1", false},
	}
	for _, tc := range cases {
		ep, err := parseClickHouseURL(tc.raw)
		require.NoError(t, err, tc.raw)
		require.Equal(t, tc.addr, ep.addr, tc.raw)
		require.Equal(t, tc.host, ep.host, tc.raw)
		require.Equal(t, tc.secure, ep.secure, tc.raw)
	}

	for _, bad := range []string{"", "   ", "tcp://:9000"} {
		_, err := parseClickHouseURL(bad)
		require.Error(t, err, bad)
	}
}

func TestClickhouseTLS(t *testing.T) {
	cfg, err := clickhouseTLS("ch.example.com", "")
	require.NoError(t, err)
	require.Equal(t, "ch.example.com", cfg.ServerName)
	require.Nil(t, cfg.RootCAs)

	_, err = clickhouseTLS("ch.example.com", filepath.Join(t.TempDir(), "missing.pem"))
	require.Error(t, err)

	notPEM := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(notPEM, []byte("not a certificate"), 0o600))
	_, err = clickhouseTLS("ch.example.com", notPEM)
	require.ErrorContains(t, err, "no certificates")
}
