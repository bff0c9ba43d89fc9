package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := SetupWithOptions(Options{Service: "walletd", Env: "test", Output: &buf})
	defer closer.Close()

	logger.Info("account accrued", slog.String("account", "u1"), MaskField("payment_address", "ravi@upi"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "account accrued", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "walletd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "u1", line["account"])
	require.Equal(t, RedactedValue, line["payment_address"])
	require.Contains(t, line, "timestamp")
}

func TestSetupMirrorsToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletd.log")
	var buf bytes.Buffer
	logger, closer := SetupWithOptions(Options{Service: "walletd", Output: &buf, File: path})
	logger.Warn("conflict")
	require.NoError(t, closer.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"message":"conflict"`)
}

func TestMaskField(t *testing.T) {
	require.Equal(t, "u1", MaskField("account", "u1").Value.String())
	require.Equal(t, RedactedValue, MaskField("utr", "123456").Value.String())
	require.Equal(t, " ", MaskField("utr", " ").Value.String())
	require.Equal(t, "credit", MaskField(" Kind ", "credit").Value.String())
	require.Equal(t, RedactedValue, MaskField("payment_address", "ravi@upi").Value.String())
}
