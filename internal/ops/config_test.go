package ops

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/decimal"

	"omes/internal/schema"
)

const sampleConfig = `{
  "purchasingPower": "250000.50",
  "priceScale": 2,
  "instruments": [
    {"symbol": "FOO-C100", "symbolId": 1, "underlyingId": 10, "initialPosition": 50},
    {"symbol": "FOO-P100", "symbolId": 2, "underlyingId": 10, "initialPosition": 0}
  ],
  "throttles": [
    {"numThrottles": 100, "windowMs": 1000}
  ],
  "underlyingThrottle": {"numThrottles": 20, "windowMs": 500},
  "dispatch": {"queueCapacity": 256, "maxBatchSize": 16},
  "requestTtlMs": 3000,
  "postgres": {"host": "db.internal", "port": 5433, "user": "omes", "database": "omes"},
  "profile": {"serverAddress": ""}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadResolvesScaledValues(t *testing.T) {
	loaded, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, schema.Notional(25000050), loaded.Service.PurchasingPower)
	require.Len(t, loaded.Service.Instruments, 2)
	assert.Equal(t, schema.Quantity(50), loaded.Service.Instruments[0].InitialPosition)
	assert.Equal(t, 500*time.Millisecond, loaded.Service.UnderlyingThrottle.Window)
	assert.Equal(t, 3*time.Second, loaded.Service.DefaultRequestTTL)
	assert.Equal(t, 256, loaded.Dispatch.QueueCapacity)
	assert.Equal(t, 16, loaded.Dispatch.MaxBatchSize)
	require.Len(t, loaded.Dispatch.Throttles, 1)
	assert.Equal(t, time.Second, loaded.Dispatch.Throttles[0].Window)
	assert.Equal(t, "db.internal", loaded.Postgres.Host)
	assert.Equal(t, 5433, loaded.Postgres.Port)
	assert.Equal(t, "omes", loaded.Profile.ApplicationName)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OMES_POSTGRES_DSN", "postgres://u:p@elsewhere:5432/omes")
	t.Setenv("OMES_POSTGRES_PASSWORD", "secret")
	t.Setenv("OMES_PYROSCOPE_ADDR", "http://pyroscope:4040")
	t.Setenv("OMES_QUEUE_CAPACITY", "64")

	loaded, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@elsewhere:5432/omes", loaded.Postgres.ConnString)
	assert.Equal(t, "secret", loaded.Postgres.Password)
	assert.Equal(t, "http://pyroscope:4040", loaded.Profile.ServerAddress)
	assert.Equal(t, 64, loaded.Dispatch.QueueCapacity)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no instruments", `{"purchasingPower":"1","priceScale":0,"instruments":[],"throttles":[{"numThrottles":1,"windowMs":1}]}`},
		{"duplicate symbolId", `{"purchasingPower":"1","priceScale":0,"instruments":[
			{"symbol":"A","symbolId":1},{"symbol":"B","symbolId":1}],"throttles":[{"numThrottles":1,"windowMs":1}]}`},
		{"scale out of range", `{"purchasingPower":"1","priceScale":13,"instruments":[{"symbol":"A","symbolId":1}],"throttles":[{"numThrottles":1,"windowMs":1}]}`},
		{"no throttles", `{"purchasingPower":"1","priceScale":0,"instruments":[{"symbol":"A","symbolId":1}],"throttles":[]}`},
		{"zero window", `{"purchasingPower":"1","priceScale":0,"instruments":[{"symbol":"A","symbolId":1}],"throttles":[{"numThrottles":1,"windowMs":0}]}`},
		{"zero power", `{"purchasingPower":"0","priceScale":0,"instruments":[{"symbol":"A","symbolId":1}],"throttles":[{"numThrottles":1,"windowMs":1}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Fatalf("bad config accepted")
			}
		})
	}
}

func TestScaledInt(t *testing.T) {
	cases := []struct {
		in     string
		digits int
		want   int64
	}{
		{"100", 2, 10000},
		{"100.5", 2, 10050},
		{"100.567", 2, 10056},
		{"0.01", 2, 1},
		{"-3.5", 1, -35},
		{"42", 0, 42},
	}
	for _, tc := range cases {
		var d decimal.Decimal
		if err := json.Unmarshal([]byte(`"`+tc.in+`"`), &d); err != nil {
			t.Fatalf("parse %s: %v", tc.in, err)
		}
		got, err := scaledInt(d, tc.digits)
		if err != nil {
			t.Fatalf("scaledInt(%s, %d): %v", tc.in, tc.digits, err)
		}
		if got != tc.want {
			t.Fatalf("scaledInt(%s, %d) = %d, want %d", tc.in, tc.digits, got, tc.want)
		}
	}
}
