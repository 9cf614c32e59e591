// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyonggi-board/authcore/pkg/errutil"
)

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, SchemaID, schema["$id"])
	assert.Equal(t, false, schema["additionalProperties"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok, "root properties missing")
	for _, section := range []string{"database", "redis", "otp", "jwt", "session", "mail", "metrics", "log"} {
		assert.Contains(t, props, section)
	}

	otp := props["otp"].(map[string]any)["properties"].(map[string]any)
	ttl := otp["ttl"].(map[string]any)
	assert.Equal(t, "string", ttl["type"], "durations are written as strings")
	assert.Contains(t, otp, "resend_cooldown", "koanf names are used")
	assert.NotContains(t, schema, "required")
}

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "empty", body: ""},
		{name: "comments only", body: "# nothing yet\n"},
		{
			name: "full",
			body: `
database:
  url: postgres://authcore@localhost/authcore
  max_conns: 20
  max_conn_lifetime: 1h30m
otp:
  ttl: 10m
  daily_limit: 5
  time_zone: Asia/Seoul
mail:
  mode: smtp
  retries: 3
  smtp:
    host: smtp.kyonggi.ac.kr
    port: 587
    starttls: true
log:
  format: text
  level: debug
`,
		},
		{name: "unknown section", body: "cache:\n  size: 10\n", wantErr: true},
		{name: "misspelled key", body: "otp:\n  dailylimit: 3\n", wantErr: true},
		{name: "duration as number", body: "otp:\n  ttl: 600\n", wantErr: true},
		{name: "duration without unit", body: "jwt:\n  access_ttl: fifteen\n", wantErr: true},
		{name: "string for integer", body: "mail:\n  workers: many\n", wantErr: true},
		{name: "unknown mail mode", body: "mail:\n  mode: fax\n", wantErr: true},
		{name: "unknown log format", body: "log:\n  format: xml\n", wantErr: true},
		{name: "not yaml", body: "otp: [unclosed\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFile([]byte(tt.body))
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_SCHEMA_INVALID")
		})
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "otp:\n  ttl: 5m\n  dialy_limit: 3\n")

	_, err := Load(path, nil)
	errutil.AssertErrorCode(t, err, "CONFIG_SCHEMA_INVALID")
	errutil.AssertErrorContext(t, err, "path", path)
}
