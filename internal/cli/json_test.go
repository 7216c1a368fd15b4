package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rileyhilliard/sitrep/internal/errors"
)

func TestWriteJSONSuccess_BasicData(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]string{"key": "value"}
	err := WriteJSONSuccess(&buf, data)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.True(t, env.Success)
	assert.Nil(t, env.Error)
	assert.NotNil(t, env.Data)

	dataMap, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "value", dataMap["key"])
}

func TestWriteJSONSuccess_ComplexData(t *testing.T) {
	var buf bytes.Buffer

	data := struct {
		Name  string   `json:"name"`
		Count int      `json:"count"`
		Items []string `json:"items"`
	}{
		Name:  "test",
		Count: 42,
		Items: []string{"a", "b", "c"},
	}

	err := WriteJSONSuccess(&buf, data)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.True(t, env.Success)
	dataMap, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "test", dataMap["name"])
	assert.Equal(t, float64(42), dataMap["count"]) // JSON numbers are float64
}

func TestWriteJSONSuccess_NilData(t *testing.T) {
	var buf bytes.Buffer

	err := WriteJSONSuccess(&buf, nil)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.True(t, env.Success)
	assert.Nil(t, env.Data)
	assert.Nil(t, env.Error)
}

func TestWriteJSONError_AllFields(t *testing.T) {
	var buf bytes.Buffer

	details := map[string]string{"container": "web"}
	err := WriteJSONError(&buf, ErrCodeDockerUnavailable, "Daemon unreachable", "Is Docker running?", details)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	assert.Nil(t, env.Data)
	require.NotNil(t, env.Error)

	assert.Equal(t, ErrCodeDockerUnavailable, env.Error.Code)
	assert.Equal(t, "Daemon unreachable", env.Error.Message)
	assert.Equal(t, "Is Docker running?", env.Error.Suggestion)

	detailsMap, ok := env.Error.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "web", detailsMap["container"])
}

func TestWriteJSONError_NoSuggestion(t *testing.T) {
	var buf bytes.Buffer

	err := WriteJSONError(&buf, ErrCodeUnknown, "Something went wrong", "", nil)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	assert.Equal(t, ErrCodeUnknown, env.Error.Code)
	assert.Empty(t, env.Error.Suggestion)
	assert.Nil(t, env.Error.Details)
}

func TestWriteJSONFromError_NilError(t *testing.T) {
	var buf bytes.Buffer

	err := WriteJSONFromError(&buf, nil)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	assert.Nil(t, env.Error)
}

func TestWriteJSONFromError_GenericError(t *testing.T) {
	var buf bytes.Buffer

	err := WriteJSONFromError(&buf, fmt.Errorf("something went wrong"))
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeUnknown, env.Error.Code)
	assert.Equal(t, "something went wrong", env.Error.Message)
}

func TestWriteJSONFromError_StructuredError(t *testing.T) {
	var buf bytes.Buffer

	sErr := errors.New(errors.ErrConfig, "Config file not found", "Run with --config")
	err := WriteJSONFromError(&buf, sErr)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeConfigNotFound, env.Error.Code)
	assert.Equal(t, "Config file not found", env.Error.Message)
	assert.Equal(t, "Run with --config", env.Error.Suggestion)
}

func TestWriteJSONFromError_WrappedStructuredError(t *testing.T) {
	var buf bytes.Buffer

	sErr := errors.New(errors.ErrSwarm, "docker service ls failed", "")
	wrapped := fmt.Errorf("listing services: %w", sErr)

	err := WriteJSONFromError(&buf, wrapped)
	require.NoError(t, err)

	var env JSONEnvelope
	err = json.Unmarshal(buf.Bytes(), &env)
	require.NoError(t, err)

	assert.Equal(t, ErrCodeSwarmFailed, env.Error.Code)
}

func TestErrorToJSON_NilReturnsNil(t *testing.T) {
	assert.Nil(t, ErrorToJSON(nil))
}

func TestErrorToJSON_GenericError(t *testing.T) {
	result := ErrorToJSON(fmt.Errorf("generic error"))

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeUnknown, result.Code)
	assert.Equal(t, "generic error", result.Message)
}

func TestErrorToJSON_CauseDetails(t *testing.T) {
	cause := &errors.ExitError{Code: 125, Stderr: "no such service"}
	result := ErrorToJSON(errors.WrapWithCode(cause, errors.ErrSwarm, "docker service scale failed", ""))

	require.NotNil(t, result)
	details, ok := result.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "exit code 125: no such service", details["cause"])
	assert.Equal(t, 125, details["exit_code"])
}

func TestErrorToJSON_AllInternalErrorCodes(t *testing.T) {
	tests := []struct {
		name         string
		internalCode string
		message      string
		wantCode     string
	}{
		{"config not found", errors.ErrConfig, "Config file not found", ErrCodeConfigNotFound},
		{"config invalid", errors.ErrConfig, "Invalid interval", ErrCodeConfigInvalid},
		{"collect", errors.ErrCollect, "Couldn't read /proc", ErrCodeCollectFailed},
		{"docker", errors.ErrDocker, "Daemon unreachable", ErrCodeDockerUnavailable},
		{"swarm", errors.ErrSwarm, "Not in a swarm", ErrCodeSwarmFailed},
		{"action", errors.ErrAction, "Couldn't restart web", ErrCodeActionFailed},
		{"exec", errors.ErrExec, "Command failed", ErrCodeCommandFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ErrorToJSON(errors.New(tt.internalCode, tt.message, ""))
			require.NotNil(t, result)
			assert.Equal(t, tt.wantCode, result.Code)
		})
	}
}

func TestErrorToJSON_ConfigNotFoundVsInvalid(t *testing.T) {
	tests := []struct {
		message  string
		wantCode string
	}{
		{"Config file not found", ErrCodeConfigNotFound},
		{"couldn't find config", ErrCodeConfigNotFound},
		{"NOT FOUND anywhere", ErrCodeConfigNotFound},
		{"Config has invalid syntax", ErrCodeConfigInvalid},
		{"Failed to parse config", ErrCodeConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			result := ErrorToJSON(errors.New(errors.ErrConfig, tt.message, ""))
			assert.Equal(t, tt.wantCode, result.Code)
		})
	}
}

func TestMapErrorCode_UnknownCode(t *testing.T) {
	assert.Equal(t, ErrCodeUnknown, mapErrorCode("SOME_UNKNOWN_CODE", "message"))
}

func TestJSONError_OmitsEmptyFields(t *testing.T) {
	je := JSONError{Code: ErrCodeUnknown, Message: "msg"}

	data, err := json.Marshal(je)
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"code"`)
	assert.Contains(t, s, `"message"`)
	assert.NotContains(t, s, `"suggestion"`)
	assert.NotContains(t, s, `"details"`)
}

func TestWriteJSONEnvelope_Formatting(t *testing.T) {
	var buf bytes.Buffer
	err := WriteJSONSuccess(&buf, map[string]string{"a": "b"})
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "\n  ", "should be indented with 2 spaces")
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")), "should end with newline")
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	data := struct {
		Name     string `yaml:"name"`
		Replicas string `yaml:"replicas"`
	}{"shop_web", "2/3"}

	require.NoError(t, WriteYAML(&buf, data))

	var back map[string]string
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "shop_web", back["name"])
	assert.Equal(t, "2/3", back["replicas"])
}

func TestErrorCodes_AreUnique(t *testing.T) {
	codes := []string{
		ErrCodeConfigNotFound,
		ErrCodeConfigInvalid,
		ErrCodeCollectFailed,
		ErrCodeDockerUnavailable,
		ErrCodeSwarmFailed,
		ErrCodeActionFailed,
		ErrCodeCommandFailed,
		ErrCodeUnknown,
	}

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate error code: %s", code)
		seen[code] = true
	}
}
