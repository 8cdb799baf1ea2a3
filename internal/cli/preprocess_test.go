package cli

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessActionFile(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		vars     map[string]string
		expected string
		wantErr  string
	}{
		{
			name:     "environment variable substitution",
			input:    "x: {{ .ENV.TAP_X }}",
			envVars:  map[string]string{"TAP_X": "120"},
			expected: "x: 120",
		},
		{
			name:     "command line variables",
			input:    "x: {{ .VARS.x }}\ny: {{ .VARS.y }}",
			vars:     map[string]string{"x": "10", "y": "20"},
			expected: "x: 10\ny: 20",
		},
		{
			name:     "mixed sources",
			input:    "id: {{ .ENV.FINGER }}\nx: {{ .VARS.x }}",
			envVars:  map[string]string{"FINGER": "finger1"},
			vars:     map[string]string{"x": "5"},
			expected: "id: finger1\nx: 5",
		},
		{
			name:     "value with equals sign",
			input:    "text: {{ .ENV.QUERY }}",
			envVars:  map[string]string{"QUERY": "a=b&c=d"},
			expected: "text: a=b&c=d",
		},
		{
			name:     "empty environment variable",
			input:    "text: {{ .ENV.EMPTY_VAR }}",
			envVars:  map[string]string{"EMPTY_VAR": ""},
			expected: "text: ",
		},
		{
			name:     "no template variables",
			input:    "gestures:\n  - action: release",
			expected: "gestures:\n  - action: release",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:    "missing command line variable",
			input:   "x: {{ .VARS.x }}",
			wantErr: "missing variable: x (pass it with --set x=...)",
		},
		{
			name:    "missing environment variable",
			input:   "x: {{ .ENV.WDACTL_SURELY_UNSET }}",
			wantErr: "missing environment variable: WDACTL_SURELY_UNSET",
		},
		{
			name:    "invalid template syntax",
			input:   "x: {{ .VARS.x }",
			vars:    map[string]string{"x": "1"},
			wantErr: "template error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			result, err := PreprocessActionFile([]byte(tt.input), tt.vars)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestPreprocessActionFileWithEnvFile(t *testing.T) {
	tempDir := t.TempDir()
	originalWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tempDir))
	defer os.Chdir(originalWd)

	require.NoError(t, os.WriteFile(".env", []byte("START_X=from_env_file\nSTART_Y=640\n"), 0644))
	defer os.Unsetenv("START_Y")

	// the environment wins over .env
	t.Setenv("START_X", "from_environment")

	result, err := PreprocessActionFile([]byte("x: {{ .ENV.START_X }}\ny: {{ .ENV.START_Y }}"), nil)
	require.NoError(t, err)
	assert.Equal(t, "x: from_environment\ny: 640", string(result))
}

// None of these may panic; an error is an acceptable outcome.
func TestPreprocessActionFileNoPanics(t *testing.T) {
	inputs := []string{
		strings.Repeat("{{ .VARS.v }}", 10000),
		"{{ .ENV.{{ .ENV.NESTED }}}}",
		"{{ .VARS.v | len }}",
		"{{ .ENV.INVALID-NAME }}",
		"{{ range .VARS }}{{ . }}{{ end }}",
		"{{ index .VARS \"v\" }}",
		"{{ .VARS. }}",
		"{{ .VARS.v.deeper }}",
	}
	for _, input := range inputs {
		assert.NotPanics(t, func() {
			_, _ = PreprocessActionFile([]byte(input), map[string]string{"v": "value"})
		}, input)
	}
}
