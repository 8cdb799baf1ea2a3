package cli

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"text/template"

	"github.com/joho/godotenv"
)

// TemplateContext is the data an action file template is rendered with.
type TemplateContext struct {
	ENV  map[string]string
	VARS map[string]string
}

var missingKeyRegex = regexp.MustCompile(`map has no entry for key "(.*?)"`)

// PreprocessActionFile replaces {{ .ENV.NAME }} placeholders with values from
// the environment or a .env file in the working directory, and
// {{ .VARS.NAME }} placeholders with values given on the command line.
func PreprocessActionFile(input []byte, vars map[string]string) ([]byte, error) {
	_ = godotenv.Load() // no error if .env doesn't exist

	envMap := map[string]string{}
	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			envMap[k] = v
		}
	}
	if vars == nil {
		vars = map[string]string{}
	}

	tmpl, err := template.New("actions").Option("missingkey=error").Parse(string(input))
	if err != nil {
		return nil, fmt.Errorf("template error: %w", err)
	}

	var output bytes.Buffer
	if err := tmpl.Execute(&output, TemplateContext{ENV: envMap, VARS: vars}); err != nil {
		if matches := missingKeyRegex.FindStringSubmatch(err.Error()); len(matches) == 2 {
			if strings.Contains(err.Error(), ".VARS") {
				return nil, fmt.Errorf("missing variable: %s (pass it with --set %s=...)", matches[1], matches[1])
			}
			return nil, fmt.Errorf("missing environment variable: %s (set it in your shell or .env file)", matches[1])
		}
		return nil, fmt.Errorf("template error: %w", err)
	}

	return output.Bytes(), nil
}
