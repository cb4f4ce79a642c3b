package agent

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Output types.
const (
	OutputCOSOP = "cosop"
	OutputPCN   = "pcn"
	OutputPDR   = "pdr"
)

//go:embed templates/*.md
var templates embed.FS

// TemplateName returns the template file name for an output type.
// Unknown types fall back to the COSOP template.
func TemplateName(outputType string) string {
	switch outputType {
	case OutputPCN, OutputPDR:
		return outputType + "_template.md"
	default:
		return OutputCOSOP + "_template.md"
	}
}

// Template returns the document template for outputType. A file with the same
// name under assetsDir takes precedence over the built-in one.
func Template(outputType, assetsDir string) (string, error) {
	name := TemplateName(outputType)
	if assetsDir != "" {
		data, err := os.ReadFile(filepath.Join(assetsDir, name))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read template %s: %w", name, err)
		}
	}
	data, err := templates.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("read built-in template %s: %w", name, err)
	}
	return string(data), nil
}
