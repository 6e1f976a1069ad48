package conf

import (
	"bytes"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/shoppinglist/internal/errors"
)

// TemplateFile is the committed example config.
const TemplateFile = "config.template.yaml"

const templateHeader = `# Configuration template.
# Copy this file to config.yaml and fill in your values.
# Never commit config.yaml to version control.
`

// ErrFileExists is returned by WriteTemplate when the target exists and
// overwrite is false.
var ErrFileExists = errors.NewStd("file already exists")

// MarshalTemplate renders Template() as commented YAML.
func MarshalTemplate() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(templateHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Template()); err != nil {
		return nil, errors.Newf("encode config template: %w", err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTemplate writes the config template to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.Newf("%s: %w", path, ErrFileExists).
				Component("conf").
				Category(errors.CategoryFileIO).
				Build()
		}
	}

	data, err := MarshalTemplate()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Newf("create %s: %w", dir, err).
				Component("conf").
				Category(errors.CategoryFileIO).
				Build()
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // template holds no secrets
		return errors.Newf("write %s: %w", path, err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Build()
	}
	return nil
}
