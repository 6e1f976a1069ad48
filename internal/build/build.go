// Package build injects the Supabase settings into the static page.
package build

import (
	"context"
	"os"
	"path/filepath"

	"github.com/labstack/gommon/bytes"

	"github.com/tphakala/shoppinglist/internal/conf"
	"github.com/tphakala/shoppinglist/internal/errors"
	"github.com/tphakala/shoppinglist/internal/logger"
)

// ErrTemplateNotFound is returned when neither the template nor a concrete
// page to derive it from exists.
var ErrTemplateNotFound = errors.NewStd("template not found")

// Options configures a build run.
type Options struct {
	TemplatePath string
	OutputPath   string
	Supabase     conf.SupabaseSettings
}

// Result describes a completed build.
type Result struct {
	OutputPath      string
	TemplatePath    string
	Bytes           int
	TemplateCreated bool
}

// Builder writes the concrete page from the template.
type Builder struct {
	log logger.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(log logger.Logger) *Builder {
	return &Builder{log: log}
}

// Run validates the settings, renders the template and overwrites the output
// file. Nothing is written when the settings are invalid.
func (b *Builder) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Supabase.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	subs := Substitutions(opts.Supabase)
	res := &Result{OutputPath: opts.OutputPath, TemplatePath: opts.TemplatePath}

	tmpl, err := os.ReadFile(opts.TemplatePath)
	switch {
	case os.IsNotExist(err):
		tmpl, err = b.deriveTemplate(opts, subs)
		if err != nil {
			return nil, err
		}
		res.TemplateCreated = true
	case err != nil:
		return nil, fileError("read template", opts.TemplatePath, err)
	}

	out, err := Render(tmpl, subs)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(opts.OutputPath, out); err != nil {
		return nil, err
	}
	res.Bytes = len(out)

	b.log.Info("build complete",
		logger.String("output", opts.OutputPath),
		logger.String("size", bytes.Format(int64(len(out)))),
		logger.Bool("template_created", res.TemplateCreated))
	return res, nil
}

// deriveTemplate creates the template from the current output page and
// persists it next to it.
func (b *Builder) deriveTemplate(opts Options, subs []Substitution) ([]byte, error) {
	current, err := os.ReadFile(opts.OutputPath)
	if os.IsNotExist(err) {
		return nil, errors.Newf("%s (and no %s to derive it from): %w",
			opts.TemplatePath, opts.OutputPath, ErrTemplateNotFound).
			Component("build").
			Category(errors.CategoryNotFound).
			Build()
	}
	if err != nil {
		return nil, fileError("read page", opts.OutputPath, err)
	}

	b.log.Info("creating template from current page",
		logger.String("source", opts.OutputPath),
		logger.String("template", opts.TemplatePath))

	tmpl, err := DeriveTemplate(current, subs)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(opts.TemplatePath, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fileError("create temp file", path, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fileError("write", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fileError("chmod", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fileError("close", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fileError("rename", path, err)
	}
	return nil
}

func fileError(op, path string, err error) error {
	return errors.Newf("%s %s: %w", op, path, err).
		Component("build").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}
