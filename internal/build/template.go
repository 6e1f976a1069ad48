package build

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tphakala/shoppinglist/internal/conf"
	"github.com/tphakala/shoppinglist/internal/errors"
)

// Placeholder tokens in the page template.
const (
	PlaceholderURL     = "{{SUPABASE_URL}}"
	PlaceholderAnonKey = "{{SUPABASE_ANON_KEY}}"
)

var (
	ErrPlaceholderMissing = errors.NewStd("placeholder missing from template")
	ErrConstantMissing    = errors.NewStd("constant not found in document")
)

// Substitution binds a placeholder to its configured value and to the
// script constant that holds it in a concrete page.
type Substitution struct {
	Placeholder string
	Value       string
	Constant    string
}

// Substitutions returns the placeholder bindings for the given settings.
func Substitutions(s conf.SupabaseSettings) []Substitution {
	return []Substitution{
		{Placeholder: PlaceholderURL, Value: s.URL, Constant: "SUPABASE_URL"},
		{Placeholder: PlaceholderAnonKey, Value: s.AnonKey, Constant: "SUPABASE_ANON_KEY"},
	}
}

// Render replaces the first occurrence of every placeholder with its value.
// Offsets are taken from tmpl, so a value is never rescanned for placeholders.
func Render(tmpl []byte, subs []Substitution) ([]byte, error) {
	type splice struct {
		at  int
		sub Substitution
	}
	src := string(tmpl)
	splices := make([]splice, 0, len(subs))
	for _, sub := range subs {
		at := strings.Index(src, sub.Placeholder)
		if at < 0 {
			return nil, errors.Newf("%s: %w", sub.Placeholder, ErrPlaceholderMissing).
				Component("build").
				Category(errors.CategoryValidation).
				Context("placeholder", sub.Placeholder).
				Build()
		}
		splices = append(splices, splice{at: at, sub: sub})
	}
	slices.SortFunc(splices, func(a, b splice) int { return a.at - b.at })

	var out strings.Builder
	out.Grow(len(src))
	last := 0
	for _, sp := range splices {
		if sp.at < last {
			continue
		}
		out.WriteString(src[last:sp.at])
		out.WriteString(sp.sub.Value)
		last = sp.at + len(sp.sub.Placeholder)
	}
	out.WriteString(src[last:])
	return []byte(out.String()), nil
}

func constantPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`const ` + regexp.QuoteMeta(name) + ` = ".*?";`)
}

// DeriveTemplate turns a concrete page back into a template by rewriting
// `const NAME = "...";` to `const NAME = "{{NAME}}";`. Only text inside
// <script> elements is rewritten; every other byte is copied as-is.
func DeriveTemplate(document []byte, subs []Substitution) ([]byte, error) {
	patterns := make([]*regexp.Regexp, len(subs))
	for i, sub := range subs {
		patterns[i] = constantPattern(sub.Constant)
	}
	found := make([]bool, len(subs))

	var out bytes.Buffer
	z := html.NewTokenizer(bytes.NewReader(document))
	inScript := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, errors.Newf("tokenize document: %w", err).
					Component("build").
					Category(errors.CategoryValidation).
					Build()
			}
			break
		}

		// Raw must be copied out before TagName, which lower-cases the
		// tokenizer buffer in place.
		raw := z.Raw()
		if tt != html.TextToken || !inScript {
			out.Write(raw)
		}

		switch tt {
		case html.StartTagToken:
			name, _ := z.TagName()
			inScript = atom.Lookup(name) == atom.Script
		case html.EndTagToken:
			inScript = false
		case html.TextToken:
			if !inScript {
				continue
			}
			text := string(raw)
			for i, sub := range subs {
				if loc := patterns[i].FindStringIndex(text); loc != nil {
					found[i] = true
					replacement := fmt.Sprintf(`const %s = "%s";`, sub.Constant, sub.Placeholder)
					text = text[:loc[0]] + replacement + text[loc[1]:]
				}
			}
			out.WriteString(text)
		}
	}

	for i, ok := range found {
		if !ok {
			return nil, errors.Newf("%s: %w", subs[i].Constant, ErrConstantMissing).
				Component("build").
				Category(errors.CategoryValidation).
				Context("constant", subs[i].Constant).
				Build()
		}
	}
	return out.Bytes(), nil
}
