// Package translator loads the key/value locale files and resolves guild
// language preferences.
package translator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// FallbackLang is used when a locale or key is missing.
const FallbackLang = "en-US"

// Translator holds the loaded locale maps. Read-only after Load.
type Translator struct {
	l10n  map[string]map[string]string
	names map[string]string
	log   logrus.FieldLogger
}

func New(logger logrus.FieldLogger) *Translator {
	return &Translator{
		l10n:  make(map[string]map[string]string),
		names: make(map[string]string),
		log:   logger.WithField("component", "translator"),
	}
}

// Load reads every *.yaml file under dir; the file stem is the locale code
// and the "name" key is the locale's display name.
func (t *Translator) Load(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("failed to list locale files in %s: %w", dir, err)
	}

	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read locale file %s: %w", file, err)
		}

		data := make(map[string]string)
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("failed to parse locale file %s: %w", file, err)
		}

		lang := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.l10n[lang] = data
		t.names[lang] = data["name"]
	}

	t.log.WithField("locales", len(t.l10n)).Info("Locale files loaded")
	return nil
}

// Langs maps locale code to display name.
func (t *Translator) Langs() map[string]string {
	return t.names
}

// Get returns the localized string for key, interpolating {param}
// placeholders. Missing locales fall back to en-US; a key missing there too
// comes back verbatim so the UI never shows an empty string.
func (t *Translator) Get(lang, key string, params map[string]string) string {
	if _, ok := t.l10n[lang]; !ok {
		lang = FallbackLang
	}

	s, ok := t.l10n[lang][key]
	if !ok || s == "" {
		if lang == FallbackLang {
			return key
		}
		return t.Get(FallbackLang, key, params)
	}

	for k, v := range params {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}
