package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// Supported lists the languages with a bundled message file.
var Supported = []language.Tag{language.Spanish, language.English}

// I18nSupport localizes result and error messages.
type I18nSupport struct {
	bundle      *i18n.Bundle
	defaultLang language.Tag
	matcher     language.Matcher
}

// NewI18nSupport loads the bundled message files.
func NewI18nSupport(defaultLang string) (*I18nSupport, error) {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("default language %q: %w", defaultLang, err)
	}

	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	for _, file := range []string{"locales/es.json", "locales/en.json"} {
		data, err := locales.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(data, file); err != nil {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	return &I18nSupport{
		bundle:      bundle,
		defaultLang: tag,
		matcher:     language.NewMatcher(Supported),
	}, nil
}

// Match picks the supported language closest to an Accept-Language value
// or a plain tag.
func (i *I18nSupport) Match(preferences ...string) string {
	var tags []language.Tag
	for _, p := range preferences {
		if p == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	if len(tags) == 0 {
		return i.defaultLang.String()
	}
	_, idx, conf := i.matcher.Match(tags...)
	if conf == language.No {
		return i.defaultLang.String()
	}
	base, _ := Supported[idx].Base()
	return base.String()
}

// T translates key. Unknown keys come back unchanged.
func (i *I18nSupport) T(languageTag, key string, templateData map[string]interface{}) string {
	localizer := i18n.NewLocalizer(i.bundle, languageTag, i.defaultLang.String())
	translation, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: templateData,
	})
	if err != nil {
		return key
	}
	return translation
}

// TWithDefaultLang translates key in the default language.
func (i *I18nSupport) TWithDefaultLang(key string, templateData map[string]interface{}) string {
	return i.T(i.defaultLang.String(), key, templateData)
}
