package language

import "strings"

// Metadata describes one supported response language.
type Metadata struct {
	Label   string
	Trigger string
	Code    string
}

var table = map[string]Metadata{
	"en": {Label: "English", Trigger: "Hello!", Code: "en-US"},
	"es": {Label: "Spanish", Trigger: "Hola!", Code: "es-ES"},
	"fr": {Label: "French", Trigger: "Bonjour!", Code: "fr-FR"},
	"de": {Label: "German", Trigger: "Hallo!", Code: "de-DE"},
	"hi": {Label: "Hindi", Trigger: "Namaste!", Code: "hi-IN"},
	"pt": {Label: "Portuguese", Trigger: "Ola!", Code: "pt-PT"},
	"zh": {Label: "Chinese", Trigger: "Ni hao!", Code: "zh-CN"},
	"ja": {Label: "Japanese", Trigger: "Konnichiwa!", Code: "ja-JP"},
	"ko": {Label: "Korean", Trigger: "Annyeonghaseyo!", Code: "ko-KR"},
	"ar": {Label: "Arabic", Trigger: "Marhaban!", Code: "ar-SA"},
	"ru": {Label: "Russian", Trigger: "Privet!", Code: "ru-RU"},
	"it": {Label: "Italian", Trigger: "Ciao!", Code: "it-IT"},
	"nl": {Label: "Dutch", Trigger: "Hallo!", Code: "nl-NL"},
	"pl": {Label: "Polish", Trigger: "Czesc!", Code: "pl-PL"},
	"tr": {Label: "Turkish", Trigger: "Merhaba!", Code: "tr-TR"},
}

// Lookup resolves a language code to its metadata. Region suffixes are
// ignored ("en-GB" resolves as "en") and unknown or empty codes fall back to
// English.
func Lookup(code string) Metadata {
	key := strings.ToLower(code)
	if key == "" {
		key = "en"
	}
	if i := strings.IndexAny(key, "-_"); i >= 0 {
		key = key[:i]
	}
	if meta, ok := table[key]; ok {
		return meta
	}
	return table["en"]
}
