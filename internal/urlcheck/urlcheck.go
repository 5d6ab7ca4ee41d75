// Package urlcheck validates target URLs before any request is issued.
// The same check runs on the original location and again on every
// redirect target.
package urlcheck

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

// ErrInvalidURL marks any location rejected by Validate.
var ErrInvalidURL = fmt.Errorf("invalid url")

// Extensions of binary media that are never worth scanning for HTML
// fragments. The check is on the URL path only; the content-type gate
// still applies to whatever the server actually returns.
var binaryExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {},
	".bmp": {}, ".ico": {}, ".svg": {}, ".tiff": {},
	".mp4": {}, ".webm": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".flv": {},
	".mp3": {}, ".wav": {}, ".ogg": {}, ".flac": {}, ".aac": {}, ".m4a": {},
	".zip": {}, ".gz": {}, ".tgz": {}, ".tar": {}, ".bz2": {}, ".xz": {},
	".rar": {}, ".7z": {},
}

// Validate parses and vets an absolute http(s) URL. It rejects non-HTTP
// schemes, binary media paths, unparseable locations, and hostnames that
// visually spoof another host through internationalized-domain
// confusables.
func Validate(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty location", ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q missing host", ErrInvalidURL, raw)
	}

	ext := strings.ToLower(path.Ext(u.Path))
	if _, binary := binaryExtensions[ext]; binary {
		return nil, fmt.Errorf("%w: binary media extension %q", ErrInvalidURL, ext)
	}

	if err := checkHostname(u.Hostname()); err != nil {
		return nil, err
	}
	return u, nil
}

// checkHostname rejects hosts whose unicode form mixes scripts or uses
// lookalike characters, the classic IDN homograph setup.
func checkHostname(host string) error {
	host = strings.ToLower(host)

	// Round-trip through the lookup profile first; it rejects malformed
	// punycode and disallowed code points outright.
	unicodeHost, err := idna.Lookup.ToUnicode(host)
	if err != nil {
		return fmt.Errorf("%w: hostname %q: %v", ErrInvalidURL, host, err)
	}
	if _, err := idna.Lookup.ToASCII(unicodeHost); err != nil {
		return fmt.Errorf("%w: hostname %q: %v", ErrInvalidURL, host, err)
	}

	for _, label := range strings.Split(unicodeHost, ".") {
		if err := checkLabel(label); err != nil {
			return err
		}
	}
	return nil
}

func checkLabel(label string) error {
	var hasLatin, hasOther bool
	var letters, confusable int
	for _, r := range label {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r < 0x80 || unicode.Is(unicode.Latin, r) {
			hasLatin = true
		} else {
			hasOther = true
		}
		if _, ok := latinConfusables[r]; ok {
			confusable++
		}
	}
	// A single label mixing Latin with another script is one spoofing
	// pattern; legitimate IDNs keep each label in one script.
	if hasLatin && hasOther {
		return fmt.Errorf("%w: hostname label %q mixes scripts", ErrInvalidURL, label)
	}
	// The other is the whole-script confusable: every letter of the
	// label is a Latin lookalike (e.g. Cyrillic "аррӏе"). Non-Latin
	// labels that merely contain some lookalike letters pass.
	if letters > 0 && confusable == letters {
		return fmt.Errorf("%w: hostname label %q is composed of Latin-lookalike characters", ErrInvalidURL, label)
	}
	return nil
}

// Cyrillic and Greek letters that render near-identically to common Latin
// ones. Whole-script confusable domains (e.g. "аррӏе") are built from
// exactly these.
var latinConfusables = map[rune]struct{}{
	'а': {}, 'е': {}, 'о': {}, 'р': {}, 'с': {}, 'у': {}, 'х': {},
	'і': {}, 'ѕ': {}, 'ј': {}, 'ԁ': {}, 'ɡ': {}, 'ӏ': {}, 'ԛ': {}, 'ѡ': {},
	'ο': {}, 'ν': {}, 'α': {},
}
