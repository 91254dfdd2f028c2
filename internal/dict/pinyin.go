package dict

import (
	"strings"
	"unicode"
)

// toneMarks maps a base vowel to its four tone diacritics.
var toneMarks = map[rune][4]rune{
	'a': {'ā', 'á', 'ǎ', 'à'},
	'e': {'ē', 'é', 'ě', 'è'},
	'i': {'ī', 'í', 'ǐ', 'ì'},
	'o': {'ō', 'ó', 'ǒ', 'ò'},
	'u': {'ū', 'ú', 'ǔ', 'ù'},
	'ü': {'ǖ', 'ǘ', 'ǚ', 'ǜ'},
	'A': {'Ā', 'Á', 'Ǎ', 'À'},
	'E': {'Ē', 'É', 'Ě', 'È'},
	'I': {'Ī', 'Í', 'Ǐ', 'Ì'},
	'O': {'Ō', 'Ó', 'Ǒ', 'Ò'},
	'U': {'Ū', 'Ú', 'Ǔ', 'Ù'},
	'Ü': {'Ǖ', 'Ǘ', 'Ǚ', 'Ǜ'},
}

// ConvertPinyin turns CEDICT numbered pinyin into diacritic form:
// "zhong1 guo2" becomes "zhōng guó". Tone 5 syllables stay bare, "u:"
// becomes "ü", and non-syllable fields (punctuation, middle dots) pass
// through untouched.
func ConvertPinyin(numbered string) string {
	fields := strings.Fields(numbered)
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		out = append(out, convertSyllable(field))
	}
	return strings.Join(out, " ")
}

func convertSyllable(s string) string {
	if s == "" {
		return s
	}

	tone := 0
	if c := s[len(s)-1]; c >= '1' && c <= '5' {
		tone = int(c - '0')
		s = s[:len(s)-1]
	}
	s = replaceUmlaut(s)
	if tone == 0 || tone == 5 {
		return s
	}

	runes := []rune(s)
	idx := toneIndex(runes)
	if idx < 0 {
		// interjection syllables like m2 or ng3 carry no vowel
		return s
	}
	if marks, ok := toneMarks[runes[idx]]; ok {
		runes[idx] = marks[tone-1]
	}
	return string(runes)
}

// replaceUmlaut rewrites the ü stand-ins: CEDICT's "u:" digraph always,
// and the keyboard "v" when it follows n or l, the only consonants that
// take ü. A bare v stays a v so letter headwords like V領 survive.
func replaceUmlaut(s string) string {
	s = strings.ReplaceAll(s, "u:", "ü")
	s = strings.ReplaceAll(s, "U:", "Ü")

	runes := []rune(s)
	for i := 1; i < len(runes); i++ {
		if prev := unicode.ToLower(runes[i-1]); prev != 'n' && prev != 'l' {
			continue
		}
		switch runes[i] {
		case 'v':
			runes[i] = 'ü'
		case 'V':
			runes[i] = 'Ü'
		}
	}
	return string(runes)
}

// toneIndex picks the vowel that carries the tone mark: a or e when
// present, the o of an "ou" cluster, otherwise the last vowel.
func toneIndex(runes []rune) int {
	for i, r := range runes {
		if l := unicode.ToLower(r); l == 'a' || l == 'e' {
			return i
		}
	}
	for i, r := range runes {
		if unicode.ToLower(r) == 'o' && i+1 < len(runes) && unicode.ToLower(runes[i+1]) == 'u' {
			return i
		}
	}
	for i := len(runes) - 1; i >= 0; i-- {
		if isPinyinVowel(runes[i]) {
			return i
		}
	}
	return -1
}

func isPinyinVowel(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u', 'ü':
		return true
	}
	return false
}
