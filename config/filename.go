package config

import (
	"os"
	"strings"
	"unicode"
)

// maxFileNameLen is in characters, generated titles occasionally ramble.
const maxFileNameLen = 120

// CleanFileName makes file name out of book title. Path separators and
// characters the platform does not allow are dropped, line breaks and other
// white space runs become single space, leading and trailing dots and spaces
// are removed.
func CleanFileName(in string) string {
	out := strings.Join(strings.FieldsFunc(in, func(sym rune) bool {
		return unicode.IsSpace(sym) || unicode.IsControl(sym)
	}), " ")
	out = strings.Map(func(sym rune) rune {
		if strings.ContainsRune(forbiddenFileChars+string(os.PathSeparator)+string(os.PathListSeparator), sym) {
			return -1
		}
		return sym
	}, out)
	out = strings.Trim(out, ". ")
	if r := []rune(out); len(r) > maxFileNameLen {
		out = strings.TrimRight(string(r[:maxFileNameLen]), ". ")
	}
	if len(out) == 0 {
		out = "_bad_file_name_"
	}
	return out
}
