package model

// SupportedLanguages is the set of language tags the graders can compile.
var SupportedLanguages = []string{
	"kp", "kj",
	"c11-gcc", "c11-clang",
	"cpp11-gcc", "cpp11-clang",
	"cpp17-gcc", "cpp17-clang",
	"java", "py2", "py3", "rb", "cs", "pas", "cat", "hs", "lua",
}

// IntersectLanguages returns the members of base that appear in every
// restriction. A nil restriction imposes nothing.
func IntersectLanguages(base []string, restrictions ...[]string) []string {
	out := make([]string, 0, len(base))
	for _, lang := range base {
		allowed := true
		for _, r := range restrictions {
			if r != nil && !containsString(r, lang) {
				allowed = false
				break
			}
		}
		if allowed {
			out = append(out, lang)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// ContainsLanguage reports whether lang is in list.
func ContainsLanguage(list []string, lang string) bool {
	return containsString(list, lang)
}
