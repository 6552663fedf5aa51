package graph

import (
	"reflect"
	"testing"
)

func TestSplitIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"LoginController", []string{"login", "controller"}},
		{"user_store", []string{"user", "store"}},
		{"kebab-case-name", []string{"kebab", "case", "name"}},
		{"src/auth/Login.ts", []string{"src", "auth", "login", "ts"}},
		{"HTTPServer", []string{"http", "server"}},
		{"parseJSONBody", []string{"parse", "json", "body"}},
		{"simple", []string{"simple"}},
		{"", nil},
		{"a", []string{"a"}},
		{"retry on timeout", []string{"retry", "on", "timeout"}},
	}

	for _, tc := range cases {
		got := SplitIdentifier(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SplitIdentifier(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTermSetIncludesMetadata(t *testing.T) {
	n := &Node{
		Name: "LoginController",
		Path: "src/auth/login.ts",
		Metadata: map[string]interface{}{
			MetaLanguage:  "TypeScript",
			MetaFramework: "Express",
		},
	}
	set := TermSet(n)
	for _, term := range []string{"login", "controller", "src", "auth", "typescript", "express"} {
		if _, ok := set[term]; !ok {
			t.Errorf("term %q missing from %v", term, set)
		}
	}
}
