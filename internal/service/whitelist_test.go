package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDomain(t *testing.T) {
	cases := []struct {
		originURL string
		want      string
	}{
		{"https://example.com/page", "example.com"},
		{"http://Example.COM", "example.com"},
		{"https://sub.example.com:8443/a?b=c", "sub.example.com"},
		{"ftp://example.com", ""},
		{"not-a-url", ""},
		{"", ""},
		{"://missing-scheme", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, extractDomain(tc.originURL), "originURL=%q", tc.originURL)
	}
}
