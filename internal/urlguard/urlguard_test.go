package urlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/automation-core/internal/apperr"
)

func TestCheckAllows(t *testing.T) {
	g := New([]string{"app.internal.example"})

	tests := []string{
		"https://example.com/hooks/incoming",
		"http://api.partner.io/v1/callback",
		"https://8.8.8.8/webhook",
	}
	for _, u := range tests {
		t.Run(u, func(t *testing.T) {
			assert.NoError(t, g.Check(u))
		})
	}
}

func TestCheckRejects(t *testing.T) {
	g := New([]string{"app.internal.example"})

	tests := []struct {
		name string
		url  string
	}{
		{"malformed", "://not a url"},
		{"ftp scheme", "ftp://example.com/file"},
		{"no host", "https:///path"},
		{"localhost", "http://localhost:8080/hook"},
		{"own domain", "https://app.internal.example/hook"},
		{"own domain case insensitive", "https://APP.internal.EXAMPLE/hook"},
		{"loopback", "http://127.0.0.1:9000/hook"},
		{"private 10/8", "http://10.1.2.3/hook"},
		{"private 172.16/12", "http://172.16.5.5/hook"},
		{"private 192.168/16", "http://192.168.1.1/hook"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Check(tt.url)
			if assert.Error(t, err) {
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			}
		})
	}
}

func TestNewNormalizesOwnDomains(t *testing.T) {
	g := New([]string{"  Example.COM  "})
	assert.Error(t, g.Check("https://example.com/hook"))
}
