package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "http", url: "http://localhost:8081"},
		{name: "https with path", url: "https://api.example.com/v1"},
		{name: "empty", url: "", wantErr: true},
		{name: "no scheme", url: "localhost:8081", wantErr: true},
		{name: "ftp", url: "ftp://example.com", wantErr: true},
		{name: "no host", url: "http://", wantErr: true},
		{name: "unparseable", url: "http://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateHeaderName(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateHeaderName("Authorization"))
	assert.NoError(t, ValidateHeaderName("X-Tenant-Id"))
	assert.Error(t, ValidateHeaderName(""))
	assert.Error(t, ValidateHeaderName("Bad Header"))
	assert.Error(t, ValidateHeaderName("x:y"))
}

func TestValidateErrorStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{400, 422, 502, 599} {
		assert.NoError(t, ValidateErrorStatus(code), code)
	}
	for _, code := range []int{0, 200, 399, 600} {
		assert.Error(t, ValidateErrorStatus(code), code)
	}
}
