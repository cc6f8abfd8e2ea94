package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPath(t *testing.T) {
	_, err := CleanPath("schemas/../../etc/passwd")
	assert.Error(t, err)

	got, err := CleanPath("/tmp/schemas/DATA_AMS")
	assert.NoError(t, err)
	assert.Equal(t, "/tmp/schemas/DATA_AMS", got)
}

func TestValidatePath(t *testing.T) {
	_, err := ValidatePath("/tmp/elsewhere/file.sql", "/tmp/schemas")
	assert.Error(t, err)

	got, err := ValidatePath("/tmp/schemas/DATA_AMS/file.sql", "/tmp/schemas")
	assert.NoError(t, err)
	assert.Equal(t, "/tmp/schemas/DATA_AMS/file.sql", got)
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CUSTOMERS", "CUSTOMERS"},
		{`"My Table"`, "My_Table"},
		{"A/B\\C", "A_B_C"},
		{"V_CLIENT.SUMMARY", "V_CLIENT.SUMMARY"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFileName(tt.in), tt.in)
	}
}
