package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveUsername(t *testing.T) {
	tests := []struct {
		address  string
		expected string
	}{
		{"rider@example.com", "rider"},
		{"Rider.Smith+bikes@example.com", "rider_smith"},
		{"a--b__c@example.com", "a_b_c"},
		{"_leading@example.com", "leading"},
		{"averyveryverylongemailname@example.com", "averyveryverylongema"},
		{"ünïcode@example.com", "n_code"},
		{"+only@example.com", "user"},
		{"", "user"},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveUsername(tt.address))
		})
	}
}
