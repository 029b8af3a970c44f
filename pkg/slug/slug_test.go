package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Café de Etiopía", "cafe-de-etiopia"},
		{"Año Nuevo 250g", "ano-nuevo-250g"},
		{"  Tostado  Medio!! ", "tostado-medio"},
		{"Güeña – Colombia", "guena-colombia"},
		{"ALL UPPER", "all-upper"},
		{"---", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Generate(tt.input))
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("cafe-de-etiopia"))
	assert.False(t, Valid("Café de Etiopía"))
	assert.False(t, Valid("cafe--etiopia"))
	assert.False(t, Valid(""))
}
