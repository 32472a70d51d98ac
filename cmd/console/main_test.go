package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortID_ClampsToIDLength(t *testing.T) {
	assert.Equal(t, "", shortID(""))
	assert.Equal(t, "c1", shortID("c1"))
	assert.Equal(t, "12345678", shortID("12345678"))
	assert.Equal(t, "3f8a2c1d", shortID("3f8a2c1d-9b7e-4e21-b0aa-6c5d2f01e9ab"))
}
