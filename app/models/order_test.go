package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]OrderStatus{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusCancelled},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusCancelled},
		{StatusCompleted, StatusProcessing},
		{StatusCancelled, StatusPending},
		{StatusCompleted, StatusCompleted},
	}
	for _, tc := range allowed {
		assert.True(t, tc[0].CanTransition(tc[1]), "%s -> %s", tc[0], tc[1])
	}

	denied := [][2]OrderStatus{
		{StatusPending, StatusCompleted},
		{StatusCompleted, StatusCancelled},
		{StatusCompleted, StatusPending},
		{StatusCancelled, StatusProcessing},
		{StatusCancelled, StatusCompleted},
	}
	for _, tc := range denied {
		assert.False(t, tc[0].CanTransition(tc[1]), "%s -> %s", tc[0], tc[1])
	}
}

func TestEnumsValid(t *testing.T) {
	assert.True(t, PackageFlash.Valid())
	assert.False(t, PackageType("mega").Valid())
	assert.True(t, StatusCancelled.Valid())
	assert.False(t, OrderStatus("shipped").Valid())
}
