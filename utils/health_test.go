package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunHealthChecks(t *testing.T) {
	SetBackends(map[string]string{"sessions": "memory"})
	status := RunHealthChecks(context.Background(), map[string]Probe{
		"redis": func(ctx context.Context) error { return nil },
		"mongo": func(ctx context.Context) error { return errors.New("down") },
	})

	assert.Equal(t, map[string]bool{"redis": true, "mongo": false}, status.Checks)
	assert.False(t, status.Healthy())
	assert.Equal(t, "memory", GetHealthStatus().Backends["sessions"])

	status = RunHealthChecks(context.Background(), nil)
	assert.True(t, status.Healthy())
}
