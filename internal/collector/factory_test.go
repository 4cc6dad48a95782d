package collector_test

import (
	"testing"

	"github.com/qepting91/reddit-link-harvester/internal/collector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSource(t *testing.T) {
	src, err := collector.NewSource(collector.Settings{Mode: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &collector.MockClient{}, src)

	src, err = collector.NewSource(collector.Settings{Mode: "public", UserAgent: "ua/1.0"})
	require.NoError(t, err)
	assert.IsType(t, &collector.PublicClient{}, src)

	_, err = collector.NewSource(collector.Settings{Mode: "public"})
	assert.Error(t, err)

	_, err = collector.NewSource(collector.Settings{Mode: "carrier-pigeon"})
	assert.Error(t, err)
}
