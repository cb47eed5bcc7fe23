package stress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpster/pkg/dumpster"
	"github.com/dumpster/pkg/errors"
	"github.com/dumpster/pkg/utils"
)

func TestScenarios(t *testing.T) {
	for _, s := range Scenarios() {
		t.Run(s.Name, func(t *testing.T) {
			res, err := RunScenario(context.Background(), s.Name, dumpster.WithLogger(&utils.NullLogger{}))
			require.NoError(t, err)
			assert.True(t, res.Passed, res.Detail)
			assert.Equal(t, s.Name, res.Name)
		})
	}
}

func TestScenario_SharedCycles(t *testing.T) {
	res, err := RunScenario(context.Background(), "shared-cycles", dumpster.WithLogger(&utils.NullLogger{}))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Pass.Collected)
	assert.Equal(t, int64(4), res.Finalized)
}

func TestScenario_RelocatedEdge(t *testing.T) {
	res, err := RunScenario(context.Background(), "relocated-edge", dumpster.WithLogger(&utils.NullLogger{}))
	require.NoError(t, err)
	assert.Zero(t, res.Pass.Collected)
	assert.Equal(t, 1, res.Pass.Conservative["untagged"])
	assert.Equal(t, int64(3), res.Finalized)
}

func TestScenario_HeldLock(t *testing.T) {
	res, err := RunScenario(context.Background(), "held-lock", dumpster.WithLogger(&utils.NullLogger{}))
	require.NoError(t, err)
	assert.Zero(t, res.Pass.Collected)
	assert.Equal(t, 1, res.Pass.Conservative["busy"])
	assert.Equal(t, int64(2), res.Finalized)
}

func TestRunScenario_Unknown(t *testing.T) {
	_, err := RunScenario(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetErrorCode(err))
}
