package claims

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

func TestStageForwardChain(t *testing.T) {
	order := []Stage{StagePending, StageApprovedRegional, StageApprovedHQ, StageApprovedFinance, StagePaid}
	for i := 0; i < len(order)-1; i++ {
		next, ok := order[i].Next()
		require.True(t, ok, "stage %s should advance", order[i])
		require.Equal(t, order[i+1], next)
	}

	_, ok := StagePaid.Next()
	require.False(t, ok)
	_, ok = StageRejected.Next()
	require.False(t, ok)
}

func TestStageLegacyAlias(t *testing.T) {
	normalized, ok := Normalize(stageLegacyApproved)
	require.True(t, ok)
	require.Equal(t, StageApprovedHQ, normalized)

	next, ok := stageLegacyApproved.Next()
	require.True(t, ok)
	require.Equal(t, StageApprovedFinance, next)

	role, ok := stageLegacyApproved.AdvanceAuthority()
	require.True(t, ok)
	require.Equal(t, shared.RoleFinance, role)

	require.True(t, stageLegacyApproved.Locking())
	require.False(t, stageLegacyApproved.Editable())
}

func TestStageCorruptedValue(t *testing.T) {
	corrupt := Stage("APROVADO")
	require.False(t, corrupt.Known())

	_, ok := corrupt.Next()
	require.False(t, ok)
	_, ok = corrupt.AdvanceAuthority()
	require.False(t, ok)
	require.False(t, corrupt.Locking())
	require.False(t, corrupt.Editable())
}

func TestStageLocking(t *testing.T) {
	require.False(t, StagePending.Locking())
	require.False(t, StageRejected.Locking())
	require.True(t, StageApprovedRegional.Locking())
	require.True(t, StageApprovedHQ.Locking())
	require.True(t, StageApprovedFinance.Locking())
	require.True(t, StagePaid.Locking())
}

func TestStageAdvanceAuthority(t *testing.T) {
	cases := map[Stage]shared.Role{
		StagePending:          shared.RoleReviewer,
		StageApprovedRegional: shared.RoleHQ,
		StageApprovedHQ:       shared.RoleFinance,
		StageApprovedFinance:  shared.RoleFinance,
	}
	for stage, want := range cases {
		role, ok := stage.AdvanceAuthority()
		require.True(t, ok, "stage %s", stage)
		require.Equal(t, want, role, "stage %s", stage)
	}

	_, ok := StagePaid.AdvanceAuthority()
	require.False(t, ok)
}

func TestTransitionErrorMatchesSentinel(t *testing.T) {
	err := error(&TransitionError{From: StagePaid})
	require.True(t, errors.Is(err, shared.ErrInvalidTransition))
	require.Contains(t, err.Error(), "PAID")

	corrupt := error(&TransitionError{From: Stage("GARBAGE")})
	require.Contains(t, corrupt.Error(), "unrecognised")
}
