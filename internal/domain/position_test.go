package domain_test

import (
	"testing"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc  = common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")
	usdt  = common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F")
	vUSDC = common.HexToAddress("0xFCCf3cAbbe80101232d343252614b6A3eE81C989")
)

func TestReserveConfig_Lookup(t *testing.T) {
	rc, err := domain.NewReserveConfig([]domain.Reserve{
		{Asset: usdc, VariableDebtToken: vUSDC},
		{Asset: usdt},
	})
	require.NoError(t, err)

	assert.True(t, rc.Tracks(usdc))
	assert.True(t, rc.Tracks(usdt))
	assert.False(t, rc.Tracks(common.HexToAddress("0x01")))

	token, ok := rc.DebtToken(usdc)
	assert.True(t, ok)
	assert.Equal(t, vUSDC, token)

	_, ok = rc.DebtToken(usdt)
	assert.False(t, ok, "tracked market without a debt token is not resolvable")

	assert.Equal(t, []common.Address{usdc, usdt}, rc.Markets())
	assert.Equal(t, 2, rc.Len())
}

func TestReserveConfig_MarketsIsACopy(t *testing.T) {
	rc, err := domain.NewReserveConfig([]domain.Reserve{{Asset: usdc, VariableDebtToken: vUSDC}})
	require.NoError(t, err)

	m := rc.Markets()
	m[0] = common.Address{}
	assert.Equal(t, usdc, rc.Markets()[0])
}

func TestReserveConfig_RejectsDuplicates(t *testing.T) {
	_, err := domain.NewReserveConfig([]domain.Reserve{{Asset: usdc}, {Asset: usdc}})
	assert.Error(t, err)
}

func TestUserReserve_IsEligibleCollateral(t *testing.T) {
	assert.True(t, domain.UserReserve{CollateralEnabled: true, ScaledATokenBalance: domain.NewAmount(1)}.IsEligibleCollateral())
	assert.False(t, domain.UserReserve{CollateralEnabled: false, ScaledATokenBalance: domain.NewAmount(1)}.IsEligibleCollateral())
	assert.False(t, domain.UserReserve{CollateralEnabled: true, ScaledATokenBalance: domain.NewAmount(0)}.IsEligibleCollateral())
	assert.False(t, domain.UserReserve{CollateralEnabled: true}.IsEligibleCollateral())
}
