package onchain

// abi.go — contract ABIs used by the adapters, parsed once at startup.
//
// Only the methods and events the bot calls are declared. getReserveData's
// ReserveData struct is fully static, so its tuple is declared flattened:
// the encoding is identical and every field unpacks positionally.

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	poolABI            abi.ABI
	dataProviderABI    abi.ABI
	oracleABI          abi.ABI
	routerABI          abi.ABI
	erc20ABI           abi.ABI
	flashLiquidatorABI abi.ABI

	borrowEventID common.Hash
	repayEventID  common.Hash
)

// position of variableDebtTokenAddress in the flattened ReserveData
const reserveDataVariableDebtIndex = 10

func init() {
	poolABI = mustParse("pool", `[
		{
			"name": "getUserAccountData",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "user", "type": "address"}],
			"outputs": [
				{"name": "totalCollateralBase", "type": "uint256"},
				{"name": "totalDebtBase", "type": "uint256"},
				{"name": "availableBorrowsBase", "type": "uint256"},
				{"name": "currentLiquidationThreshold", "type": "uint256"},
				{"name": "ltv", "type": "uint256"},
				{"name": "healthFactor", "type": "uint256"}
			]
		},
		{
			"name": "getConfiguration",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "asset", "type": "address"}],
			"outputs": [{"name": "data", "type": "uint256"}]
		},
		{
			"name": "getReserveData",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "asset", "type": "address"}],
			"outputs": [
				{"name": "configuration", "type": "uint256"},
				{"name": "liquidityIndex", "type": "uint128"},
				{"name": "currentLiquidityRate", "type": "uint128"},
				{"name": "variableBorrowIndex", "type": "uint128"},
				{"name": "currentVariableBorrowRate", "type": "uint128"},
				{"name": "currentStableBorrowRate", "type": "uint128"},
				{"name": "lastUpdateTimestamp", "type": "uint40"},
				{"name": "id", "type": "uint16"},
				{"name": "aTokenAddress", "type": "address"},
				{"name": "stableDebtTokenAddress", "type": "address"},
				{"name": "variableDebtTokenAddress", "type": "address"},
				{"name": "interestRateStrategyAddress", "type": "address"},
				{"name": "accruedToTreasury", "type": "uint128"},
				{"name": "unbacked", "type": "uint128"},
				{"name": "isolationModeTotalDebt", "type": "uint128"}
			]
		},
		{
			"name": "Borrow",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"indexed": true, "name": "reserve", "type": "address"},
				{"indexed": false, "name": "user", "type": "address"},
				{"indexed": true, "name": "onBehalfOf", "type": "address"},
				{"indexed": false, "name": "amount", "type": "uint256"},
				{"indexed": false, "name": "interestRateMode", "type": "uint8"},
				{"indexed": false, "name": "borrowRate", "type": "uint256"},
				{"indexed": true, "name": "referralCode", "type": "uint16"}
			]
		},
		{
			"name": "Repay",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"indexed": true, "name": "reserve", "type": "address"},
				{"indexed": true, "name": "user", "type": "address"},
				{"indexed": true, "name": "repayer", "type": "address"},
				{"indexed": false, "name": "amount", "type": "uint256"},
				{"indexed": false, "name": "useATokens", "type": "bool"}
			]
		}
	]`)

	dataProviderABI = mustParse("ui pool data provider", `[
		{
			"name": "getUserReservesData",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "provider", "type": "address"},
				{"name": "user", "type": "address"}
			],
			"outputs": [
				{
					"name": "",
					"type": "tuple[]",
					"components": [
						{"name": "underlyingAsset", "type": "address"},
						{"name": "scaledATokenBalance", "type": "uint256"},
						{"name": "usageAsCollateralEnabledOnUser", "type": "bool"},
						{"name": "scaledVariableDebt", "type": "uint256"}
					]
				},
				{"name": "", "type": "uint8"}
			]
		}
	]`)

	oracleABI = mustParse("oracle", `[
		{
			"name": "getAssetPrice",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "asset", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`)

	routerABI = mustParse("router", `[
		{
			"name": "getAmountsOut",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "amountIn", "type": "uint256"},
				{"name": "path", "type": "address[]"}
			],
			"outputs": [{"name": "amounts", "type": "uint256[]"}]
		}
	]`)

	erc20ABI = mustParse("erc20", `[
		{
			"name": "balanceOf",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "decimals",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint8"}]
		}
	]`)

	flashLiquidatorABI = mustParse("flash liquidator", `[
		{
			"name": "executeFlashLiquidation",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "collateralAsset", "type": "address"},
				{"name": "debtAsset", "type": "address"},
				{"name": "user", "type": "address"},
				{"name": "debtToCover", "type": "uint256"},
				{"name": "minimumAmountOut", "type": "uint256"}
			],
			"outputs": []
		}
	]`)

	borrowEventID = poolABI.Events["Borrow"].ID
	repayEventID = poolABI.Events["Repay"].ID
}

func mustParse(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(name + " abi parse: " + err.Error())
	}
	return parsed
}
