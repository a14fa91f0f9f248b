package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const priceOptionsTuple = `{"name":"getPriceOptions","type":"tuple","components":[
	{"name":"pythPublishTime","type":"uint256"},
	{"name":"pythMinConfidenceRatio","type":"uint256"},
	{"name":"chainlinkUseLatestAnswer","type":"bool"},
	{"name":"chainlinkRoundId","type":"uint80"}]}`

const factoryJSON = `[
{"type":"function","name":"getPresetFeeParams","stateMutability":"view","inputs":[],"outputs":[
	{"name":"tradingFeeRate","type":"uint256"},
	{"name":"cancellationFeeRate","type":"uint256"}]},
{"type":"function","name":"getDeployedVaults","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
{"type":"function","name":"createVault","stateMutability":"payable","inputs":[
	{"name":"params","type":"tuple","components":[
		{"name":"owner","type":"address"},
		{"name":"baseToken","type":"address"},
		{"name":"quoteToken","type":"address"},
		{"name":"expiry","type":"uint256"},
		{"name":"linkedOraclePrice","type":"uint256"},
		{"name":"yieldValue","type":"uint256"},
		{"name":"isBuyLow","type":"bool"},
		{"name":"quantity","type":"uint256"},
		{"name":"useCollateralPool","type":"bool"},
		{"name":"useNativeToken","type":"bool"},
		{"name":"vaultSeriesVersion","type":"uint256"},
		{"name":"signer","type":"address"}]},
	{"name":"pythUpdateData","type":"bytes[]"}],
	"outputs":[{"name":"","type":"address"}]},
{"type":"event","name":"VaultCreated","anonymous":false,"inputs":[
	{"name":"owner","type":"address","indexed":true},
	{"name":"baseToken","type":"address","indexed":true},
	{"name":"quoteToken","type":"address","indexed":true},
	{"name":"vaultAddress","type":"address","indexed":false},
	{"name":"expiry","type":"uint256","indexed":false},
	{"name":"linkedOraclePrice","type":"uint256","indexed":false},
	{"name":"yieldValue","type":"uint256","indexed":false},
	{"name":"isBuyLow","type":"bool","indexed":false},
	{"name":"quantity","type":"uint256","indexed":false}]}
]`

const vaultJSON = `[
{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"isBuyLow","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"investmentToken","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"linkedToken","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"quantity","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"depositTotal","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"state","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"expiry","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"yieldValue","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"linkedOraclePrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"oraclePriceAtCreation","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"tradingFeeRate","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"cancellationFeeRate","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"useCollateralPool","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"depositDeadline","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"lpCancelled","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"ownerDeposit","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"balances","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"lpCancel","stateMutability":"nonpayable","inputs":[],"outputs":[]},
{"type":"function","name":"lpWithdraw","stateMutability":"payable","inputs":[{"name":"pythUpdateData","type":"bytes[]"},` + priceOptionsTuple + `],"outputs":[]},
{"type":"function","name":"withdraw","stateMutability":"payable","inputs":[{"name":"pythUpdateData","type":"bytes[]"},` + priceOptionsTuple + `],"outputs":[]},
{"type":"function","name":"adjustYieldValue","stateMutability":"nonpayable","inputs":[{"name":"newYieldValue","type":"uint256"}],"outputs":[]}
]`

const routerJSON = `[
{"type":"function","name":"deposit","stateMutability":"payable","inputs":[
	{"name":"vault","type":"address"},
	{"name":"amount","type":"uint256"},
	{"name":"pythUpdateData","type":"bytes[]"}],"outputs":[]}
]`

const collateralPoolJSON = `[
{"type":"function","name":"approveVault","stateMutability":"nonpayable","inputs":[
	{"name":"vault","type":"address"},
	{"name":"approved","type":"bool"}],"outputs":[]}
]`

const batchManagerJSON = `[
{"type":"function","name":"lpWithdrawVaults","stateMutability":"payable","inputs":[{"name":"vaults","type":"address[]"},{"name":"pythUpdateData","type":"bytes[]"},` + priceOptionsTuple + `],"outputs":[]},
{"type":"function","name":"withdrawVaults","stateMutability":"payable","inputs":[{"name":"vaults","type":"address[]"},{"name":"pythUpdateData","type":"bytes[]"},` + priceOptionsTuple + `],"outputs":[]},
{"type":"function","name":"lpCancelVaults","stateMutability":"nonpayable","inputs":[{"name":"vaults","type":"address[]"}],"outputs":[]}
]`

const erc20JSON = `[
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]},
{"type":"event","name":"Approval","anonymous":false,"inputs":[{"name":"owner","type":"address","indexed":true},{"name":"spender","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

const pythJSON = `[
{"type":"function","name":"getUpdateFee","stateMutability":"view","inputs":[{"name":"updateData","type":"bytes[]"}],"outputs":[{"name":"feeAmount","type":"uint256"}]}
]`

var (
	factoryABI        = mustParse(factoryJSON)
	vaultABI          = mustParse(vaultJSON)
	routerABI         = mustParse(routerJSON)
	collateralPoolABI = mustParse(collateralPoolJSON)
	batchManagerABI   = mustParse(batchManagerJSON)
	erc20ABI          = mustParse(erc20JSON)
	pythABI           = mustParse(pythJSON)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("evm: invalid ABI definition: " + err.Error())
	}
	return parsed
}
