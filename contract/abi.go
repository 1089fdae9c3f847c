package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// GridHouseABI is the subset of the GridHouse contract the server talks to.
const GridHouseABI = `[
	{
		"type": "function",
		"name": "placeBet",
		"stateMutability": "payable",
		"inputs": [
			{"name": "priceBucket", "type": "uint64"},
			{"name": "timeBucket", "type": "uint64"}
		],
		"outputs": [{"name": "betId", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "settle",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "betId", "type": "uint256"}],
		"outputs": []
	},
	{
		"type": "event",
		"name": "BetPlaced",
		"anonymous": false,
		"inputs": [
			{"name": "betId", "type": "uint256", "indexed": true},
			{"name": "player", "type": "address", "indexed": true},
			{"name": "priceBucket", "type": "uint64", "indexed": false},
			{"name": "timeBucket", "type": "uint64", "indexed": false},
			{"name": "amount", "type": "uint256", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "BetSettled",
		"anonymous": false,
		"inputs": [
			{"name": "betId", "type": "uint256", "indexed": true},
			{"name": "won", "type": "bool", "indexed": false},
			{"name": "payout", "type": "uint256", "indexed": false}
		]
	}
]`

const (
	MethodPlaceBet  = "placeBet"
	MethodSettle    = "settle"
	EventBetPlaced  = "BetPlaced"
	EventBetSettled = "BetSettled"
)

var gridHouseABI = mustParseABI(GridHouseABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("contract: invalid GridHouse ABI: " + err.Error())
	}
	return parsed
}
