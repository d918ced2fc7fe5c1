package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"
)

// Minimal ABI for the bonding-curve contract: the three events the relay
// mirrors plus the view functions used to refresh the curve snapshot after
// each trade.
const curveABIJSON = `[
	{"type":"event","name":"TokensPurchased","inputs":[
		{"name":"buyer","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"price","type":"uint256","indexed":false},
		{"name":"creatorFee","type":"uint256","indexed":false}]},
	{"type":"event","name":"TokensSold","inputs":[
		{"name":"seller","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"price","type":"uint256","indexed":false}]},
	{"type":"event","name":"CurveGraduated","inputs":[
		{"name":"pool","type":"address","indexed":false}]},
	{"type":"function","name":"getCurrentPrice","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"getMarketCap","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]}
]`

const (
	eventTokensPurchased = "TokensPurchased"
	eventTokensSold      = "TokensSold"
	eventCurveGraduated  = "CurveGraduated"
)

func parseCurveABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(curveABIJSON))
	if err != nil {
		return abi.ABI{}, errors.Wrap(err, "failed to parse bonding curve ABI")
	}
	return parsed, nil
}
