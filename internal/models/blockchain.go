package models

import "strconv"

type BlockchainName string

const (
	Polygon  BlockchainName = "Polygon"
	Ethereum BlockchainName = "Ethereum"
	Base     BlockchainName = "Base"
)

func (b BlockchainName) String() string {
	return string(b)
}

// ChainNameByID maps the chain ids the client knows to display names.
func ChainNameByID(id int64) BlockchainName {
	switch id {
	case 1:
		return Ethereum
	case 137:
		return Polygon
	case 8453:
		return Base
	default:
		return BlockchainName("chain-" + strconv.FormatInt(id, 10))
	}
}
