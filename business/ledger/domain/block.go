package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BlockSummary is the light header view delivered to block subscribers.
type BlockSummary struct {
	Height    uint64      `json:"height"`
	Hash      common.Hash `json:"hash"`
	Timestamp time.Time   `json:"timestamp"`
}

// Transaction is a ledger transaction as seen by this service. Amount-like
// fields stay hex-encoded strings; nothing downstream does arithmetic on them.
type Transaction struct {
	Hash        common.Hash `json:"hash"`
	From        string      `json:"from"`
	To          string      `json:"to,omitempty"` // empty for contract creation
	Value       string      `json:"value"`
	Nonce       uint64      `json:"nonce"`
	BlockHash   common.Hash `json:"blockHash"`
	BlockNumber uint64      `json:"blockNumber"`
	Index       uint        `json:"index"`
}

// Receipt is a transaction receipt.
type Receipt struct {
	TxHash          common.Hash `json:"txHash"`
	Status          uint64      `json:"status"`
	BlockNumber     uint64      `json:"blockNumber"`
	GasUsed         uint64      `json:"gasUsed"`
	ContractAddress string      `json:"contractAddress,omitempty"`
}

// Block is a full block with its transaction list, fetched once per head for
// address scanning and point reads.
type Block struct {
	Number       uint64        `json:"number"`
	Hash         common.Hash   `json:"hash"`
	ParentHash   common.Hash   `json:"parentHash"`
	Timestamp    time.Time     `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
}

// Summary reduces a Block to the subscriber view.
func (b *Block) Summary() BlockSummary {
	return BlockSummary{Height: b.Number, Hash: b.Hash, Timestamp: b.Timestamp}
}

// AddressEvent is delivered to address watchers when a transaction touches
// the watched address.
type AddressEvent struct {
	Address     string      `json:"address"`
	Direction   Direction   `json:"direction"`
	Tx          Transaction `json:"tx"`
	BlockHeight uint64      `json:"blockHeight"`
}

// Direction tells which side of the transaction matched the watch.
type Direction string

const (
	DirectionFrom Direction = "from"
	DirectionTo   Direction = "to"
)
