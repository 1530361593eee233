package evm

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/credscope/ledgerlink/business/ledger/domain"
)

// blockHead carries the header fields of a newHeads notification. Only the
// fields the connection manager acts on are decoded.
type blockHead struct {
	Number     *hexutil.Big   `json:"number"`
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
	Timestamp  hexutil.Uint64 `json:"timestamp"`
}

// Height returns the head's block number, 0 when the field is absent.
func (h *blockHead) Height() uint64 {
	if h == nil || h.Number == nil {
		return 0
	}
	return h.Number.ToInt().Uint64()
}

func (h *blockHead) Summary() domain.BlockSummary {
	return domain.BlockSummary{
		Height:    h.Height(),
		Hash:      h.Hash,
		Timestamp: time.Unix(int64(h.Timestamp), 0).UTC(),
	}
}

// rpcBlock is the wire shape of eth_getBlockByNumber with full transactions.
type rpcBlock struct {
	Number       hexutil.Uint64   `json:"number"`
	Hash         common.Hash      `json:"hash"`
	ParentHash   common.Hash      `json:"parentHash"`
	Timestamp    hexutil.Uint64   `json:"timestamp"`
	Transactions []rpcTransaction `json:"transactions"`
}

func (b *rpcBlock) toDomain() domain.Block {
	out := domain.Block{
		Number:       uint64(b.Number),
		Hash:         b.Hash,
		ParentHash:   b.ParentHash,
		Timestamp:    time.Unix(int64(b.Timestamp), 0).UTC(),
		Transactions: make([]domain.Transaction, 0, len(b.Transactions)),
	}
	for i := range b.Transactions {
		out.Transactions = append(out.Transactions, b.Transactions[i].toDomain())
	}
	return out
}

// rpcTransaction is the wire shape of a transaction object. To is a pointer
// because contract creations carry null.
type rpcTransaction struct {
	Hash             common.Hash     `json:"hash"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"`
	Value            *hexutil.Big    `json:"value"`
	Nonce            hexutil.Uint64  `json:"nonce"`
	BlockHash        common.Hash     `json:"blockHash"`
	BlockNumber      *hexutil.Big    `json:"blockNumber"`
	TransactionIndex hexutil.Uint    `json:"transactionIndex"`
}

func (t *rpcTransaction) toDomain() domain.Transaction {
	tx := domain.Transaction{
		Hash:      t.Hash,
		From:      strings.ToLower(t.From.Hex()),
		Nonce:     uint64(t.Nonce),
		BlockHash: t.BlockHash,
		Index:     uint(t.TransactionIndex),
	}
	if t.To != nil {
		tx.To = strings.ToLower(t.To.Hex())
	}
	if t.Value != nil {
		tx.Value = (*hexutil.Big)(t.Value).String()
	} else {
		tx.Value = "0x0"
	}
	if t.BlockNumber != nil {
		tx.BlockNumber = t.BlockNumber.ToInt().Uint64()
	}
	return tx
}

// rpcReceipt is the wire shape of eth_getTransactionReceipt.
type rpcReceipt struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	Status          hexutil.Uint64  `json:"status"`
	BlockNumber     hexutil.Uint64  `json:"blockNumber"`
	GasUsed         hexutil.Uint64  `json:"gasUsed"`
	ContractAddress *common.Address `json:"contractAddress"`
}

func (r *rpcReceipt) toDomain() domain.Receipt {
	rec := domain.Receipt{
		TxHash:      r.TransactionHash,
		Status:      uint64(r.Status),
		BlockNumber: uint64(r.BlockNumber),
		GasUsed:     uint64(r.GasUsed),
	}
	if r.ContractAddress != nil {
		rec.ContractAddress = strings.ToLower(r.ContractAddress.Hex())
	}
	return rec
}
