package evm

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/credscope/ledgerlink/internal/apperror"
	"github.com/credscope/ledgerlink/internal/circuitbreaker"
	"github.com/credscope/ledgerlink/internal/logger"

	"github.com/credscope/ledgerlink/business/ledger/domain"
)

// Queries is the point-read facade over the active connection. One-shot
// reads only: no caching, no retries. Every call validates its input before
// touching the network, fails fast with CodeNotConnected when no connection
// is up, and goes through a circuit breaker so a flapping provider sheds
// load instead of queueing it.
type Queries struct {
	log     logger.LoggerInterface
	sup     *Supervisor
	breaker *circuitbreaker.CircuitBreaker[json.RawMessage]
}

func NewQueries(log logger.LoggerInterface, sup *Supervisor) *Queries {
	return &Queries{
		log:     log,
		sup:     sup,
		breaker: circuitbreaker.New[json.RawMessage](circuitbreaker.DefaultConfig("ledger-queries")),
	}
}

// GetTransaction fetches a transaction by hash. CodeNotFound when the
// provider has never seen the hash.
func (q *Queries) GetTransaction(ctx context.Context, hash string) (domain.Transaction, error) {
	if !validHash(hash) {
		return domain.Transaction{}, apperror.Validation(apperror.CodeInvalidHash, hash)
	}
	var wire rpcTransaction
	if err := q.call(ctx, &wire, "eth_getTransactionByHash", hash); err != nil {
		return domain.Transaction{}, err
	}
	return wire.toDomain(), nil
}

// GetTransactionReceipt fetches a receipt by transaction hash.
func (q *Queries) GetTransactionReceipt(ctx context.Context, hash string) (domain.Receipt, error) {
	if !validHash(hash) {
		return domain.Receipt{}, apperror.Validation(apperror.CodeInvalidHash, hash)
	}
	var wire rpcReceipt
	if err := q.call(ctx, &wire, "eth_getTransactionReceipt", hash); err != nil {
		return domain.Receipt{}, err
	}
	return wire.toDomain(), nil
}

// GetBlockByNumber fetches a block with its full transaction list.
func (q *Queries) GetBlockByNumber(ctx context.Context, number uint64) (domain.Block, error) {
	var wire *rpcBlock
	if err := q.call(ctx, &wire, "eth_getBlockByNumber", hexutil.EncodeUint64(number), true); err != nil {
		return domain.Block{}, err
	}
	if wire == nil {
		return domain.Block{}, apperror.NotFound(apperror.CodeNotFound, "block")
	}
	return wire.toDomain(), nil
}

// GetBalance fetches the latest balance of an address in wei.
func (q *Queries) GetBalance(ctx context.Context, addr string) (*big.Int, error) {
	if !common.IsHexAddress(addr) {
		return nil, apperror.Validation(apperror.CodeInvalidAddress, addr)
	}
	var out hexutil.Big
	if err := q.call(ctx, &out, "eth_getBalance", common.HexToAddress(addr), "latest"); err != nil {
		return nil, err
	}
	return (*big.Int)(&out), nil
}

// GetTransactionCount fetches the latest nonce of an address.
func (q *Queries) GetTransactionCount(ctx context.Context, addr string) (uint64, error) {
	if !common.IsHexAddress(addr) {
		return 0, apperror.Validation(apperror.CodeInvalidAddress, addr)
	}
	var out hexutil.Uint64
	if err := q.call(ctx, &out, "eth_getTransactionCount", common.HexToAddress(addr), "latest"); err != nil {
		return 0, err
	}
	return uint64(out), nil
}

// GetCurrentHeight fetches the provider's current block height.
func (q *Queries) GetCurrentHeight(ctx context.Context) (uint64, error) {
	var height hexutil.Uint64
	if err := q.call(ctx, &height, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(height), nil
}

func (q *Queries) call(ctx context.Context, result any, method string, args ...any) error {
	client, err := q.sup.Client()
	if err != nil {
		return err
	}

	raw, err := q.breaker.Execute(func() (json.RawMessage, error) {
		var raw json.RawMessage
		if err := client.CallContext(ctx, &raw, method, args...); err != nil {
			return nil, apperror.External(apperror.CodeRPCError, method, err)
		}
		return raw, nil
	})
	if err != nil {
		if circuitbreaker.IsOpen(err) {
			return apperror.New(apperror.CodeCircuitOpen, apperror.WithCause(err))
		}
		return err
	}

	if len(raw) == 0 || string(raw) == "null" {
		return apperror.NotFound(apperror.CodeNotFound, method)
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return apperror.Wrap(err, apperror.CodeRPCError, method)
	}
	return nil
}

// validHash checks the 0x-prefixed 32-byte hash shape.
func validHash(h string) bool {
	if len(h) != 66 || !strings.HasPrefix(h, "0x") {
		return false
	}
	_, err := hex.DecodeString(h[2:])
	return err == nil
}
