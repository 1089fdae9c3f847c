package contract

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"

	"gridServer/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// GridHouseContract wraps the GridHouse contract for the keeper account.
type GridHouseContract struct {
	Client      *ethclient.Client
	Contract    *bind.BoundContract
	Address     common.Address
	PrivateKey  *ecdsa.PrivateKey
	FromAddress common.Address
	ChainID     *big.Int
}

// NewGridHouseContract dials rpcURL and loads the keeper key.
func NewGridHouseContract(rpcURL, contractAddress, privateKeyHex string, chainID int64) (*GridHouseContract, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddress)
	}
	if privateKeyHex == "" {
		return nil, fmt.Errorf("KEEPER_PRIVATE_KEY environment variable not set")
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	fromAddress := crypto.PubkeyToAddress(privateKey.PublicKey)
	address := common.HexToAddress(contractAddress)
	bound := bind.NewBoundContract(address, gridHouseABI, client, client, client)

	log.Printf("✅ Contract client initialized - Address: %s, Keeper: %s", address.Hex(), fromAddress.Hex())

	return &GridHouseContract{
		Client:      client,
		Contract:    bound,
		Address:     address,
		PrivateKey:  privateKey,
		FromAddress: fromAddress,
		ChainID:     big.NewInt(chainID),
	}, nil
}

// Settle submits settle(betId) from the keeper account and returns the tx
// hash without waiting for it to be mined.
func (c *GridHouseContract) Settle(ctx context.Context, betID *big.Int) (common.Hash, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.PrivateKey, c.ChainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx
	auth.Value = big.NewInt(0)

	nonce, err := c.Client.PendingNonceAt(ctx, c.FromAddress)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)

	gasPrice, err := c.Client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}
	auth.GasPrice = gasPrice

	input, err := gridHouseABI.Pack(MethodSettle, betID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack settle: %w", err)
	}

	gasLimit, err := c.Client.EstimateGas(ctx, ethereum.CallMsg{
		From: c.FromAddress,
		To:   &c.Address,
		Data: input,
	})
	if err != nil {
		log.Printf("⚠️ Gas estimation failed for bet %s, using default: %v", betID, err)
		auth.GasLimit = config.KeeperGasLimit
	} else {
		auth.GasLimit = gasLimit + gasLimit*config.KeeperGasBufferPct/100
	}

	tx, err := c.Contract.Transact(auth, MethodSettle, betID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("settle(%s) failed: %w", betID, err)
	}

	log.Printf("📤 settle(%s) tx sent: %s (not waiting for confirmation)", betID, tx.Hash().Hex())
	return tx.Hash(), nil
}

// BetFromTx loads the receipt of a placeBet transaction and decodes its
// BetPlaced event.
func (c *GridHouseContract) BetFromTx(ctx context.Context, txHash common.Hash) (*BetPlacedEvent, error) {
	receipt, err := c.Client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt %s: %w", txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted", txHash.Hex())
	}
	return ParseBetPlaced(receipt, c.Address)
}

// WaitSettled blocks until the settle transaction is mined and decodes its
// BetSettled event.
func (c *GridHouseContract) WaitSettled(ctx context.Context, txHash common.Hash) (*BetSettledEvent, error) {
	tx, _, err := c.Client.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get tx %s: %w", txHash.Hex(), err)
	}

	receipt, err := bind.WaitMined(ctx, c.Client, tx)
	if err != nil {
		return nil, fmt.Errorf("transaction mining failed: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: tx %s status %d", ErrSettleReverted, txHash.Hex(), receipt.Status)
	}
	return ParseBetSettled(receipt, c.Address)
}

// Balance returns the keeper account balance.
func (c *GridHouseContract) Balance(ctx context.Context) (*big.Int, error) {
	return c.Client.BalanceAt(ctx, c.FromAddress, nil)
}

// Close closes the client connection
func (c *GridHouseContract) Close() {
	c.Client.Close()
}
