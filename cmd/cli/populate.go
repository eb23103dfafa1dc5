package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/fsm"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
	"github.com/spf13/cobra"
)

var populateCmd = &cobra.Command{
	Use:    "populate",
	Short:  "fill a devnet with pool activity",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		Populate()
	},
}

const (
	PrivateKeyHex  = "ca3e4c26b9bcfdcc46c9478a5e2c0e1f9b2755d8ea9c9f3ee21f9246b2f32b4d"
	PrivateKeyHex2 = "7d1a9c0b4f6e8d2a5c3b1f0e9d8c7b6a5f4e3d2c1b0a99887766554433221100"

	BaseRPCURL      = "http://node-1:42001"
	BaseAdminRPCURL = "http://node-1:42002"

	ImportRawURL      = BaseAdminRPCURL + "/v1/admin/keystore-import-raw"
	CreatePoolTxURL   = BaseAdminRPCURL + "/v1/admin/tx-create-pool"
	TransferTxURL     = BaseAdminRPCURL + "/v1/admin/tx-transfer"
	DepositTxURL      = BaseAdminRPCURL + "/v1/admin/tx-deposit"
	WithdrawTxURL     = BaseAdminRPCURL + "/v1/admin/tx-withdraw"
	SwapTxURL         = BaseAdminRPCURL + "/v1/admin/tx-swap"
	SyncTxURL         = BaseAdminRPCURL + "/v1/admin/tx-sync"
	SkimTxURL         = BaseAdminRPCURL + "/v1/admin/tx-skim"
	CollectFeesTxURL  = BaseAdminRPCURL + "/v1/admin/tx-collect-fees"
	UpdateParamsTxURL = BaseAdminRPCURL + "/v1/admin/tx-update-params"

	QueryTickURL = BaseRPCURL + "/v1/query/tick"

	Pwd = "test"

	AssetA = 1
	AssetB = 2

	DepositAmountA = 500_000
	DepositAmountB = 1_000_000
	TransferAmount = 50_000
	DonateAmount   = 25_000
	ClaimsAmount   = 50_000
	WithdrawAmount = 100_000
)

func Populate() {
	WaitTicks(1)
	// This data population program executes all 9 envelope types in various scenarios over ~ 10 ticks
	// - Acct: Transfer (an asset, pool claims, and a direct donation to a pool address)
	// - Pool: Create Pool
	// - Pool: Deposit
	// - Pool: Swap
	// - Pool: Withdraw
	// - Mnt:  Sync
	// - Mnt:  Skim
	// - Fee:  Collect Fees
	// - Gov:  Update Params

	// STEP 1:
	// - Two private keys are loaded and imported into the node keystore.
	// - Corresponding public addresses (`address`, `address2`) are extracted.
	// - The pool address for the pair is derived locally, it only depends on the asset ids.
	// NOTE: the devnet genesis funds `address` with both assets and names it the
	// fee authority. This program will not work against any other genesis.

	pk, _ := crypto.NewPrivateKeyFromString(PrivateKeyHex)
	pk2, _ := crypto.NewPrivateKeyFromString(PrivateKeyHex2)

	address := pk.PublicKey().Address()
	address2 := pk2.PublicKey().Address()
	poolAddress := fsm.PoolAddress(AssetA, AssetB)

	DoImportKey(pk, "operator")
	DoImportKey(pk2, "trader")

	// STEP 2:
	// 1. DoUpdateParamsTx(address) – Flips the protocol fee on with `address` as recipient.
	// 2. DoCreatePoolTx(address) – Initializes the empty pool for the pair.
	// 3. Wait 2 ticks
	DoUpdateParamsTx(address, address.Bytes())
	DoCreatePoolTx(address)
	WaitTicks()

	// STEP 3:
	// 1. DoDepositTx(address) – Seeds the pool, the first deposit mints the claim supply.
	// 2. DoTransferTx(address, address2) – Funds the trader with asset A.
	// 3. DoTransferTx(address, poolAddress) – Donates asset B straight to the pool, swept by skim later.
	// 4. Wait 2 ticks
	DoDepositTx(address, poolAddress)
	DoTransferTx(address, address2.Bytes(), AssetA, TransferAmount)
	DoTransferTx(address, poolAddress, AssetB, DonateAmount)
	WaitTicks()

	// STEP 4:
	// 1. DoSwapTx(address2) – The trader sells asset A for asset B.
	// 2. DoSwapTx(address) – The operator sells asset B back for asset A.
	// 3. Wait 2 ticks
	DoSwapTx(address2, poolAddress, AssetA, 10_000, 19_000)
	DoSwapTx(address, poolAddress, AssetB, 20_000, 10_000)
	WaitTicks()

	// STEP 5:
	// 1. DoTransferClaimsTx(address, address2) – Hands part of the claim position to the trader.
	// 2. DoWithdrawTx(address) – Burns claims for a proportional share of both reserves.
	// 3. Wait 2 ticks
	DoTransferClaimsTx(address, address2.Bytes(), poolAddress)
	DoWithdrawTx(address, poolAddress)
	WaitTicks()

	// STEP 6:
	// 1. DoCollectFeesTx(address) – Settles the protocol share of the swap fee growth.
	// 2. DoSkimTx(address, address2) – Sweeps the earlier donation to the trader.
	// 3. DoSyncTx(address) – Reconciles tracked reserves against the pool balances.
	DoCollectFeesTx(address, poolAddress)
	DoSkimTx(address, poolAddress, address2.Bytes())
	DoSyncTx(address, poolAddress)
}

func DoImportKey(pk crypto.PrivateKeyI, nickname string) {
	// log the import
	fmt.Printf("Importing %s key %s into the node keystore\n", nickname, pk.PublicKey().Address().String())
	// import the key
	req := &ksImportRaw{
		PrivateKey: pk.Bytes(),
		Password:   Pwd,
		Nickname:   nickname,
	}
	bz, e := json.MarshalIndent(req, "", "  ")
	if e != nil {
		log.Fatal("Error marshalling:", e)
	}
	if _, e = post(ImportRawURL, bz); e != nil {
		log.Fatal("Error POSTing key import:", e)
	}
}

func DoCreatePoolTx(address crypto.AddressI) {
	// log the tx
	fmt.Printf("Executing create pool for pair %d/%d\n", AssetA, AssetB)
	// send the tx
	tx := &txCreatePool{
		AssetA:   AssetA,
		AssetB:   AssetB,
		Submit:   true,
		Password: Pwd,
		fromFields: fromFields{
			Address: address.Bytes(),
		},
	}
	postTx(tx, CreatePoolTxURL)
}

func DoTransferTx(address crypto.AddressI, to []byte, asset uint64, amount uint64) {
	// log the tx
	fmt.Printf("Executing transfer of %d of asset %d to %x\n", amount, asset, to)
	// send the tx
	tx := &txTransfer{
		Asset:     asset,
		ToAddress: to,
		Amount:    uint256.NewInt(amount),
		Submit:    true,
		Password:  Pwd,
		fromFields: fromFields{
			Address: address.Bytes(),
		},
	}
	postTx(tx, TransferTxURL)
}

func DoTransferClaimsTx(address crypto.AddressI, to, poolAddress []byte) {
	// log the tx
	fmt.Printf("Executing transfer of %d pool claims to %x\n", ClaimsAmount, to)
	// send the tx
	tx := &txTransfer{
		PoolAddress: poolAddress,
		ToAddress:   to,
		Amount:      uint256.NewInt(ClaimsAmount),
		Submit:      true,
		Password:    Pwd,
		fromFields: fromFields{
			Address: address.Bytes(),
		},
	}
	postTx(tx, TransferTxURL)
}

func DoDepositTx(address crypto.AddressI, poolAddress []byte) {
	// log the tx
	fmt.Printf("Executing deposit of %d/%d into pool %x\n", DepositAmountA, DepositAmountB, poolAddress)
	// send the tx
	tx := &txDeposit{
		PoolAddress: poolAddress,
		AmountA:     uint256.NewInt(DepositAmountA),
		AmountB:     uint256.NewInt(DepositAmountB),
		Submit:      true,
		Password:    Pwd,
		fromFields: fromFields{
			Address: address.Bytes(),
		},
	}
	postTx(tx, DepositTxURL)
}

func DoWithdrawTx(address crypto.AddressI, poolAddress []byte) {
	// log the tx
	fmt.Printf("Executing withdraw of %d claims from pool %x\n", WithdrawAmount, poolAddress)
	// send the tx
	tx := &txWithdraw{
		PoolAddress: poolAddress,
		Liquidity:   uint256.NewInt(WithdrawAmount),
		Submit:      true,
		Password:    Pwd,
		fromFields: fromFields{
			Address: address.Bytes(),
		},
	}
	postTx(tx, WithdrawTxURL)
}

func DoSwapTx(address crypto.AddressI, poolAddress []byte, inputAsset uint64, in, out uint64) {
	// log the tx
	fmt.Printf("Executing swap of %d of asset %d for %d against pool %x\n", in, inputAsset, out, poolAddress)
	// send the tx
	tx := &txSwap{
		PoolAddress:  poolAddress,
		InputAsset:   inputAsset,
		InputAmount:  uint256.NewInt(in),
		OutputAmount: uint256.NewInt(out),
		Submit:       true,
		Password:     Pwd,
		fromFields: fromFields{
			Address: address.Bytes(),
		},
	}
	postTx(tx, SwapTxURL)
}

func DoSyncTx(address crypto.AddressI, poolAddress []byte) {
	// log the tx
	fmt.Printf("Executing sync for pool %x\n", poolAddress)
	// send the tx
	tx := &txPool{
		PoolAddress: poolAddress,
		Submit:      true,
		Password:    Pwd,
		fromFields: fromFields{
			Address: address.Bytes(),
		},
	}
	postTx(tx, SyncTxURL)
}

func DoSkimTx(address crypto.AddressI, poolAddress, to []byte) {
	// log the tx
	fmt.Printf("Executing skim of pool %x to %x\n", poolAddress, to)
	// send the tx
	tx := &txSkim{
		PoolAddress: poolAddress,
		ToAddress:   to,
		Submit:      true,
		Password:    Pwd,
		fromFields: fromFields{
			Address: address.Bytes(),
		},
	}
	postTx(tx, SkimTxURL)
}

func DoCollectFeesTx(address crypto.AddressI, poolAddress []byte) {
	// log the tx
	fmt.Printf("Executing collect fees for pool %x\n", poolAddress)
	// send the tx
	tx := &txPool{
		PoolAddress: poolAddress,
		Submit:      true,
		Password:    Pwd,
		fromFields: fromFields{
			Address: address.Bytes(),
		},
	}
	postTx(tx, CollectFeesTxURL)
}

func DoUpdateParamsTx(address crypto.AddressI, feeRecipient []byte) {
	// log the tx
	fmt.Printf("Executing update params, fee enabled with recipient %x\n", feeRecipient)
	// send the tx
	tx := &txUpdateParams{
		FeeEnabled:   true,
		FeeRecipient: feeRecipient,
		Submit:       true,
		Password:     Pwd,
		fromFields: fromFields{
			Address: address.Bytes(),
		},
	}
	postTx(tx, UpdateParamsTxURL)
}

func WaitTicks(numTicks ...int) {
	waitTicks, lastTick := 2, uint32(0)
	type TickResp struct {
		Tick uint32 `json:"tick"`
	}
	if len(numTicks) == 1 {
		waitTicks = numTicks[0]
	}
	for range time.Tick(time.Second) {
		// get the tick
		got, err := post(QueryTickURL, nil)
		if err != nil {
			panic(err)
		}
		// unmarshal response
		resp := &TickResp{}
		if err = json.Unmarshal(got, resp); err != nil {
			panic(err)
		}
		if lastTick != 0 && resp.Tick >= lastTick+uint32(waitTicks) {
			return
		}
		if lastTick == 0 {
			lastTick = resp.Tick
		}
	}
}

var count int

func postTx(obj any, url string) string {
	count++
	// marshal the tx
	bz, e := json.MarshalIndent(obj, "", "  ")
	if e != nil {
		log.Fatal("Error marshalling:", e)
	}
	// send the txn
	hash, e := post(url, bz)
	if e != nil {
		log.Fatal("Error POSTing envelope:", e)
	}
	fmt.Printf("Tx #%d, Hash:%s\n", count, string(hash))
	return strings.Trim(string(hash), "\"")
}

var httpClient = &http.Client{}

func post(url string, bz []byte) ([]byte, error) {
	// generate the request
	request, e := http.NewRequest("POST", url, bytes.NewBuffer(bz))
	if e != nil {
		return nil, fmt.Errorf("Error creating request to %s:%s\n", url, e.Error())
	}
	// execute the request
	resp, e := httpClient.Do(request)
	if e != nil {
		return nil, fmt.Errorf("Error executing request to %s:%s\n", url, e.Error())
	}
	defer resp.Body.Close()
	// check the status code
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("Non 200 status code from %s:%d\n", url, resp.StatusCode)
	}
	// read the request bytes
	respBz, e := io.ReadAll(resp.Body)
	if e != nil {
		return nil, fmt.Errorf("Error reading response from %s:%s\n", url, e.Error())
	}
	// return
	return respBz, nil
}

// =====================================================
// Envelope Request Types
// =====================================================

type txCreatePool struct {
	AssetA   uint64 `json:"assetA"`
	AssetB   uint64 `json:"assetB"`
	Submit   bool   `json:"submit"`
	Password string `json:"password"`
	fromFields
}

type txTransfer struct {
	Asset       uint64       `json:"asset"`
	PoolAddress lib.HexBytes `json:"poolAddress"`
	ToAddress   lib.HexBytes `json:"toAddress"`
	Amount      *uint256.Int `json:"amount"`
	Submit      bool         `json:"submit"`
	Password    string       `json:"password"`
	fromFields
}

type txDeposit struct {
	PoolAddress lib.HexBytes `json:"poolAddress"`
	AmountA     *uint256.Int `json:"amountA"`
	AmountB     *uint256.Int `json:"amountB"`
	Submit      bool         `json:"submit"`
	Password    string       `json:"password"`
	fromFields
}

type txWithdraw struct {
	PoolAddress lib.HexBytes `json:"poolAddress"`
	Liquidity   *uint256.Int `json:"liquidity"`
	Submit      bool         `json:"submit"`
	Password    string       `json:"password"`
	fromFields
}

type txSwap struct {
	PoolAddress  lib.HexBytes `json:"poolAddress"`
	InputAsset   uint64       `json:"inputAsset"`
	InputAmount  *uint256.Int `json:"inputAmount"`
	OutputAmount *uint256.Int `json:"outputAmount"`
	Submit       bool         `json:"submit"`
	Password     string       `json:"password"`
	fromFields
}

// txPool covers the envelopes that only name a pool, sync and collect-fees
type txPool struct {
	PoolAddress lib.HexBytes `json:"poolAddress"`
	Submit      bool         `json:"submit"`
	Password    string       `json:"password"`
	fromFields
}

type txSkim struct {
	PoolAddress lib.HexBytes `json:"poolAddress"`
	ToAddress   lib.HexBytes `json:"toAddress"`
	Submit      bool         `json:"submit"`
	Password    string       `json:"password"`
	fromFields
}

type txUpdateParams struct {
	FeeEnabled   bool         `json:"feeEnabled"`
	FeeRecipient lib.HexBytes `json:"feeRecipient"`
	Submit       bool         `json:"submit"`
	Password     string       `json:"password"`
	fromFields
}

type ksImportRaw struct {
	PrivateKey lib.HexBytes `json:"privateKey"`
	Password   string       `json:"password"`
	Nickname   string       `json:"nickname"`
}

// fromFields contains the address and/or nickname for the from fields
type fromFields struct {
	Address  lib.HexBytes `json:"address"`
	Nickname string       `json:"nickname"`
}
