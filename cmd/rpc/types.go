package rpc

import (
	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
)

// =====================================================
// Query Request Types
// =====================================================

type addressRequest struct {
	Address lib.HexBytes `json:"address"`
}

type poolRequest struct {
	PoolAddress lib.HexBytes `json:"poolAddress"`
}

type assetPairRequest struct {
	AssetA uint64 `json:"assetA"`
	AssetB uint64 `json:"assetB"`
}

type accountRequest struct {
	addressRequest
	Asset uint64 `json:"asset"`
}

type claimRequest struct {
	poolRequest
	addressRequest
}

type passwordRequest struct {
	Password string `json:"password"`
}

type nicknameRequest struct {
	Nickname string `json:"nickname"`
}

type paginatedRequest struct {
	lib.PageParams
}

type paginatedAddressRequest struct {
	addressRequest
	lib.PageParams
}

type paginatedPoolRequest struct {
	poolRequest
	lib.PageParams
}

type tickRequest struct {
	Tick uint32 `json:"tick"`
}

type paginatedTickRequest struct {
	tickRequest
	lib.PageParams
}

type quoteRequest struct {
	poolRequest
	InputAsset  uint64       `json:"inputAsset"`
	InputAmount *uint256.Int `json:"inputAmount"`
}

type priceRequest struct {
	poolRequest
	// number of ticks of reserve commit history to fold into the statistics, 0 uses the default window
	LookbackTicks uint32 `json:"lookbackTicks"`
}

// keystoreRequest carries every keystore operation's inputs; the embedded
// EncryptedPrivateKey supplies the nickname field for all of them
type keystoreRequest struct {
	addressRequest
	passwordRequest
	PrivateKey lib.HexBytes `json:"privateKey"`
	crypto.EncryptedPrivateKey
}

// =====================================================
// Query Response Types
// =====================================================

type tickResponse struct {
	Tick uint32 `json:"tick"`
}

type sequenceResponse struct {
	Sequence uint64 `json:"sequence"`
}

type supplyResponse struct {
	PoolAddress lib.HexBytes `json:"poolAddress"`
	Supply      *uint256.Int `json:"supply"`
}

type quoteResponse struct {
	PoolAddress  lib.HexBytes `json:"poolAddress"`
	InputAsset   uint64       `json:"inputAsset"`
	OutputAsset  uint64       `json:"outputAsset"`
	InputAmount  *uint256.Int `json:"inputAmount"`
	OutputAmount *uint256.Int `json:"outputAmount"`
}

// priceResponse carries spot and time weighted price statistics for the A->B direction,
// quoted as units of asset B per unit of asset A
type priceResponse struct {
	PoolAddress lib.HexBytes `json:"poolAddress"`
	Samples     int          `json:"samples"`
	FirstTick   uint32       `json:"firstTick"`
	LastTick    uint32       `json:"lastTick"`
	Spot        float64      `json:"spot"`
	TWAP        float64      `json:"twap"`
	StdDev      float64      `json:"stdDev"`
	Min         float64      `json:"min"`
	Max         float64      `json:"max"`
}

type ProcessResourceUsage struct {
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	CreateTime    string  `json:"createTime"`
	FDCount       uint64  `json:"fdCount"`
	ThreadCount   uint64  `json:"threadCount"`
	MemoryPercent float64 `json:"usedMemoryPercent"`
	CPUPercent    float64 `json:"usedCPUPercent"`
}

type SystemResourceUsage struct {
	// ram
	TotalRAM       uint64  `json:"totalRAM"`
	AvailableRAM   uint64  `json:"availableRAM"`
	UsedRAM        uint64  `json:"usedRAM"`
	UsedRAMPercent float64 `json:"usedRAMPercent"`
	FreeRAM        uint64  `json:"freeRAM"`
	// CPU
	UsedCPUPercent float64 `json:"usedCPUPercent"`
	UserCPU        float64 `json:"userCPU"`
	SystemCPU      float64 `json:"systemCPU"`
	IdleCPU        float64 `json:"idleCPU"`
	// disk
	TotalDisk       uint64  `json:"totalDisk"`
	UsedDisk        uint64  `json:"usedDisk"`
	UsedDiskPercent float64 `json:"usedDiskPercent"`
	FreeDisk        uint64  `json:"freeDisk"`
	// io
	ReceivedBytesIO uint64 `json:"ReceivedBytesIO"`
	WrittenBytesIO  uint64 `json:"WrittenBytesIO"`
}

type resourceUsageResponse struct {
	Process ProcessResourceUsage `json:"process"`
	System  SystemResourceUsage  `json:"system"`
}

// =====================================================
// Envelope Request Types
// =====================================================

// signerFields contains the signer address and/or nickname for the signer fields
type signerFields struct {
	Signer         lib.HexBytes `json:"signer"`
	SignerNickname string       `json:"signerNickname"`
}

// envelopeRequest is used server side to unmarshall all envelope build requests
type envelopeRequest struct {
	PoolAddress  lib.HexBytes `json:"poolAddress"`
	ToAddress    lib.HexBytes `json:"toAddress"`
	FeeRecipient lib.HexBytes `json:"feeRecipient"`
	Asset        uint64       `json:"asset"`
	AssetA       uint64       `json:"assetA"`
	AssetB       uint64       `json:"assetB"`
	InputAsset   uint64       `json:"inputAsset"`
	Amount       *uint256.Int `json:"amount"`
	AmountA      *uint256.Int `json:"amountA"`
	AmountB      *uint256.Int `json:"amountB"`
	InputAmount  *uint256.Int `json:"inputAmount"`
	OutputAmount *uint256.Int `json:"outputAmount"`
	Liquidity    *uint256.Int `json:"liquidity"`
	FeeEnabled   bool         `json:"feeEnabled"`
	Sequence     uint64       `json:"sequence"`
	Submit       bool         `json:"submit"`
	signerFields
	addressRequest
	nicknameRequest
	passwordRequest
}
