package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/fsm"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
)

type Client struct {
	rpcURL      string
	adminRPCUrl string
	client      http.Client
}

func NewClient(rpcURL, adminRPCUrl string) *Client {
	return &Client{rpcURL: rpcURL, adminRPCUrl: adminRPCUrl, client: http.Client{}}
}

func (c *Client) Version() (version *string, err lib.ErrorI) {
	version = new(string)
	err = c.get(VersionRouteName, "", version)
	return
}

func (c *Client) Tick() (p *tickResponse, err lib.ErrorI) {
	p = new(tickResponse)
	err = c.post(TickRouteName, nil, p)
	return
}

// TickWithRetry polls the tick endpoint with exponential backoff until the node
// responds or the retry budget runs out
func (c *Client) TickWithRetry(maxRetries uint64) (p *tickResponse, err lib.ErrorI) {
	_ = backoff.Retry(func() error {
		if p, err = c.Tick(); err != nil {
			return err
		}
		return nil
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries))
	return
}

func (c *Client) Account(address string, asset uint64) (p *fsm.Account, err lib.ErrorI) {
	addr, err := lib.StringToBytes(address)
	if err != nil {
		return nil, err
	}
	bz, err := lib.MarshalJSON(accountRequest{addressRequest: addressRequest{addr}, Asset: asset})
	if err != nil {
		return nil, err
	}
	p = new(fsm.Account)
	err = c.post(AccountRouteName, bz, p)
	return
}

func (c *Client) Sequence(address string) (sequence uint64, err lib.ErrorI) {
	addr, err := lib.StringToBytes(address)
	if err != nil {
		return 0, err
	}
	bz, err := lib.MarshalJSON(addressRequest{Address: addr})
	if err != nil {
		return 0, err
	}
	p := new(sequenceResponse)
	if err = c.post(SequenceRouteName, bz, p); err != nil {
		return 0, err
	}
	return p.Sequence, nil
}

func (c *Client) Accounts(params lib.PageParams) (p *lib.Page, err lib.ErrorI) {
	p = new(lib.Page)
	err = c.paginatedRequest(AccountsRouteName, params, p)
	return
}

func (c *Client) Pool(poolAddress string) (p *fsm.Pool, err lib.ErrorI) {
	p = new(fsm.Pool)
	err = c.poolRequest(PoolRouteName, poolAddress, p)
	return
}

func (c *Client) PoolByAssets(assetA, assetB uint64) (p *fsm.Pool, err lib.ErrorI) {
	bz, err := lib.MarshalJSON(assetPairRequest{AssetA: assetA, AssetB: assetB})
	if err != nil {
		return nil, err
	}
	p = new(fsm.Pool)
	err = c.post(PoolByAssetsRouteName, bz, p)
	return
}

func (c *Client) Pools(params lib.PageParams) (p *lib.Page, err lib.ErrorI) {
	p = new(lib.Page)
	err = c.paginatedRequest(PoolsRouteName, params, p)
	return
}

func (c *Client) Claim(poolAddress, owner string) (p *fsm.Claim, err lib.ErrorI) {
	poolAddr, err := lib.StringToBytes(poolAddress)
	if err != nil {
		return nil, err
	}
	ownerAddr, err := lib.StringToBytes(owner)
	if err != nil {
		return nil, err
	}
	bz, err := lib.MarshalJSON(claimRequest{
		poolRequest:    poolRequest{poolAddr},
		addressRequest: addressRequest{ownerAddr},
	})
	if err != nil {
		return nil, err
	}
	p = new(fsm.Claim)
	err = c.post(ClaimRouteName, bz, p)
	return
}

func (c *Client) Claims(poolAddress string, params lib.PageParams) (p *lib.Page, err lib.ErrorI) {
	poolAddr, err := lib.StringToBytes(poolAddress)
	if err != nil {
		return nil, err
	}
	bz, err := lib.MarshalJSON(paginatedPoolRequest{
		poolRequest: poolRequest{poolAddr},
		PageParams:  params,
	})
	if err != nil {
		return nil, err
	}
	p = new(lib.Page)
	err = c.post(ClaimsRouteName, bz, p)
	return
}

func (c *Client) Supply(poolAddress string) (p *supplyResponse, err lib.ErrorI) {
	p = new(supplyResponse)
	err = c.poolRequest(SupplyRouteName, poolAddress, p)
	return
}

func (c *Client) Quote(poolAddress string, inputAsset uint64, inputAmount *uint256.Int) (p *quoteResponse, err lib.ErrorI) {
	poolAddr, err := lib.StringToBytes(poolAddress)
	if err != nil {
		return nil, err
	}
	bz, err := lib.MarshalJSON(quoteRequest{
		poolRequest: poolRequest{poolAddr},
		InputAsset:  inputAsset,
		InputAmount: inputAmount,
	})
	if err != nil {
		return nil, err
	}
	p = new(quoteResponse)
	err = c.post(QuoteRouteName, bz, p)
	return
}

func (c *Client) Price(poolAddress string, lookbackTicks uint32) (p *priceResponse, err lib.ErrorI) {
	poolAddr, err := lib.StringToBytes(poolAddress)
	if err != nil {
		return nil, err
	}
	bz, err := lib.MarshalJSON(priceRequest{
		poolRequest:   poolRequest{poolAddr},
		LookbackTicks: lookbackTicks,
	})
	if err != nil {
		return nil, err
	}
	p = new(priceResponse)
	err = c.post(PriceRouteName, bz, p)
	return
}

func (c *Client) Params() (p *fsm.Params, err lib.ErrorI) {
	p = new(fsm.Params)
	err = c.post(ParamsRouteName, nil, p)
	return
}

func (c *Client) State() (p *fsm.GenesisState, err lib.ErrorI) {
	p = new(fsm.GenesisState)
	err = c.get(StateRouteName, "", p)
	return
}

// StateDiff returns the rendered difference between the committed state and the
// pending state the queued envelopes would produce
func (c *Client) StateDiff() (diff string, err lib.ErrorI) {
	resp, e := c.client.Post(c.url(StateDiffRouteName, ""), ApplicationJSON, bytes.NewBuffer(nil))
	if e != nil {
		return "", ErrPostRequest(e)
	}
	bz, e := io.ReadAll(resp.Body)
	if e != nil {
		return "", ErrReadBody(e)
	}
	return string(bz), nil
}

func (c *Client) EventsByTick(tick uint32, params lib.PageParams) (p *lib.Page, err lib.ErrorI) {
	bz, err := lib.MarshalJSON(paginatedTickRequest{
		tickRequest: tickRequest{tick},
		PageParams:  params,
	})
	if err != nil {
		return nil, err
	}
	p = new(lib.Page)
	err = c.post(EventsByTickRouteName, bz, p)
	return
}

func (c *Client) Events(params lib.PageParams) (p *lib.Page, err lib.ErrorI) {
	p = new(lib.Page)
	err = c.paginatedRequest(EventsRouteName, params, p)
	return
}

func (c *Client) Pending(params lib.PageParams) (p *lib.Page, err lib.ErrorI) {
	p = new(lib.Page)
	err = c.paginatedRequest(PendingRouteName, params, p)
	return
}

func (c *Client) FailedEnvelopes(address string, params lib.PageParams) (p *lib.Page, err lib.ErrorI) {
	addr, err := lib.StringToBytes(address)
	if err != nil {
		return nil, err
	}
	bz, err := lib.MarshalJSON(paginatedAddressRequest{
		addressRequest: addressRequest{addr},
		PageParams:     params,
	})
	if err != nil {
		return nil, err
	}
	p = new(lib.Page)
	err = c.post(FailedRouteName, bz, p)
	return
}

func (c *Client) EnvelopeJSON(envelope json.RawMessage) (hash *string, err lib.ErrorI) {
	hash = new(string)
	err = c.post(EnvelopeRouteName, envelope, hash)
	return
}

func (c *Client) Envelope(envelope *fsm.Envelope) (hash *string, err lib.ErrorI) {
	bz, err := lib.MarshalJSON(envelope)
	if err != nil {
		return nil, err
	}
	hash = new(string)
	err = c.post(EnvelopeRouteName, bz, hash)
	return
}

func (c *Client) Keystore() (keystore *crypto.Keystore, err lib.ErrorI) {
	keystore = new(crypto.Keystore)
	err = c.get(KeystoreRouteName, "", keystore, true)
	return
}

func (c *Client) KeystoreNewKey(password, nickname string) (address *string, err lib.ErrorI) {
	address = new(string)
	err = c.keystoreRequest(KeystoreNewKeyRouteName, keystoreRequest{
		passwordRequest:     passwordRequest{password},
		EncryptedPrivateKey: crypto.EncryptedPrivateKey{Nickname: nickname},
	}, address)
	return
}

func (c *Client) KeystoreImport(address, nickname string, epk crypto.EncryptedPrivateKey) (returned lib.HexBytes, err lib.ErrorI) {
	bz, err := lib.NewHexBytesFromString(address)
	if err != nil {
		return nil, err
	}
	epk.Nickname = nickname
	returned = make(lib.HexBytes, 0)
	err = c.keystoreRequest(KeystoreImportRouteName, keystoreRequest{
		addressRequest:      addressRequest{bz},
		EncryptedPrivateKey: epk,
	}, &returned)
	return
}

func (c *Client) KeystoreImportRaw(privateKey, password, nickname string) (address *string, err lib.ErrorI) {
	bz, err := lib.NewHexBytesFromString(privateKey)
	if err != nil {
		return nil, err
	}
	address = new(string)
	err = c.keystoreRequest(KeystoreImportRawName, keystoreRequest{
		PrivateKey:          bz,
		passwordRequest:     passwordRequest{password},
		EncryptedPrivateKey: crypto.EncryptedPrivateKey{Nickname: nickname},
	}, address)
	return
}

type AddrOrNickname struct {
	Address  string
	Nickname string
}

func (c *Client) KeystoreDelete(addrOrNickname AddrOrNickname) (returned lib.HexBytes, err lib.ErrorI) {
	req := keystoreRequest{
		EncryptedPrivateKey: crypto.EncryptedPrivateKey{Nickname: addrOrNickname.Nickname},
	}
	if addrOrNickname.Address != "" {
		var bz lib.HexBytes
		bz, err = lib.NewHexBytesFromString(addrOrNickname.Address)
		if err != nil {
			return
		}
		req.addressRequest = addressRequest{bz}
	}
	returned = make(lib.HexBytes, 0)
	err = c.keystoreRequest(KeystoreDeleteRouteName, req, &returned)
	return
}

func (c *Client) KeystoreGet(addrOrNickname AddrOrNickname, password string) (returned *crypto.KeyGroup, err lib.ErrorI) {
	req := keystoreRequest{
		passwordRequest:     passwordRequest{password},
		EncryptedPrivateKey: crypto.EncryptedPrivateKey{Nickname: addrOrNickname.Nickname},
	}
	if addrOrNickname.Address != "" {
		var bz lib.HexBytes
		bz, err = lib.NewHexBytesFromString(addrOrNickname.Address)
		if err != nil {
			return
		}
		req.addressRequest = addressRequest{bz}
	}
	returned = new(crypto.KeyGroup)
	err = c.keystoreRequest(KeystoreGetRouteName, req, returned)
	return
}

func (c *Client) TxCreatePool(from AddrOrNickname, assetA, assetB uint64, pwd string, submit bool, optSequence uint64) (hash *string, envelope json.RawMessage, e lib.ErrorI) {
	req, err := setFrom(from, envelopeRequest{
		AssetA:          assetA,
		AssetB:          assetB,
		Sequence:        optSequence,
		Submit:          submit,
		passwordRequest: passwordRequest{Password: pwd},
	})
	if err != nil {
		return nil, nil, err
	}
	return c.envelopeRequest(TxCreatePoolRouteName, req)
}

func (c *Client) TxTransfer(from AddrOrNickname, asset uint64, poolAddress, toAddress string, amount *uint256.Int, pwd string, submit bool, optSequence uint64) (hash *string, envelope json.RawMessage, e lib.ErrorI) {
	toAddr, err := lib.NewHexBytesFromString(toAddress)
	if err != nil {
		return nil, nil, err
	}
	req := envelopeRequest{
		Asset:           asset,
		ToAddress:       toAddr,
		Amount:          amount,
		Sequence:        optSequence,
		Submit:          submit,
		passwordRequest: passwordRequest{Password: pwd},
	}
	if poolAddress != "" {
		if req.PoolAddress, err = lib.NewHexBytesFromString(poolAddress); err != nil {
			return nil, nil, err
		}
	}
	if req, err = setFrom(from, req); err != nil {
		return nil, nil, err
	}
	return c.envelopeRequest(TxTransferRouteName, req)
}

func (c *Client) TxDeposit(from AddrOrNickname, poolAddress string, amountA, amountB *uint256.Int, pwd string, submit bool, optSequence uint64) (hash *string, envelope json.RawMessage, e lib.ErrorI) {
	poolAddr, err := lib.NewHexBytesFromString(poolAddress)
	if err != nil {
		return nil, nil, err
	}
	req, err := setFrom(from, envelopeRequest{
		PoolAddress:     poolAddr,
		AmountA:         amountA,
		AmountB:         amountB,
		Sequence:        optSequence,
		Submit:          submit,
		passwordRequest: passwordRequest{Password: pwd},
	})
	if err != nil {
		return nil, nil, err
	}
	return c.envelopeRequest(TxDepositRouteName, req)
}

func (c *Client) TxWithdraw(from AddrOrNickname, poolAddress string, liquidity *uint256.Int, pwd string, submit bool, optSequence uint64) (hash *string, envelope json.RawMessage, e lib.ErrorI) {
	poolAddr, err := lib.NewHexBytesFromString(poolAddress)
	if err != nil {
		return nil, nil, err
	}
	req, err := setFrom(from, envelopeRequest{
		PoolAddress:     poolAddr,
		Liquidity:       liquidity,
		Sequence:        optSequence,
		Submit:          submit,
		passwordRequest: passwordRequest{Password: pwd},
	})
	if err != nil {
		return nil, nil, err
	}
	return c.envelopeRequest(TxWithdrawRouteName, req)
}

func (c *Client) TxSwap(from AddrOrNickname, poolAddress string, inputAsset uint64, inputAmount, outputAmount *uint256.Int, pwd string, submit bool, optSequence uint64) (hash *string, envelope json.RawMessage, e lib.ErrorI) {
	poolAddr, err := lib.NewHexBytesFromString(poolAddress)
	if err != nil {
		return nil, nil, err
	}
	req, err := setFrom(from, envelopeRequest{
		PoolAddress:     poolAddr,
		InputAsset:      inputAsset,
		InputAmount:     inputAmount,
		OutputAmount:    outputAmount,
		Sequence:        optSequence,
		Submit:          submit,
		passwordRequest: passwordRequest{Password: pwd},
	})
	if err != nil {
		return nil, nil, err
	}
	return c.envelopeRequest(TxSwapRouteName, req)
}

func (c *Client) TxSync(from AddrOrNickname, poolAddress string, pwd string, submit bool, optSequence uint64) (hash *string, envelope json.RawMessage, e lib.ErrorI) {
	return c.txPool(TxSyncRouteName, from, poolAddress, pwd, submit, optSequence)
}

func (c *Client) TxSkim(from AddrOrNickname, poolAddress, toAddress string, pwd string, submit bool, optSequence uint64) (hash *string, envelope json.RawMessage, e lib.ErrorI) {
	poolAddr, err := lib.NewHexBytesFromString(poolAddress)
	if err != nil {
		return nil, nil, err
	}
	req := envelopeRequest{
		PoolAddress:     poolAddr,
		Sequence:        optSequence,
		Submit:          submit,
		passwordRequest: passwordRequest{Password: pwd},
	}
	if toAddress != "" {
		if req.ToAddress, err = lib.NewHexBytesFromString(toAddress); err != nil {
			return nil, nil, err
		}
	}
	if req, err = setFrom(from, req); err != nil {
		return nil, nil, err
	}
	return c.envelopeRequest(TxSkimRouteName, req)
}

func (c *Client) TxCollectFees(from AddrOrNickname, poolAddress string, pwd string, submit bool, optSequence uint64) (hash *string, envelope json.RawMessage, e lib.ErrorI) {
	return c.txPool(TxCollectFeesRouteName, from, poolAddress, pwd, submit, optSequence)
}

func (c *Client) TxUpdateParams(from AddrOrNickname, feeEnabled bool, feeRecipient string, pwd string, submit bool, optSequence uint64) (hash *string, envelope json.RawMessage, e lib.ErrorI) {
	req := envelopeRequest{
		FeeEnabled:      feeEnabled,
		Sequence:        optSequence,
		Submit:          submit,
		passwordRequest: passwordRequest{Password: pwd},
	}
	var err lib.ErrorI
	if feeRecipient != "" {
		if req.FeeRecipient, err = lib.NewHexBytesFromString(feeRecipient); err != nil {
			return nil, nil, err
		}
	}
	if req, err = setFrom(from, req); err != nil {
		return nil, nil, err
	}
	return c.envelopeRequest(TxUpdateParamsRouteName, req)
}

func (c *Client) StateExport() (genesis string, err lib.ErrorI) {
	resp, e := c.client.Get(c.url(StateExportRouteName, "", true))
	if e != nil {
		return "", ErrGetRequest(e)
	}
	bz, e := io.ReadAll(resp.Body)
	if e != nil {
		return "", ErrReadBody(e)
	}
	if resp.StatusCode != http.StatusOK {
		return "", ErrHttpStatus(resp.Status, resp.StatusCode, bz)
	}
	return string(bz), nil
}

func (c *Client) ResourceUsage() (returned *resourceUsageResponse, err lib.ErrorI) {
	returned = new(resourceUsageResponse)
	err = c.get(ResourceUsageRouteName, "", returned, true)
	return
}

func (c *Client) Config() (returned *lib.Config, err lib.ErrorI) {
	returned = new(lib.Config)
	err = c.get(ConfigRouteName, "", returned, true)
	return
}

func (c *Client) Logs() (logs string, err lib.ErrorI) {
	resp, e := c.client.Get(c.url(LogsRouteName, "", true))
	if e != nil {
		return "", ErrGetRequest(e)
	}
	bz, e := io.ReadAll(resp.Body)
	if e != nil {
		return "", ErrReadBody(e)
	}
	return string(bz), nil
}

// setFrom fills the request's sender fields from an address string or nickname
func setFrom(from AddrOrNickname, req envelopeRequest) (envelopeRequest, lib.ErrorI) {
	if from.Address != "" {
		fromHex, err := lib.NewHexBytesFromString(from.Address)
		if err != nil {
			return envelopeRequest{}, err
		}
		req.Address = fromHex
	}

	if from.Nickname != "" {
		req.Nickname = from.Nickname
	}

	return req, nil
}

// txPool builds the envelope requests that carry only a pool address
func (c *Client) txPool(route string, from AddrOrNickname, poolAddress, pwd string, submit bool, optSequence uint64) (hash *string, envelope json.RawMessage, e lib.ErrorI) {
	poolAddr, err := lib.NewHexBytesFromString(poolAddress)
	if err != nil {
		return nil, nil, err
	}
	req, err := setFrom(from, envelopeRequest{
		PoolAddress:     poolAddr,
		Sequence:        optSequence,
		Submit:          submit,
		passwordRequest: passwordRequest{Password: pwd},
	})
	if err != nil {
		return nil, nil, err
	}
	return c.envelopeRequest(route, req)
}

// envelopeRequest posts an envelope building request to the admin API, returning
// either the submission hash or the signed envelope JSON
func (c *Client) envelopeRequest(routeName string, request envelopeRequest) (hash *string, envelope json.RawMessage, e lib.ErrorI) {
	bz, e := lib.MarshalJSON(request)
	if e != nil {
		return
	}
	if request.Submit {
		hash = new(string)
		e = c.post(routeName, bz, hash, true)
	} else {
		envelope = json.RawMessage{}
		e = c.post(routeName, bz, &envelope, true)
	}
	return
}

func (c *Client) keystoreRequest(routeName string, request keystoreRequest, ptr any) (err lib.ErrorI) {
	bz, err := lib.MarshalJSON(request)
	if err != nil {
		return
	}
	err = c.post(routeName, bz, ptr, true)
	return
}

func (c *Client) paginatedRequest(routeName string, p lib.PageParams, ptr any) (err lib.ErrorI) {
	bz, err := lib.MarshalJSON(paginatedRequest{PageParams: p})
	if err != nil {
		return
	}
	err = c.post(routeName, bz, ptr)
	return
}

func (c *Client) poolRequest(routeName, poolAddress string, ptr any) (err lib.ErrorI) {
	poolAddr, err := lib.StringToBytes(poolAddress)
	if err != nil {
		return
	}
	bz, err := lib.MarshalJSON(poolRequest{PoolAddress: poolAddr})
	if err != nil {
		return
	}
	err = c.post(routeName, bz, ptr)
	return
}

func (c *Client) url(routeName, param string, admin ...bool) string {
	// route privileged calls to the admin url, everything else to the query url
	base := c.rpcURL
	if admin != nil && admin[0] {
		base = c.adminRPCUrl
	}
	return base + routePaths[routeName].Path + param
}

func (c *Client) post(routeName string, json []byte, ptr any, admin ...bool) lib.ErrorI {
	resp, err := c.client.Post(c.url(routeName, "", admin...), ApplicationJSON, bytes.NewBuffer(json))
	if err != nil {
		return ErrPostRequest(err)
	}
	return c.unmarshal(resp, ptr)
}

func (c *Client) get(routeName, param string, ptr any, admin ...bool) lib.ErrorI {
	resp, err := c.client.Get(c.url(routeName, param, admin...))
	if err != nil {
		return ErrGetRequest(err)
	}
	return c.unmarshal(resp, ptr)
}

func (c *Client) unmarshal(resp *http.Response, ptr any) lib.ErrorI {
	bz, err := io.ReadAll(resp.Body)
	if err != nil {
		return ErrReadBody(err)
	}
	if resp.StatusCode != http.StatusOK {
		return ErrHttpStatus(resp.Status, resp.StatusCode, bz)
	}
	return lib.UnmarshalJSON(bz, ptr)
}
