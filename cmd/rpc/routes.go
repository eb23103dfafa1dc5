package rpc

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// Millpond RPC Paths
const (
	VersionRoutePath      = "/v1/"
	EnvelopeRoutePath     = "/v1/envelope"
	TickRoutePath         = "/v1/query/tick"
	AccountRoutePath      = "/v1/query/account"
	AccountsRoutePath     = "/v1/query/accounts"
	SequenceRoutePath     = "/v1/query/sequence"
	PoolRoutePath         = "/v1/query/pool"
	PoolByAssetsRoutePath = "/v1/query/pool-by-assets"
	PoolsRoutePath        = "/v1/query/pools"
	ClaimRoutePath        = "/v1/query/claim"
	ClaimsRoutePath       = "/v1/query/claims"
	SupplyRoutePath       = "/v1/query/supply"
	QuoteRoutePath        = "/v1/query/quote"
	PriceRoutePath        = "/v1/query/price"
	ParamsRoutePath       = "/v1/query/params"
	StateRoutePath        = "/v1/query/state"
	StateDiffRoutePath    = "/v1/query/state-diff"
	StateDiffGetRoutePath = "/v1/query/state-diff"
	EventsByTickRoutePath = "/v1/query/events-by-tick"
	EventsRoutePath       = "/v1/query/events"
	PendingRoutePath      = "/v1/query/pending"
	FailedRoutePath       = "/v1/query/failed-envelopes"
	// debug
	DebugBlockedRoutePath   = "/debug/blocked"
	DebugHeapRoutePath      = "/debug/heap"
	DebugCPURoutePath       = "/debug/cpu"
	DebugGoroutineRoutePath = "/debug/goroutine"
	// admin
	KeystoreRoutePath          = "/v1/admin/keystore"
	KeystoreNewKeyRoutePath    = "/v1/admin/keystore-new-key"
	KeystoreImportRoutePath    = "/v1/admin/keystore-import"
	KeystoreImportRawRoutePath = "/v1/admin/keystore-import-raw"
	KeystoreDeleteRoutePath    = "/v1/admin/keystore-delete"
	KeystoreGetRoutePath       = "/v1/admin/keystore-get"
	TxCreatePoolRoutePath      = "/v1/admin/tx-create-pool"
	TxTransferRoutePath        = "/v1/admin/tx-transfer"
	TxDepositRoutePath         = "/v1/admin/tx-deposit"
	TxWithdrawRoutePath        = "/v1/admin/tx-withdraw"
	TxSwapRoutePath            = "/v1/admin/tx-swap"
	TxSyncRoutePath            = "/v1/admin/tx-sync"
	TxSkimRoutePath            = "/v1/admin/tx-skim"
	TxCollectFeesRoutePath     = "/v1/admin/tx-collect-fees"
	TxUpdateParamsRoutePath    = "/v1/admin/tx-update-params"
	StateExportRoutePath       = "/v1/admin/state-export"
	ResourceUsageRoutePath     = "/v1/admin/resource-usage"
	ConfigRoutePath            = "/v1/admin/config"
	LogsRoutePath              = "/v1/admin/log"
)

const (
	VersionRouteName        = "version"
	EnvelopeRouteName       = "envelope"
	TickRouteName           = "tick"
	AccountRouteName        = "account"
	AccountsRouteName       = "accounts"
	SequenceRouteName       = "sequence"
	PoolRouteName           = "pool"
	PoolByAssetsRouteName   = "pool-by-assets"
	PoolsRouteName          = "pools"
	ClaimRouteName          = "claim"
	ClaimsRouteName         = "claims"
	SupplyRouteName         = "supply"
	QuoteRouteName          = "quote"
	PriceRouteName          = "price"
	ParamsRouteName         = "params"
	StateRouteName          = "state"
	StateDiffRouteName      = "state-diff"
	StateDiffGetRouteName   = "state-diff-get"
	EventsByTickRouteName   = "events-by-tick"
	EventsRouteName         = "events"
	PendingRouteName        = "pending"
	FailedRouteName         = "failed-envelopes"
	DebugBlockedRouteName   = "blocked"
	DebugHeapRouteName      = "heap"
	DebugCPURouteName       = "cpu"
	DebugGoroutineRouteName = "goroutine"
	KeystoreRouteName       = "keystore"
	KeystoreNewKeyRouteName = "keystore-new-key"
	KeystoreImportRouteName = "keystore-import"
	KeystoreImportRawName   = "keystore-import-raw"
	KeystoreDeleteRouteName = "keystore-delete"
	KeystoreGetRouteName    = "keystore-get"
	TxCreatePoolRouteName   = "tx-create-pool"
	TxTransferRouteName     = "tx-transfer"
	TxDepositRouteName      = "tx-deposit"
	TxWithdrawRouteName     = "tx-withdraw"
	TxSwapRouteName         = "tx-swap"
	TxSyncRouteName         = "tx-sync"
	TxSkimRouteName         = "tx-skim"
	TxCollectFeesRouteName  = "tx-collect-fees"
	TxUpdateParamsRouteName = "tx-update-params"
	StateExportRouteName    = "state-export"
	ResourceUsageRouteName  = "resource-usage"
	ConfigRouteName         = "config"
	LogsRouteName           = "logs"
)

// routes contains the method and path for a millpond command
type routes map[string]struct {
	Method string
	Path   string
}

// routePaths is a mapping from route names to their corresponding HTTP methods and paths.
var routePaths = routes{
	VersionRouteName:      {Method: http.MethodGet, Path: VersionRoutePath},
	EnvelopeRouteName:     {Method: http.MethodPost, Path: EnvelopeRoutePath},
	TickRouteName:         {Method: http.MethodPost, Path: TickRoutePath},
	AccountRouteName:      {Method: http.MethodPost, Path: AccountRoutePath},
	AccountsRouteName:     {Method: http.MethodPost, Path: AccountsRoutePath},
	SequenceRouteName:     {Method: http.MethodPost, Path: SequenceRoutePath},
	PoolRouteName:         {Method: http.MethodPost, Path: PoolRoutePath},
	PoolByAssetsRouteName: {Method: http.MethodPost, Path: PoolByAssetsRoutePath},
	PoolsRouteName:        {Method: http.MethodPost, Path: PoolsRoutePath},
	ClaimRouteName:        {Method: http.MethodPost, Path: ClaimRoutePath},
	ClaimsRouteName:       {Method: http.MethodPost, Path: ClaimsRoutePath},
	SupplyRouteName:       {Method: http.MethodPost, Path: SupplyRoutePath},
	QuoteRouteName:        {Method: http.MethodPost, Path: QuoteRoutePath},
	PriceRouteName:        {Method: http.MethodPost, Path: PriceRoutePath},
	ParamsRouteName:       {Method: http.MethodPost, Path: ParamsRoutePath},
	StateRouteName:        {Method: http.MethodGet, Path: StateRoutePath},
	StateDiffRouteName:    {Method: http.MethodPost, Path: StateDiffRoutePath},
	StateDiffGetRouteName: {Method: http.MethodGet, Path: StateDiffGetRoutePath},
	EventsByTickRouteName: {Method: http.MethodPost, Path: EventsByTickRoutePath},
	EventsRouteName:       {Method: http.MethodPost, Path: EventsRoutePath},
	PendingRouteName:      {Method: http.MethodPost, Path: PendingRoutePath},
	FailedRouteName:       {Method: http.MethodPost, Path: FailedRoutePath},
	// debug
	DebugBlockedRouteName:   {Method: http.MethodGet, Path: DebugBlockedRoutePath},
	DebugHeapRouteName:      {Method: http.MethodGet, Path: DebugHeapRoutePath},
	DebugCPURouteName:       {Method: http.MethodGet, Path: DebugCPURoutePath},
	DebugGoroutineRouteName: {Method: http.MethodGet, Path: DebugGoroutineRoutePath},
	// admin
	KeystoreRouteName:       {Method: http.MethodGet, Path: KeystoreRoutePath},
	KeystoreNewKeyRouteName: {Method: http.MethodPost, Path: KeystoreNewKeyRoutePath},
	KeystoreImportRouteName: {Method: http.MethodPost, Path: KeystoreImportRoutePath},
	KeystoreImportRawName:   {Method: http.MethodPost, Path: KeystoreImportRawRoutePath},
	KeystoreDeleteRouteName: {Method: http.MethodPost, Path: KeystoreDeleteRoutePath},
	KeystoreGetRouteName:    {Method: http.MethodPost, Path: KeystoreGetRoutePath},
	TxCreatePoolRouteName:   {Method: http.MethodPost, Path: TxCreatePoolRoutePath},
	TxTransferRouteName:     {Method: http.MethodPost, Path: TxTransferRoutePath},
	TxDepositRouteName:      {Method: http.MethodPost, Path: TxDepositRoutePath},
	TxWithdrawRouteName:     {Method: http.MethodPost, Path: TxWithdrawRoutePath},
	TxSwapRouteName:         {Method: http.MethodPost, Path: TxSwapRoutePath},
	TxSyncRouteName:         {Method: http.MethodPost, Path: TxSyncRoutePath},
	TxSkimRouteName:         {Method: http.MethodPost, Path: TxSkimRoutePath},
	TxCollectFeesRouteName:  {Method: http.MethodPost, Path: TxCollectFeesRoutePath},
	TxUpdateParamsRouteName: {Method: http.MethodPost, Path: TxUpdateParamsRoutePath},
	StateExportRouteName:    {Method: http.MethodGet, Path: StateExportRoutePath},
	ResourceUsageRouteName:  {Method: http.MethodGet, Path: ResourceUsageRoutePath},
	ConfigRouteName:         {Method: http.MethodGet, Path: ConfigRoutePath},
	LogsRouteName:           {Method: http.MethodGet, Path: LogsRoutePath},
}

// httpRouteHandlers is a custom type that maps strings to httprouter handle functions
type httpRouteHandlers map[string]httprouter.Handle

// createRouter initializes and returns a new HTTP router with predefined route handlers.
func createRouter(s *Server) *httprouter.Router {
	var r = httpRouteHandlers{
		VersionRouteName:      s.Version,
		EnvelopeRouteName:     s.Envelope,
		TickRouteName:         s.Tick,
		AccountRouteName:      s.Account,
		AccountsRouteName:     s.Accounts,
		SequenceRouteName:     s.Sequence,
		PoolRouteName:         s.Pool,
		PoolByAssetsRouteName: s.PoolByAssets,
		PoolsRouteName:        s.Pools,
		ClaimRouteName:        s.Claim,
		ClaimsRouteName:       s.Claims,
		SupplyRouteName:       s.Supply,
		QuoteRouteName:        s.Quote,
		PriceRouteName:        s.Price,
		ParamsRouteName:       s.Params,
		StateRouteName:        s.State,
		StateDiffRouteName:    s.StateDiff,
		StateDiffGetRouteName: s.StateDiff,
		EventsByTickRouteName: s.EventsByTick,
		EventsRouteName:       s.Events,
		PendingRouteName:      s.Pending,
		FailedRouteName:       s.FailedEnvelopes,
	}

	// Initialize a new router using the httprouter package.
	router := httprouter.New()

	for name, handler := range r {
		// Retrieve the path configuration for the current route name.
		path := routePaths[name]

		// Add the handler for the specific path and HTTP method to the router.
		router.Handle(path.Method, path.Path, logHandler{path.Path, handler}.Handle)
	}

	return router
}

// createAdminRouter initializes and returns a new HTTP router with predefined admin route handlers.
func createAdminRouter(s *Server) *httprouter.Router {
	var r = httpRouteHandlers{
		KeystoreRouteName:       s.Keystore,
		KeystoreNewKeyRouteName: s.KeystoreNewKey,
		KeystoreImportRouteName: s.KeystoreImport,
		KeystoreImportRawName:   s.KeystoreImportRaw,
		KeystoreDeleteRouteName: s.KeystoreDelete,
		KeystoreGetRouteName:    s.KeystoreGetKeyGroup,
		TxCreatePoolRouteName:   s.EnvelopeCreatePool,
		TxTransferRouteName:     s.EnvelopeTransfer,
		TxDepositRouteName:      s.EnvelopeDeposit,
		TxWithdrawRouteName:     s.EnvelopeWithdraw,
		TxSwapRouteName:         s.EnvelopeSwap,
		TxSyncRouteName:         s.EnvelopeSync,
		TxSkimRouteName:         s.EnvelopeSkim,
		TxCollectFeesRouteName:  s.EnvelopeCollectFees,
		TxUpdateParamsRouteName: s.EnvelopeUpdateParams,
		StateExportRouteName:    s.StateExport,
		ResourceUsageRouteName:  s.ResourceUsage,
		ConfigRouteName:         s.Config,
		LogsRouteName:           logsHandler(s),
		// debug
		DebugBlockedRouteName:   debugHandler(DebugBlockedRouteName),
		DebugHeapRouteName:      debugHandler(DebugHeapRouteName),
		DebugCPURouteName:       debugHandler(DebugCPURouteName),
		DebugGoroutineRouteName: debugHandler(DebugGoroutineRouteName),
	}

	// Initialize a new router using the httprouter package.
	router := httprouter.New()

	for name, handler := range r {
		// Retrieve the path configuration for the current route name.
		path := routePaths[name]

		// Add the handler for the specific path and HTTP method to the router.
		router.Handle(path.Method, path.Path, logHandler{path.Path, handler}.Handle)
	}

	return router
}
