package cli

import (
	"encoding/json"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/millpond-labs/millpond/lib"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "query the millpond node",
}

var (
	pageNumber int
	perPage    int
	lookback   uint32
)

func init() {
	queryCmd.PersistentFlags().IntVar(&pageNumber, "page-number", 1, "page number on paginated calls")
	queryCmd.PersistentFlags().IntVar(&perPage, "per-page", 10, "results per page on paginated calls")
	priceCmd.PersistentFlags().Uint32Var(&lookback, "lookback", 0, "ticks of reserve history folded into the statistics, 0 uses the default window")
	queryCmd.AddCommand(tickCmd)
	queryCmd.AddCommand(accountCmd)
	queryCmd.AddCommand(accountsCmd)
	queryCmd.AddCommand(sequenceCmd)
	queryCmd.AddCommand(poolCmd)
	queryCmd.AddCommand(poolByAssetsCmd)
	queryCmd.AddCommand(poolsCmd)
	queryCmd.AddCommand(claimCmd)
	queryCmd.AddCommand(claimsCmd)
	queryCmd.AddCommand(supplyCmd)
	queryCmd.AddCommand(quoteCmd)
	queryCmd.AddCommand(priceCmd)
	queryCmd.AddCommand(paramsCmd)
	queryCmd.AddCommand(stateCmd)
	queryCmd.AddCommand(stateDiffCmd)
	queryCmd.AddCommand(eventsCmd)
	queryCmd.AddCommand(eventsByTickCmd)
	queryCmd.AddCommand(pendingCmd)
	queryCmd.AddCommand(failedEnvelopesCmd)
	queryCmd.AddCommand(submitCmd)
}

var (
	tickCmd = &cobra.Command{
		Use:   "tick",
		Short: "query the current tick of the engine clock",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Tick())
		},
	}

	accountCmd = &cobra.Command{
		Use:     "account <address> <asset>",
		Short:   "query the balance an address holds of an asset",
		Example: "account dfd3c8dff19da7682f7fe5fde062c813b55c9eee 1",
		Args:    cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Account(argGetAddr(args[0]), uint64(argToInt(args[1]))))
		},
	}

	accountsCmd = &cobra.Command{
		Use:   "accounts --page-number=1 --per-page=10",
		Short: "query all accounts with a non zero balance",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Accounts(getPaginatedArgs()))
		},
	}

	sequenceCmd = &cobra.Command{
		Use:     "sequence <address>",
		Short:   "query the last executed envelope sequence of an address",
		Example: "sequence dfd3c8dff19da7682f7fe5fde062c813b55c9eee",
		Args:    cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Sequence(argGetAddr(args[0])))
		},
	}

	poolCmd = &cobra.Command{
		Use:     "pool <pool-address>",
		Short:   "query a pool by its address",
		Example: "pool 7caa2a8a4e279c6afbbe3a87138d07a843f8c3da",
		Args:    cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Pool(argGetAddr(args[0])))
		},
	}

	poolByAssetsCmd = &cobra.Command{
		Use:     "pool-by-assets <asset-a> <asset-b>",
		Short:   "query a pool by its asset pair, in either order",
		Example: "pool-by-assets 1 2",
		Args:    cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.PoolByAssets(uint64(argToInt(args[0])), uint64(argToInt(args[1]))))
		},
	}

	poolsCmd = &cobra.Command{
		Use:   "pools --page-number=1 --per-page=10",
		Short: "query all initialized pools",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Pools(getPaginatedArgs()))
		},
	}

	claimCmd = &cobra.Command{
		Use:     "claim <pool-address> <owner-address>",
		Short:   "query the claim an owner holds on a pool",
		Example: "claim 7caa2a8a4e279c6afbbe3a87138d07a843f8c3da dfd3c8dff19da7682f7fe5fde062c813b55c9eee",
		Args:    cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Claim(argGetAddr(args[0]), argGetAddr(args[1])))
		},
	}

	claimsCmd = &cobra.Command{
		Use:   "claims <pool-address> --page-number=1 --per-page=10",
		Short: "query all claims on a pool",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Claims(argGetAddr(args[0]), getPaginatedArgs()))
		},
	}

	supplyCmd = &cobra.Command{
		Use:   "supply <pool-address>",
		Short: "query the outstanding claim supply of a pool",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Supply(argGetAddr(args[0])))
		},
	}

	quoteCmd = &cobra.Command{
		Use:     "quote <pool-address> <input-asset> <input-amount>",
		Short:   "quote the fee adjusted output a swap would produce against the live reserves",
		Example: "quote 7caa2a8a4e279c6afbbe3a87138d07a843f8c3da 1 100000",
		Args:    cobra.MinimumNArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Quote(argGetAddr(args[0]), uint64(argToInt(args[1])), argToAmount(args[2])))
		},
	}

	priceCmd = &cobra.Command{
		Use:   "price <pool-address> --lookback=600",
		Short: "query the spot and time weighted price statistics of a pool",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Price(argGetAddr(args[0]), lookback))
		},
	}

	paramsCmd = &cobra.Command{
		Use:   "params",
		Short: "query the governance controlled parameters",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Params())
		},
	}

	stateCmd = &cobra.Command{
		Use:   "state",
		Short: "export the committed state as a genesis document",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.State())
		},
	}

	stateDiffCmd = &cobra.Command{
		Use:   "state-diff",
		Short: "render the difference between the committed state and the pending state",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.StateDiff())
		},
	}

	eventsCmd = &cobra.Command{
		Use:   "events --page-number=1 --per-page=10",
		Short: "query the event index, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Events(getPaginatedArgs()))
		},
	}

	eventsByTickCmd = &cobra.Command{
		Use:   "events-by-tick <tick> --page-number=1 --per-page=10",
		Short: "query the events a committed tick emitted, 0 selects the newest tick",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.EventsByTick(uint32(argToInt(args[0])), getPaginatedArgs()))
		},
	}

	pendingCmd = &cobra.Command{
		Use:   "pending --page-number=1 --per-page=10",
		Short: "query the envelopes waiting in the arrival queue",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Pending(getPaginatedArgs()))
		},
	}

	failedEnvelopesCmd = &cobra.Command{
		Use:   "failed-envelopes <address> --page-number=1 --per-page=10",
		Short: "query the recently failed envelopes of an address",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.FailedEnvelopes(argGetAddr(args[0]), getPaginatedArgs()))
		},
	}

	submitCmd = &cobra.Command{
		Use:   "submit <signed-envelope-json>",
		Short: "submit an already signed envelope to the arrival queue",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.EnvelopeJSON(json.RawMessage(args[0])))
		},
	}
)

// getPaginatedArgs() returns the page params from the query flags
func getPaginatedArgs() lib.PageParams {
	return lib.PageParams{
		PageNumber: pageNumber,
		PerPage:    perPage,
	}
}

func argToInt(arg string) int {
	i, err := strconv.Atoi(arg)
	if err != nil {
		l.Fatal(err.Error())
	}
	return i
}

func argToAmount(arg string) *uint256.Int {
	amount, err := uint256.FromDecimal(arg)
	if err != nil {
		l.Fatalf("%s isn't a proper base 10 amount: %s", arg, err.Error())
	}
	return amount
}
