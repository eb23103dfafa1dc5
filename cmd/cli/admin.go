package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/millpond-labs/millpond/cmd/rpc"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
	"github.com/spf13/cobra"
	"github.com/tjarratt/babble"
	"golang.org/x/term"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "admin only operations for the node",
}

var (
	pwd      string
	nick     string
	sequence uint64
	sim      bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&pwd, "password", "", "input a private key password (not recommended)")
	rootCmd.PersistentFlags().StringVar(&nick, "nickname", "", "input nickname for key")
	adminCmd.PersistentFlags().BoolVar(&sim, "simulate", false, "simulate won't submit an envelope, rather it will print the json of the envelope that would've been submitted")
	adminCmd.PersistentFlags().Uint64Var(&sequence, "sequence", 0, "custom sequence, by default will use the next sequence of the signer")
	adminCmd.AddCommand(ksCmd)
	adminCmd.AddCommand(ksNewKeyCmd)
	adminCmd.AddCommand(ksImportCmd)
	adminCmd.AddCommand(ksImportRawCmd)
	adminCmd.AddCommand(ksDeleteCmd)
	adminCmd.AddCommand(ksGetCmd)
	adminCmd.AddCommand(txCreatePoolCmd)
	adminCmd.AddCommand(txTransferCmd)
	adminCmd.AddCommand(txTransferClaimsCmd)
	adminCmd.AddCommand(txDepositCmd)
	adminCmd.AddCommand(txWithdrawCmd)
	adminCmd.AddCommand(txSwapCmd)
	adminCmd.AddCommand(txSyncCmd)
	adminCmd.AddCommand(txSkimCmd)
	adminCmd.AddCommand(txCollectFeesCmd)
	adminCmd.AddCommand(txUpdateParamsCmd)
	adminCmd.AddCommand(resourceUsageCmd)
	adminCmd.AddCommand(configCmd)
	adminCmd.AddCommand(logsCmd)
	adminCmd.AddCommand(stateExportCmd)
}

var (
	ksCmd = &cobra.Command{
		Use:   "ks",
		Short: "query the keystore of the node",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Keystore())
		},
	}

	ksNewKeyCmd = &cobra.Command{
		Use:   "ks-new-key",
		Short: "add a new key to the keystore of the node",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.KeystoreNewKey(getPassword(), getNickname()))
		},
	}

	ksImportCmd = &cobra.Command{
		Use:   "ks-import <address> <encrypted-pk-json>",
		Short: "add a new key to the keystore of the node using the encrypted private key",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			ptr := new(crypto.EncryptedPrivateKey)
			if err := lib.UnmarshalJSON([]byte(args[1]), ptr); err != nil {
				l.Fatal(err.Error())
			}
			writeToConsole(client.KeystoreImport(argGetAddr(args[0]), getNickname(), *ptr))
		},
	}

	ksImportRawCmd = &cobra.Command{
		Use:   "ks-import-raw <private-key>",
		Short: "add a new key to the keystore of the node using the raw private key",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.KeystoreImportRaw(args[0], getPassword(), getNickname()))
		},
	}

	ksDeleteCmd = &cobra.Command{
		Use:   "ks-delete <address or nickname>",
		Short: "delete the key associated with the address or nickname from the keystore",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.KeystoreDelete(argGetAddrOrNickname(args[0])))
		},
	}

	ksGetCmd = &cobra.Command{
		Use:   "ks-get <address or nickname>",
		Short: "query the key group associated with the address or nickname",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.KeystoreGet(argGetAddrOrNickname(args[0]), getPassword()))
		},
	}

	txCreatePoolCmd = &cobra.Command{
		Use:     "tx-create-pool <address or nickname> <asset-a> <asset-b> --simulate=true",
		Short:   "initialize an empty pool for an asset pair",
		Example: "tx-create-pool dfd3c8dff19da7682f7fe5fde062c813b55c9eee 1 2",
		Args:    cobra.MinimumNArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			writeTxResultToConsole(client.TxCreatePool(argGetAddrOrNickname(args[0]), uint64(argToInt(args[1])), uint64(argToInt(args[2])), getPassword(), !sim, sequence))
		},
	}

	txTransferCmd = &cobra.Command{
		Use:     "tx-transfer <address or nickname> <to-address> <asset> <amount> --simulate=true",
		Short:   "send an amount of an asset to another address",
		Example: "tx-transfer dfd3c8dff19da7682f7fe5fde062c813b55c9eee eed6c9dff19da7682f7fe5fde062c813b42c7abc 1 10000",
		Args:    cobra.MinimumNArgs(4),
		Run: func(cmd *cobra.Command, args []string) {
			writeTxResultToConsole(client.TxTransfer(argGetAddrOrNickname(args[0]), uint64(argToInt(args[2])), "", argGetAddr(args[1]), argToAmount(args[3]), getPassword(), !sim, sequence))
		},
	}

	txTransferClaimsCmd = &cobra.Command{
		Use:     "tx-transfer-claims <address or nickname> <to-address> <pool-address> <amount> --simulate=true",
		Short:   "send an amount of pool claims to another address",
		Example: "tx-transfer-claims dfd3c8dff19da7682f7fe5fde062c813b55c9eee eed6c9dff19da7682f7fe5fde062c813b42c7abc 7caa2a8a4e279c6afbbe3a87138d07a843f8c3da 10000",
		Args:    cobra.MinimumNArgs(4),
		Run: func(cmd *cobra.Command, args []string) {
			writeTxResultToConsole(client.TxTransfer(argGetAddrOrNickname(args[0]), 0, argGetAddr(args[2]), argGetAddr(args[1]), argToAmount(args[3]), getPassword(), !sim, sequence))
		},
	}

	txDepositCmd = &cobra.Command{
		Use:     "tx-deposit <address or nickname> <pool-address> <amount-a> <amount-b> --simulate=true",
		Short:   "deposit liquidity into a pool in exchange for newly minted claims",
		Example: "tx-deposit dfd3c8dff19da7682f7fe5fde062c813b55c9eee 7caa2a8a4e279c6afbbe3a87138d07a843f8c3da 400000 900000",
		Args:    cobra.MinimumNArgs(4),
		Run: func(cmd *cobra.Command, args []string) {
			writeTxResultToConsole(client.TxDeposit(argGetAddrOrNickname(args[0]), argGetAddr(args[1]), argToAmount(args[2]), argToAmount(args[3]), getPassword(), !sim, sequence))
		},
	}

	txWithdrawCmd = &cobra.Command{
		Use:     "tx-withdraw <address or nickname> <pool-address> <liquidity> --simulate=true",
		Short:   "burn claims in exchange for the proportional share of both reserves",
		Example: "tx-withdraw dfd3c8dff19da7682f7fe5fde062c813b55c9eee 7caa2a8a4e279c6afbbe3a87138d07a843f8c3da 100000",
		Args:    cobra.MinimumNArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			writeTxResultToConsole(client.TxWithdraw(argGetAddrOrNickname(args[0]), argGetAddr(args[1]), argToAmount(args[2]), getPassword(), !sim, sequence))
		},
	}

	txSwapCmd = &cobra.Command{
		Use:     "tx-swap <address or nickname> <pool-address> <input-asset> <input-amount> <output-amount> --simulate=true",
		Short:   "swap an exact input for an exact output against a pool, use the quote query to price the output",
		Example: "tx-swap dfd3c8dff19da7682f7fe5fde062c813b55c9eee 7caa2a8a4e279c6afbbe3a87138d07a843f8c3da 1 100000 179000",
		Args:    cobra.MinimumNArgs(5),
		Run: func(cmd *cobra.Command, args []string) {
			writeTxResultToConsole(client.TxSwap(argGetAddrOrNickname(args[0]), argGetAddr(args[1]), uint64(argToInt(args[2])), argToAmount(args[3]), argToAmount(args[4]), getPassword(), !sim, sequence))
		},
	}

	txSyncCmd = &cobra.Command{
		Use:   "tx-sync <address or nickname> <pool-address> --simulate=true",
		Short: "force the tracked reserves of a pool to match its actual balances",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			writeTxResultToConsole(client.TxSync(argGetAddrOrNickname(args[0]), argGetAddr(args[1]), getPassword(), !sim, sequence))
		},
	}

	txSkimCmd = &cobra.Command{
		Use:   "tx-skim <address or nickname> <pool-address> [to-address] --simulate=true",
		Short: "sweep any balance above the tracked reserves of a pool, to the sender when no recipient is given",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			toAddress := ""
			if len(args) > 2 {
				toAddress = argGetAddr(args[2])
			}
			writeTxResultToConsole(client.TxSkim(argGetAddrOrNickname(args[0]), argGetAddr(args[1]), toAddress, getPassword(), !sim, sequence))
		},
	}

	txCollectFeesCmd = &cobra.Command{
		Use:   "tx-collect-fees <address or nickname> <pool-address> --simulate=true",
		Short: "settle the accrued protocol fee share of a pool on demand",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			writeTxResultToConsole(client.TxCollectFees(argGetAddrOrNickname(args[0]), argGetAddr(args[1]), getPassword(), !sim, sequence))
		},
	}

	txUpdateParamsCmd = &cobra.Command{
		Use:   "tx-update-params <address or nickname> <fee-enabled> [fee-recipient] --simulate=true",
		Short: "change the protocol fee switch and recipient, signer must be the authority",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			feeRecipient := ""
			if len(args) > 2 {
				feeRecipient = argGetAddr(args[2])
			}
			writeTxResultToConsole(client.TxUpdateParams(argGetAddrOrNickname(args[0]), argToBool(args[1]), feeRecipient, getPassword(), !sim, sequence))
		},
	}

	resourceUsageCmd = &cobra.Command{
		Use:   "resource-usage",
		Short: "get node resource usage",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.ResourceUsage())
		},
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "get node configuration file",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Config())
		},
	}

	logsCmd = &cobra.Command{
		Use:   "logs",
		Short: "get node logs",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.Logs())
		},
	}

	stateExportCmd = &cobra.Command{
		Use:   "state-export",
		Short: "download the committed state as an indented genesis document",
		Run: func(cmd *cobra.Command, args []string) {
			writeToConsole(client.StateExport())
		},
	}
)

func writeTxResultToConsole(hash *string, tx json.RawMessage, e lib.ErrorI) {
	if sim {
		writeToConsole(tx, e)
	} else {
		var hashString string
		if hash != nil {
			hashString = *hash
		}
		writeToConsole(hashString, e)
	}
}

func argGetAddr(arg string) string {
	bz, err := lib.StringToBytes(arg)
	if err != nil {
		l.Fatalf("%s isn't a proper hex string: %s", arg, err.Error())
	}
	if len(bz) != crypto.AddressSize {
		l.Fatalf("%s is not a 20 byte address", arg)
	}
	return arg
}

func argGetAddrOrNickname(arg string) rpc.AddrOrNickname {
	bz, err := lib.StringToBytes(arg)
	if err != nil {
		return rpc.AddrOrNickname{
			Nickname: arg,
		}
	}
	if len(bz) != crypto.AddressSize {
		return rpc.AddrOrNickname{
			Nickname: arg,
		}
	}
	return rpc.AddrOrNickname{
		Address: arg,
	}
}

func argToBool(arg string) bool {
	b, err := strconv.ParseBool(arg)
	if err != nil {
		l.Fatalf("%s isn't a proper boolean: %s", arg, err.Error())
	}
	return b
}

func getNickname() string {
	if nick == "" {
		babbler := babble.NewBabbler()
		babbler.Count, babbler.Separator = 2, "-"
		nick = strings.ToLower(babbler.Babble())
		fmt.Println("Generated nickname:", nick)
	}
	return nick
}

func getPassword() string {
	if pwd == "" {
		fmt.Println("Enter password:")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			l.Fatal(err.Error())
		}
		if password == nil {
			fmt.Println("Password cannot be empty")
			return getPassword()
		}
		return string(password)
	}
	return pwd
}
