package cli

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/millpond-labs/millpond/app"
	"github.com/millpond-labs/millpond/cmd/rpc"
	"github.com/millpond-labs/millpond/fsm"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
	"github.com/millpond-labs/millpond/store"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var rootCmd = &cobra.Command{
	Use:   "millpond",
	Short: "the millpond pool engine software",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(rpc.SoftwareVersion)
	},
}

var (
	client, config, l    = &rpc.Client{}, lib.Config{}, lib.LoggerI(nil)
	DataDir, operatorKey = "", crypto.PrivateKeyI(nil)
)

func init() {
	flag.Parse()
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(populateCmd)
	rootCmd.AddCommand(autoCompleteCmd)
	autoCompleteCmd.AddCommand(generateCompleteCmd)
	autoCompleteCmd.AddCommand(autoCompleteInstallCmd)
	rootCmd.PersistentFlags().StringVar(&DataDir, "data-dir", lib.DefaultDataDirPath(), "custom data directory location")
	config, operatorKey = InitializeDataDirectory(DataDir, lib.NewDefaultLogger())
	l = lib.NewLogger(lib.LoggerConfig{
		Level: config.GetLogLevel(),
	}, config.DataDirPath)
	client = rpc.NewClient(config.RPCUrl, config.AdminRPCUrl)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "start the pool engine software",
	Run: func(cmd *cobra.Command, args []string) {
		Start()
	},
}

// Start() is the entrypoint of the node
func Start() {
	// initialize the telemetry server
	metrics := lib.NewMetricsServer(config.MetricsConfig)
	// create a new database object from the config
	db, err := store.New(config, metrics, l)
	if err != nil {
		l.Fatal(err.Error())
	}
	// log the operator identity
	l.Infof("Using identity: Address: %s | PublicKey: %s",
		operatorKey.PublicKey().Address().String(), operatorKey.PublicKey().String())
	// create a new instance of the engine
	a, err := app.New(config, db, metrics, l)
	if err != nil {
		l.Fatal(err.Error())
	}
	// initialize the rpc server
	rpcServer := rpc.NewServer(a, config, l)
	// start the engine, this also starts the telemetry server
	a.Start()
	// start the rpc server
	rpcServer.Start()
	// block until a kill signal is received
	waitForKill()
	// gracefully stop the engine, this also closes the database
	a.Stop()
	// exit
	os.Exit(0)
}

// waitForKill() blocks until a kill signal is received
func waitForKill() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGABRT)
	// block until kill signal is received
	s := <-stop
	l.Infof("Exit command %s received", s)
}

func getFirstPassword(log lib.LoggerI) string {
	// allow flag config to skip initial password
	if pwd == "" {
		// get the password from the user
		log.Infof("Enter password for your new private key:")
		password, e := term.ReadPassword(int(os.Stdin.Fd()))
		if e != nil {
			log.Fatal(e.Error())
		}
		if password == nil {
			log.Infof("Password cannot be empty")
			return getFirstPassword(log)
		}
		return string(password)
	}

	return pwd
}

// InitializeDataDirectory() populates the data directory with configuration and data files if missing
func InitializeDataDirectory(dataDirPath string, log lib.LoggerI) (c lib.Config, operatorPrivateKey crypto.PrivateKeyI) {
	// make the data dir if missing
	if err := os.MkdirAll(dataDirPath, os.ModePerm); err != nil {
		log.Fatal(err.Error())
	}
	// make the config.json file if missing
	configFilePath := filepath.Join(dataDirPath, lib.ConfigFilePath)
	if _, err := os.Stat(configFilePath); errors.Is(err, os.ErrNotExist) {
		log.Infof("Creating %s file", lib.ConfigFilePath)
		if err = lib.DefaultConfig().WriteToFile(configFilePath); err != nil {
			log.Fatal(err.Error())
		}
	}
	// make the operator key file if missing
	keyFilePath := filepath.Join(dataDirPath, lib.KeyFilePath)
	if _, err := os.Stat(keyFilePath); errors.Is(err, os.ErrNotExist) {
		newKey, _ := crypto.NewEd25519PrivateKey()
		log.Infof("Creating %s file", lib.KeyFilePath)
		if err = crypto.PrivateKeyToFile(newKey, keyFilePath); err != nil {
			log.Fatal(err.Error())
		}
		pwd = getFirstPassword(log)
		// allow flag config to skip initial nickname
		if nick == "" {
			// get nickname from the user
			log.Infof("Enter nickname for your new private key:")
			_, e := fmt.Scanln(&nick)
			if e != nil {
				log.Fatal(e.Error())
			}
		}
		// load the keystore from file
		k, e := crypto.NewKeystoreFromFile(dataDirPath)
		if e != nil {
			log.Fatal(e.Error())
		}
		// import the operator key
		address, e := k.ImportRaw(newKey.Bytes(), pwd, nick)
		if e != nil {
			log.Fatal(e.Error())
		}
		// save keystore to the file
		if e = k.SaveToFile(dataDirPath); e != nil {
			log.Fatal(e.Error())
		}
		log.Infof("Imported operator key %s to keystore", address)
	}
	// load the private key object
	operatorPrivateKey, err := crypto.NewPrivateKeyFromFile(keyFilePath)
	if err != nil {
		log.Fatal(err.Error())
	}
	// create the genesis file if missing
	genesisFilePath := filepath.Join(dataDirPath, lib.GenesisFilePath)
	if _, err = os.Stat(genesisFilePath); errors.Is(err, os.ErrNotExist) {
		log.Infof("Creating %s file", lib.GenesisFilePath)
		WriteDefaultGenesisFile(operatorPrivateKey, genesisFilePath)
	}
	// load the config object
	c, err = lib.NewConfigFromFile(configFilePath)
	if err != nil {
		log.Fatal(err.Error())
	}
	// set the data-directory
	c.DataDirPath = dataDirPath
	return
}

// WriteDefaultGenesisFile() creates a single operator genesis funding the new key with the two starter assets
func WriteDefaultGenesisFile(operatorPrivateKey crypto.PrivateKeyI, genesisFilePath string) {
	addr := operatorPrivateKey.PublicKey().Address()
	j := &fsm.GenesisState{
		Accounts: []*fsm.Account{
			{Address: addr.Bytes(), Asset: 1, Amount: lib.NewAmount(1000000000)},
			{Address: addr.Bytes(), Asset: 2, Amount: lib.NewAmount(1000000000)},
		},
		Params: fsm.DefaultParams(),
	}
	bz, _ := json.MarshalIndent(j, "", "  ")
	if err := os.WriteFile(genesisFilePath, bz, 0777); err != nil {
		panic(err)
	}
}

func writeToConsole(a any, err error) {
	if err != nil {
		l.Fatal(err.Error())
	}
	switch a.(type) {
	case int, uint32, uint64:
		p := message.NewPrinter(language.English)
		if _, err := p.Printf("%d\n", a); err != nil {
			l.Fatal(err.Error())
		}
	case string, *string:
		fmt.Println(a)
	default:
		s, err := lib.MarshalJSONIndentString(a)
		if err != nil {
			l.Fatal(err.Error())
		}
		fmt.Println(s)
	}
}

// AUTO COMPLETE CODE BELOW

var autoCompleteCmd = &cobra.Command{
	Use:   "auto-complete",
	Short: "auto-complete generation and installation (for zsh and bash)",
}

var autoCompleteInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "automatically installs shell completion",
	Run: func(cmd *cobra.Command, args []string) {
		shell := detectShell()
		if shell == "" {
			writeToConsole(nil, errors.New("can't detect shell (only zsh or bash is supported)"))
			return
		}
		completionScript, profileFile := "", ""

		switch shell {
		case "bash":
			profileFile = getBashProfile()
			completionScript = `
millpond auto-complete generate > ~/.millpond-completion.sh

# Ensure completion script is sourced only once
if ! grep -q 'source ~/.millpond-completion.sh' ` + profileFile + `; then
    echo 'source ~/.millpond-completion.sh' >> ` + profileFile + `
fi`
		case "zsh":
			profileFile = "~/.zshrc"
			completionScript = `
mkdir -p ~/.zsh/completions
millpond auto-complete generate > ~/.zsh/completions/_millpond

# Ensure fpath is set only once
if ! grep -q 'fpath=(~/.zsh/completions $fpath)' ` + profileFile + `; then
    echo 'fpath=(~/.zsh/completions $fpath)' >> ` + profileFile + `
fi

# Ensure compinit is set only once
if ! grep -q 'autoload -Uz compinit && compinit' ` + profileFile + `; then
    echo 'autoload -Uz compinit && compinit' >> ` + profileFile + `
fi`
		default:
			writeToConsole(nil, errors.New("unsupported shell (only zsh or bash is supported)"))
			return
		}
		writeToConsole(fmt.Sprintf("Installing completion for: %s", shell), nil)
		err := exec.Command("sh", "-c", completionScript).Run()
		if err != nil {
			writeToConsole(nil, fmt.Errorf("error setting up completion:, %s", err.Error()))
		} else {
			writeToConsole(fmt.Sprintf("Completion installed. Restart your shell or run `source %s%s", profileFile, "`"), nil)
		}
	},
}

var generateCompleteCmd = &cobra.Command{
	Use:   "generate",
	Short: "generate completion script",
	Run: func(cmd *cobra.Command, args []string) {
		switch detectShell() {
		case "bash":
			rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			rootCmd.GenZshCompletion(os.Stdout)
		default:
			cmd.Println("Unsupported shell. Use: bash or zsh")
		}
	},
}

func detectShell() string {
	shell := os.Getenv("SHELL")
	if strings.Contains(shell, "bash") {
		return "bash"
	} else if strings.Contains(shell, "zsh") {
		return "zsh"
	} else if strings.Contains(shell, "fish") {
		return "fish"
	}
	return ""
}

func getBashProfile() string {
	if _, err := os.Stat(os.Getenv("HOME") + "/.bashrc"); err == nil {
		return "~/.bashrc"
	}
	return "~/.bash_profile"
}
