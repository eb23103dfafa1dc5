package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"

	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
)

var dataDir = flag.String("data-dir", lib.DefaultDataDirPath(), "")

type Config struct {
	RPCUrl                  string                     `json:"rpc_url"`
	AdminRPCUrl             string                     `json:"admin_rpc_url"`
	PrivateKeys             []crypto.ED25519PrivateKey `json:"private_keys"`
	PercentInvalidEnvelopes int                        `json:"percent_invalid_envelopes"`
}

func (c *Config) FromFile(l lib.LoggerI) *Config {
	flag.Parse()
	configFilePath := filepath.Join(*dataDir, configFileName)
	l.Infof("Reading data directory at %s", *dataDir)
	if err := os.MkdirAll(*dataDir, os.ModePerm); err != nil {
		l.Fatal(err.Error())
	}
	if _, err := os.Stat(configFilePath); errors.Is(err, os.ErrNotExist) {
		l.Infof("Creating %s file", configFilePath)
		if err = c.WriteToFile(configFilePath); err != nil {
			l.Fatal(err.Error())
		}
	}
	l.Infof("Reading config file at %s", configFilePath)
	bz, err := os.ReadFile(configFilePath)
	if err != nil {
		l.Fatal(err.Error())
	}
	if err = lib.UnmarshalJSON(bz, c); err != nil {
		l.Fatal(err.Error())
	}
	if len(c.PrivateKeys) == 0 {
		l.Fatalf("no private keys are in the config file: %s", configFilePath)
	}
	return c
}

func (c *Config) WriteToFile(filepath string) lib.ErrorI {
	defaults := lib.DefaultConfig()
	c.RPCUrl, c.AdminRPCUrl = defaults.RPCUrl, defaults.AdminRPCUrl
	bz, err := lib.MarshalJSONIndent(c)
	if err != nil {
		return err
	}
	if er := os.WriteFile(filepath, bz, os.ModePerm); er != nil {
		return lib.ErrWriteFile(er)
	}
	return nil
}
