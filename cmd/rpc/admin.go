package rpc

import (
	"bytes"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/units"
	"github.com/julienschmidt/httprouter"
	pool "github.com/libp2p/go-buffer-pool"
	"github.com/millpond-labs/millpond/fsm"
	"github.com/millpond-labs/millpond/lib"
	"github.com/millpond-labs/millpond/lib/crypto"
	limiter "github.com/mxk/go-flowrate/flowrate"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	// stateExportChunk is the write unit of the streamed state export
	stateExportChunk = int(64 * units.KiB)
	// stateExportRatePerS caps the streamed export bandwidth per request
	stateExportRatePerS = int64(8 * units.MiB)
)

// Keystore responds with the local keystore
func (s *Server) Keystore(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	// Attempt to create a new keystore from the specified file path
	keystore, err := crypto.NewKeystoreFromFile(s.config.DataDirPath)
	if err != nil {
		write(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Write keystore to http response
	write(w, keystore, http.StatusOK)
}

// KeystoreNewKey adds a new key to the keystore
func (s *Server) KeystoreNewKey(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Call the keystore handler with a callback to create and import a new private key
	s.keystoreHandler(w, r, func(k *crypto.Keystore, ptr *keystoreRequest) (any, error) {
		// Generate a new ed25519 private key
		pk, err := crypto.NewEd25519PrivateKey()
		if err != nil {
			return nil, err
		}

		// Import the newly generated private key into the keystore
		address, err := k.ImportRaw(pk.Bytes(), ptr.Password, ptr.Nickname)
		if err != nil {
			return nil, err
		}
		// Update the keystore on disk and return the newly created address
		return address, k.SaveToFile(s.config.DataDirPath)
	})
}

// KeystoreImport adds a new key to the keystore using an encrypted private key
func (s *Server) KeystoreImport(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Call the keystore handler with a callback to import an encrypted private key
	s.keystoreHandler(w, r, func(k *crypto.Keystore, ptr *keystoreRequest) (any, error) {
		// Attempt to import the encrypted private key into the keystore
		if err := k.Import(&ptr.EncryptedPrivateKey, crypto.QueryOpts{
			Address:  ptr.Address,
			Nickname: ptr.Nickname,
		}); err != nil {
			return nil, err
		}
		// Update the keystore on disk and return the imported address
		return ptr.Address, k.SaveToFile(s.config.DataDirPath)
	})
}

// KeystoreImportRaw adds a new key to the keystore using a raw private key
func (s *Server) KeystoreImportRaw(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Call the keystore handler with a callback to import a raw private key
	s.keystoreHandler(w, r, func(k *crypto.Keystore, ptr *keystoreRequest) (any, error) {
		// Attempt to import the raw private key into the keystore
		address, err := k.ImportRaw(ptr.PrivateKey, ptr.Password, ptr.Nickname)
		if err != nil {
			return nil, err
		}
		// Update the keystore on disk and return the imported address
		return address, k.SaveToFile(s.config.DataDirPath)
	})
}

// KeystoreDelete removes a key from the keystore using either the address or nickname
func (s *Server) KeystoreDelete(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Call the keystore handler with a callback to perform the deletion
	s.keystoreHandler(w, r, func(k *crypto.Keystore, ptr *keystoreRequest) (any, error) {
		k.DeleteKey(crypto.QueryOpts{
			Address:  ptr.Address,
			Nickname: ptr.Nickname,
		})
		// Update the keystore on disk and return the account address
		return ptr.Address, k.SaveToFile(s.config.DataDirPath)
	})
}

// KeystoreGetKeyGroup retrieves the decrypted key group for an address or nickname
func (s *Server) KeystoreGetKeyGroup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Call the keystore handler with a callback to perform the query
	s.keystoreHandler(w, r, func(k *crypto.Keystore, ptr *keystoreRequest) (any, error) {
		// Get and return the keygroup
		return k.GetKeyGroup(ptr.Password, crypto.QueryOpts{
			Address:  ptr.Address,
			Nickname: ptr.Nickname,
		})
	})
}

// EnvelopeCreatePool builds and optionally submits a pool creation envelope
func (s *Server) EnvelopeCreatePool(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.envelopeHandler(w, r, func(ptr *envelopeRequest) fsm.MessageI {
		return &fsm.MessageCreatePool{AssetA: ptr.AssetA, AssetB: ptr.AssetB}
	})
}

// EnvelopeTransfer builds and optionally submits an asset or claim transfer envelope
func (s *Server) EnvelopeTransfer(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.envelopeHandler(w, r, func(ptr *envelopeRequest) fsm.MessageI {
		return &fsm.MessageTransfer{
			Asset:       ptr.Asset,
			PoolAddress: ptr.PoolAddress,
			ToAddress:   ptr.ToAddress,
			Amount:      ptr.Amount,
		}
	})
}

// EnvelopeDeposit builds and optionally submits a liquidity deposit envelope
func (s *Server) EnvelopeDeposit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.envelopeHandler(w, r, func(ptr *envelopeRequest) fsm.MessageI {
		return &fsm.MessageDeposit{
			PoolAddress: ptr.PoolAddress,
			AmountA:     ptr.AmountA,
			AmountB:     ptr.AmountB,
		}
	})
}

// EnvelopeWithdraw builds and optionally submits a liquidity withdrawal envelope
func (s *Server) EnvelopeWithdraw(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.envelopeHandler(w, r, func(ptr *envelopeRequest) fsm.MessageI {
		return &fsm.MessageWithdraw{
			PoolAddress: ptr.PoolAddress,
			Liquidity:   ptr.Liquidity,
		}
	})
}

// EnvelopeSwap builds and optionally submits a swap envelope
func (s *Server) EnvelopeSwap(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.envelopeHandler(w, r, func(ptr *envelopeRequest) fsm.MessageI {
		return &fsm.MessageSwap{
			PoolAddress:  ptr.PoolAddress,
			InputAsset:   ptr.InputAsset,
			InputAmount:  ptr.InputAmount,
			OutputAmount: ptr.OutputAmount,
		}
	})
}

// EnvelopeSync builds and optionally submits a reserve sync envelope
func (s *Server) EnvelopeSync(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.envelopeHandler(w, r, func(ptr *envelopeRequest) fsm.MessageI {
		return &fsm.MessageSync{PoolAddress: ptr.PoolAddress}
	})
}

// EnvelopeSkim builds and optionally submits a surplus skim envelope
func (s *Server) EnvelopeSkim(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.envelopeHandler(w, r, func(ptr *envelopeRequest) fsm.MessageI {
		return &fsm.MessageSkim{
			PoolAddress: ptr.PoolAddress,
			ToAddress:   ptr.ToAddress,
		}
	})
}

// EnvelopeCollectFees builds and optionally submits a fee collection envelope
func (s *Server) EnvelopeCollectFees(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.envelopeHandler(w, r, func(ptr *envelopeRequest) fsm.MessageI {
		return &fsm.MessageCollectFees{PoolAddress: ptr.PoolAddress}
	})
}

// EnvelopeUpdateParams builds and optionally submits a parameter update envelope
func (s *Server) EnvelopeUpdateParams(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.envelopeHandler(w, r, func(ptr *envelopeRequest) fsm.MessageI {
		return &fsm.MessageUpdateParams{
			FeeEnabled:   ptr.FeeEnabled,
			FeeRecipient: ptr.FeeRecipient,
		}
	})
}

// StateExport streams the committed state as an indented genesis document download
func (s *Server) StateExport(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	// Export the committed state
	state, err := s.app.ReadOnlyFSM()
	if err != nil {
		write(w, ErrNewFSM(err), http.StatusInternalServerError)
		return
	}
	defer state.Discard()
	genesis, err := state.ExportState()
	if err != nil {
		write(w, err, http.StatusInternalServerError)
		return
	}
	bz, err := lib.MarshalJSONIndent(genesis)
	if err != nil {
		write(w, err, http.StatusInternalServerError)
		return
	}
	// Stream in rate limited chunks so one export cannot monopolize the node's bandwidth
	w.Header().Set(ContentType, ApplicationJSON)
	w.Header().Set("Content-Disposition", "attachment; filename=genesis.json")
	w.WriteHeader(http.StatusOK)
	m := limiter.New(0, 0)
	defer m.Done()
	buf := pool.Get(stateExportChunk)
	defer pool.Put(buf)
	reader := bytes.NewReader(bz)
	for {
		m.Limit(stateExportChunk, stateExportRatePerS, true)
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
			m.Update(n)
		}
		if readErr != nil {
			return
		}
	}
}

// ResourceUsage retrieves node resource usage
func (s *Server) ResourceUsage(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	pm, err := mem.VirtualMemory() // os memory
	if err != nil {
		write(w, err.Error(), http.StatusInternalServerError)
		return
	}
	c, err := cpu.Times(false) // os cpu
	if err != nil {
		write(w, err.Error(), http.StatusInternalServerError)
		return
	}
	cp, err := cpu.Percent(0, false) // os cpu percent
	if err != nil {
		write(w, err.Error(), http.StatusInternalServerError)
		return
	}
	d, err := disk.Usage("/") // os disk
	if err != nil {
		write(w, err.Error(), http.StatusInternalServerError)
		return
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		write(w, err.Error(), http.StatusInternalServerError)
		return
	}
	name, err := p.Name()
	if err != nil {
		write(w, err.Error(), http.StatusInternalServerError)
		return
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		write(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ioCounters, err := net.IOCounters(false)
	if err != nil {
		write(w, err.Error(), http.StatusInternalServerError)
		return
	}
	status, err := p.Status()
	if err != nil {
		write(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fds, err := fdCount(p.Pid)
	if err != nil {
		write(w, err.Error(), http.StatusInternalServerError)
		return
	}
	numThreads, err := p.NumThreads()
	if err != nil {
		write(w, err.Error(), http.StatusInternalServerError)
		return
	}
	memPercent, err := p.MemoryPercent()
	if err != nil {
		write(w, err.Error(), http.StatusInternalServerError)
		return
	}
	utc, err := p.CreateTime()
	if err != nil {
		write(w, err.Error(), http.StatusInternalServerError)
		return
	}
	write(w, resourceUsageResponse{
		Process: ProcessResourceUsage{
			Name:          name,
			Status:        strings.Join(status, ","),
			CreateTime:    time.Unix(utc/1000, 0).Format(time.RFC822),
			FDCount:       uint64(fds),
			ThreadCount:   uint64(numThreads),
			MemoryPercent: float64(memPercent),
			CPUPercent:    cpuPercent,
		},
		System: SystemResourceUsage{
			TotalRAM:        pm.Total,
			AvailableRAM:    pm.Available,
			UsedRAM:         pm.Used,
			UsedRAMPercent:  pm.UsedPercent,
			FreeRAM:         pm.Free,
			UsedCPUPercent:  cp[0],
			UserCPU:         c[0].User,
			SystemCPU:       c[0].System,
			IdleCPU:         c[0].Idle,
			TotalDisk:       d.Total,
			UsedDisk:        d.Used,
			UsedDiskPercent: d.UsedPercent,
			FreeDisk:        d.Free,
			ReceivedBytesIO: ioCounters[0].BytesRecv,
			WrittenBytesIO:  ioCounters[0].BytesSent,
		},
	}, http.StatusOK)
}

// Config retrieves the node's configuration file
func (s *Server) Config(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	write(w, s.config, http.StatusOK)
}

// envelopeHandler abstracts the common workflow of the envelope building endpoints:
// resolve the signer key from the keystore, wrap the callback's message in a signed
// envelope, then submit it or echo it back depending on the request
func (s *Server) envelopeHandler(w http.ResponseWriter, r *http.Request, callback func(ptr *envelopeRequest) fsm.MessageI) {
	// Create a new envelope request object
	ptr := new(envelopeRequest)

	// Parse and validate the incoming HTTP request JSON, unmarshalling its body into ptr
	if ok := unmarshal(w, r, ptr); !ok {
		return
	}

	// Initialize a new keystore from the server's configured data directory
	keystore, ok := newKeystore(w, s.config.DataDirPath)
	if !ok {
		return
	}

	// Update the request with address information derived from the nicknames, if available
	resolveNicknames(ptr, keystore)

	// Determine the signer address; use the supplied address if signer is unspecified
	signer := ptr.Signer
	if len(signer) == 0 {
		signer = ptr.Address
	}

	// Retrieve the private key for the signer from the keystore using the provided password
	privateKey, err := keystore.GetKey(signer, ptr.Password)
	if err != nil {
		write(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Default the sequence from the queue state so waiting envelopes are counted
	sequence := ptr.Sequence
	if sequence == 0 {
		sequence, _ = s.app.NextSequence(privateKey.PublicKey().Address().Bytes())
	}

	// Wrap the callback's message in an envelope and sign it
	envelope, e := fsm.NewEnvelope(callback(ptr), sequence)
	if e != nil {
		write(w, e, http.StatusBadRequest)
		return
	}
	if e = envelope.Sign(privateKey); e != nil {
		write(w, e, http.StatusBadRequest)
		return
	}

	// Check if the envelope should be submitted to the node
	if ptr.Submit {
		// Submit the envelope for queueing
		s.submitEnvelope(w, envelope)
	} else {
		// Marshal the envelope into JSON and write it to the response
		bz, er := lib.MarshalJSONIndent(envelope)
		if er != nil {
			write(w, er, http.StatusBadRequest)
			return
		}
		if _, err = w.Write(bz); err != nil {
			s.logger.Error(err.Error())
		}
	}
}

// newKeystore creates and responds with a new Keystore from a local keystore file
func newKeystore(w http.ResponseWriter, path string) (k *crypto.Keystore, ok bool) {

	// Attempt to create a new keystore from the keystore file at the specified file path
	k, err := crypto.NewKeystoreFromFile(path)
	if err != nil {
		write(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Set `ok` to true indicating the keystore was successfully created
	ok = true
	// Return the created keystore and the success status
	return
}

// keystoreHandler is a helper function that abstracts common workflows of keystore operations
func (s *Server) keystoreHandler(w http.ResponseWriter, r *http.Request, callback func(keystore *crypto.Keystore, ptr *keystoreRequest) (any, error)) {
	// Initialize a new keystore using the provided data directory path
	keystore, ok := newKeystore(w, s.config.DataDirPath)
	if !ok {
		return
	}

	// Create a new keystoreRequest instance to populate with request data
	ptr := new(keystoreRequest)

	// Attempt to unmarshal the request body into the keystoreRequest
	if ok = unmarshal(w, r, ptr); !ok {
		return
	}

	// Invoke the callback with the keystore and request
	p, err := callback(keystore, ptr)
	if err != nil {
		write(w, err.Error(), http.StatusBadRequest)
		return
	}
	write(w, p, http.StatusOK)
}

// resolveNicknames fills the request's address fields from the keystore nicknames
// when only a nickname was supplied
func resolveNicknames(ptr *envelopeRequest, keystore *crypto.Keystore) {
	// Populate Signer field if SignerNickname is present
	if len(ptr.Signer) == 0 && ptr.SignerNickname != "" {
		ptr.Signer = nicknameAddress(keystore, ptr.SignerNickname)
	}

	// Populate Address field if Nickname is present
	if len(ptr.Address) == 0 && ptr.Nickname != "" {
		ptr.Address = nicknameAddress(keystore, ptr.Nickname)
	}
}

// nicknameAddress derives the account address for a keystore nickname, nil when unknown
func nicknameAddress(keystore *crypto.Keystore, nickname string) lib.HexBytes {
	entry, found := keystore.ByNickname[nickname]
	if !found {
		return nil
	}
	publicKey, err := crypto.NewPublicKeyFromString(entry.PublicKey)
	if err != nil {
		return nil
	}
	return publicKey.Address().Bytes()
}

// fdCount returns the number of open file descriptors for the provided process ID
func fdCount(pid int32) (int, error) {
	// Prepare command arguments for lsof to list all file descriptors for the process
	cmd := []string{"-a", "-n", "-P", "-p", strconv.Itoa(int(pid))}
	// Execute the lsof command with provided arguments
	out, err := execCommand("lsof", cmd...)
	if err != nil {
		return 0, err
	}
	// Split the output of the command into individual lines
	lines := strings.Split(string(out), "\n")
	// Initialize a slice to capture non-empty lines representing file descriptors
	var ret []string
	// Loop through each line, starting from the second line (skip header)
	for _, l := range lines[1:] {
		// If the line is empty, continue to the next iteration
		if len(l) == 0 {
			continue
		}
		// Append non-empty lines to the result slice
		ret = append(ret, l)
	}
	// Return the count of file descriptors
	return len(ret), nil
}

// execCommand executes the named program with the provided arguments, returning its output
func execCommand(name string, arg ...string) ([]byte, error) {
	// Create a new command to execute
	cmd := exec.Command(name, arg...)

	// Initialize a buffer to capture the command output
	var buf bytes.Buffer

	// Redirect both standard output and standard error to the buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	// Start the command execution
	if err := cmd.Start(); err != nil {
		return buf.Bytes(), err
	}

	// Wait for the command to finish executing
	if err := cmd.Wait(); err != nil {
		return buf.Bytes(), err
	}

	// Return the captured output and a nil error, indicating successful execution
	return buf.Bytes(), nil
}
