package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"agentregistry/internal/config"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
)

// Prints the decoded registry contract id and the signer account for the
// configured Stellar transport. Usage: registry-keys [contract-strkey]
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	contractID := cfg.Stellar.ContractID
	if len(os.Args) > 1 {
		contractID = os.Args[1]
	}
	if contractID == "" {
		fmt.Println("Usage: registry-keys <contract-strkey> (or set REGISTRY_CONTRACT_ID)")
		os.Exit(1)
	}

	// Decode contract strkey (starts with C)
	contractBytes, err := strkey.Decode(strkey.VersionByteContract, contractID)
	if err != nil {
		fmt.Printf("Error decoding contract id: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("contract:     %s\n", contractID)
	fmt.Printf("contract hex: %s\n", hex.EncodeToString(contractBytes))

	if cfg.Stellar.SignerSecret == "" {
		return
	}
	signer, err := keypair.ParseFull(cfg.Stellar.SignerSecret)
	if err != nil {
		fmt.Printf("Error parsing SIGNER_SECRET: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("signer:       %s\n", signer.Address())

	caller := cfg.Sync.Caller
	if caller == "" {
		caller = signer.Address()
	}
	fmt.Printf("caller:       %s (valid: %t)\n", caller, strkey.IsValidEd25519PublicKey(caller))
}
