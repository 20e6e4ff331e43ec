// Command llfchaind starts an LLFC chain node.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tolelom/llfchain/chainerr"
	"github.com/tolelom/llfchain/config"
	"github.com/tolelom/llfchain/crypto/certgen"
	"github.com/tolelom/llfchain/node"
	"github.com/tolelom/llfchain/wallet"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	nodeDir := flag.String("d", "keys", "keystore directory")
	flag.StringVar(nodeDir, "node_dir", "keys", "keystore directory (long form of -d)")
	seed := flag.String("s", "", "keystore seed/password (required unless LLFCHAIN_SEED is set)")
	flag.StringVar(seed, "seed", "", "keystore seed/password (long form of -s)")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit (requires node ID from config)")
	flag.Parse()

	// Prefer the env var over the flag: a seed on the command line leaks
	// via ps/shell history.
	if env := os.Getenv("LLFCHAIN_SEED"); env != "" {
		*seed = env
	}

	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if *seed == "" {
			log.Fatal(chainerr.NewNotInputSeed("no -s/--seed or LLFCHAIN_SEED set"))
		}
		if err := os.MkdirAll(*nodeDir, 0755); err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(*nodeDir, *seed, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Validator address: %s\n", w.Address())
		fmt.Printf("Saved to: %s\n", *nodeDir)
		return
	}

	if *genCerts != "" {
		cfgForCerts, err := loadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if err := certgen.GenerateAll(*genCerts, cfgForCerts.NodeID, nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for node %q\n", *genCerts, cfgForCerts.NodeID)
		return
	}

	if *seed == "" {
		log.Fatal(chainerr.NewNotInputSeed("no -s/--seed or LLFCHAIN_SEED set"))
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	priv, err := wallet.LoadKey(*nodeDir, *seed)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}

	n, err := node.New(cfg, priv)
	if err != nil {
		var valErr *chainerr.ValidationError
		if errors.As(err, &valErr) {
			log.Fatalf("genesis mismatch: %v", err)
		}
		log.Fatalf("node init: %v", err)
	}

	if err := n.Start(); err != nil {
		log.Fatalf("node start: %v", err)
	}
	log.Printf("llfchaind running (validator: %s)", priv.Public().Hex())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("shutting down...")

	n.Stop()
	log.Println("shutdown complete.")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
