// Package node wires the Trie/State/ChainStore/Executor/BlockEngine/
// EventStore/ConsensusEngine/MessageBus components together into one
// running validator (or subscriber) process.
package node

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/tolelom/llfchain/chainstore"
	"github.com/tolelom/llfchain/config"
	"github.com/tolelom/llfchain/consensus"
	"github.com/tolelom/llfchain/crypto"
	"github.com/tolelom/llfchain/engine"
	"github.com/tolelom/llfchain/events"
	"github.com/tolelom/llfchain/eventstore"
	"github.com/tolelom/llfchain/execution"
	"github.com/tolelom/llfchain/network"
	"github.com/tolelom/llfchain/rpc"
	"github.com/tolelom/llfchain/state"
	"github.com/tolelom/llfchain/storage"
	"github.com/tolelom/llfchain/trie"
	"github.com/tolelom/llfchain/types"
)

// Node is one running validator: the wired consensus engine, network bus
// and syncer, plus the underlying storage the process owns and must
// close on shutdown.
type Node struct {
	cfg  *config.Config
	priv crypto.PrivateKey

	db    storage.DB
	state *state.StateStore
	chain *chainstore.ChainStore

	consensus *consensus.Engine
	bus       *network.Bus
	syncer    *network.Syncer
	rpcServer *rpc.Server

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New opens the node's storage, declares genesis if the chain is empty,
// and wires every component. It does not start the network listener or
// the consensus loop — call Start for that.
func New(cfg *config.Config, priv crypto.PrivateKey) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("node: mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		return nil, fmt.Errorf("node: open db: %w", err)
	}

	chain := chainstore.New(db)
	top, err := chain.TopHeight()
	if err != nil {
		db.Close()
		return nil, err
	}

	var tr *trie.Trie
	if top < 0 {
		tr = trie.NewEmpty(db)
	} else {
		header, err := chain.Header(top)
		if err != nil {
			db.Close()
			return nil, err
		}
		tr = trie.New(header.StateRoot, db)
	}

	st := state.New(tr, cfg.Genesis.MinimumValidatorStake)
	exec := execution.New(st, cfg.Genesis.ChainVersion, cfg.FeeRates)
	blockEngine := engine.New(db, st, chain, exec)

	emitter := events.NewEmitter()
	emitter.Subscribe(events.EventBlockCommit, func(ev events.Event) {
		log.Printf("[node] block %d committed: %v", ev.BlockHeight, ev.Data)
	})
	blockEngine.SetEmitter(emitter)

	if top < 0 {
		genesisBlock, err := config.DeclareGenesis(cfg, st, blockEngine)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("node: genesis: %w", err)
		}
		log.Printf("[node] genesis block committed: %s", genesisBlock.Header.BlockHash)
	}

	txs := eventstore.NewTxPool()
	candidate := eventstore.NewCandidateStore()
	vote := eventstore.NewVoteStore()
	confirm := eventstore.NewConfirmStore()
	finalize := eventstore.NewFinalizeQueue()

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("node: tls: %w", err)
	}

	n := &Node{cfg: cfg, priv: priv, db: db, state: st, chain: chain, stopCh: make(chan struct{})}

	eng := consensus.New(cfg.Genesis.ChainID, priv, st, chain, blockEngine,
		txs, candidate, vote, confirm, finalize, nil)
	eng.SetExecutionTimeout(cfg.ExecutionTimeout())
	n.consensus = eng

	p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
	bus := network.NewBus(cfg.NodeID, p2pAddr, eng, n.parentLookup, tlsCfg)
	n.bus = bus
	eng.SetBroadcaster(bus)

	n.syncer = network.NewSyncer(bus, chain, eng)

	rpcHandler := rpc.NewHandler(chain, txs, st, cfg.Genesis.ChainVersion)
	n.rpcServer = rpc.NewServer(fmt.Sprintf(":%d", cfg.RPCPort), rpcHandler, cfg.RPCAuthToken)

	return n, nil
}

func (n *Node) parentLookup(height int64) (*types.BlockHeader, error) {
	return n.chain.Header(height)
}

// Start brings up the P2P listener, connects to seed peers, starts the
// RPC server, and launches the consensus loop in the background.
func (n *Node) Start() error {
	if err := n.bus.Start(); err != nil {
		return fmt.Errorf("node: p2p start: %w", err)
	}
	log.Printf("[node] p2p listening on :%d", n.cfg.P2PPort)

	for _, sp := range n.cfg.SeedPeers {
		if err := n.bus.AddPeer(sp.ID, sp.Addr); err != nil {
			log.Printf("[node] seed peer %s (%s): %v", sp.ID, sp.Addr, err)
			continue
		}
		if peer := n.bus.Peer(sp.ID); peer != nil {
			if err := n.syncer.RequestBlocks(peer, 0); err != nil {
				log.Printf("[node] sync request to %s: %v", sp.ID, err)
			}
		}
	}

	if err := n.rpcServer.Start(); err != nil {
		n.bus.Stop()
		return fmt.Errorf("node: rpc start: %w", err)
	}
	log.Printf("[node] rpc listening on :%d", n.cfg.RPCPort)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.runLoop()
	}()
	return nil
}

// runLoop drives consecutive heights through the consensus engine,
// re-bootstrapping from the persisted chain tip whenever a round returns
// an unrecoverable error (FinalizeError) rather than crash the process.
func (n *Node) runLoop() {
	for {
		select {
		case <-n.stopCh:
			return
		default:
		}

		height, parent, err := n.consensus.Bootstrap()
		if err != nil {
			log.Printf("[node] bootstrap: %v", err)
			time.Sleep(time.Second)
			continue
		}

		if err := n.consensus.RunRound(height, parent); err != nil {
			log.Printf("[node] round %d: %v", height, err)
			time.Sleep(time.Second)
		}
	}
}

// Stop shuts the node down in the order the process's startup order
// implies it must: consensus loop, then RPC, then P2P, then storage.
func (n *Node) Stop() {
	close(n.stopCh)
	n.wg.Wait()
	n.rpcServer.Stop()
	n.bus.Stop()
	n.db.Close()
}
