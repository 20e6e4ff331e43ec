package network

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/tolelom/llfchain/types"
)

// MessageHandler is called for each received message.
type MessageHandler func(peer *Peer, msg Message)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// Receiver is whatever local component admits messages heard over the
// wire; consensus.Engine implements it.
type Receiver interface {
	ReceiveTx(tx *types.Transaction, now int64) error
	ReceiveCandidate(block *types.Block) error
	ReceiveVote(v *types.Vote) error
	ReceiveConfirm(c *types.Confirm) error
	ReceiveFinalize(block *types.Block, parent *types.BlockHeader) error
}

// ParentLookup resolves the parent header a received finalize message
// should be checked against.
type ParentLookup func(height int64) (*types.BlockHeader, error)

// Bus is the five-exchange fan-out message bus: a Node with handlers
// wired to a Receiver. It implements consensus.Broadcaster.
type Bus struct {
	nodeID     string
	listenAddr string
	receiver   Receiver
	parent     ParentLookup
	tlsConfig  *tls.Config // nil → plain TCP
	maxPeers   int

	mu       sync.RWMutex
	peers    map[string]*Peer
	handlers map[MsgType]MessageHandler

	listener net.Listener
	stopCh   chan struct{}
}

// NewBus creates a Bus that will listen on listenAddr and deliver
// decoded messages to receiver.
func NewBus(nodeID, listenAddr string, receiver Receiver, parent ParentLookup, tlsCfg *tls.Config) *Bus {
	b := &Bus{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		receiver:   receiver,
		parent:     parent,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		peers:      make(map[string]*Peer),
		handlers:   make(map[MsgType]MessageHandler),
		stopCh:     make(chan struct{}),
	}
	b.Handle(MsgTx, b.handleTx)
	b.Handle(MsgCandidate, b.handleCandidate)
	b.Handle(MsgVote, b.handleVote)
	b.Handle(MsgConfirm, b.handleConfirm)
	b.Handle(MsgFinalize, b.handleFinalize)
	return b
}

// Handle registers a handler for msg type.
func (b *Bus) Handle(typ MsgType, h MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[typ] = h
}

// Start begins accepting connections.
func (b *Bus) Start() error {
	var ln net.Listener
	var err error
	if b.tlsConfig != nil {
		ln, err = tls.Listen("tcp", b.listenAddr, b.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", b.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", b.listenAddr, err)
	}
	b.listener = ln
	go b.acceptLoop()
	return nil
}

// Stop shuts down the bus.
func (b *Bus) Stop() {
	close(b.stopCh)
	if b.listener != nil {
		b.listener.Close()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.peers {
		p.Close()
	}
}

// AddPeer dials addr and registers the peer.
func (b *Bus) AddPeer(id, addr string) error {
	peer, err := Connect(id, addr, b.tlsConfig)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.peers[id] = peer
	b.mu.Unlock()
	go b.readLoop(peer)

	hello, err := json.Marshal(map[string]string{"node_id": b.nodeID})
	if err != nil {
		log.Printf("[network] marshal hello: %v", err)
		return nil
	}
	if err := peer.Send(Message{Type: MsgHello, Payload: hello}); err != nil {
		log.Printf("[network] send hello to %s: %v", id, err)
	}
	return nil
}

// Peer returns the connected peer with the given id, or nil if not found.
func (b *Bus) Peer(id string) *Peer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.peers[id]
}

// Broadcast sends msg to all connected peers.
func (b *Bus) Broadcast(msg Message) {
	b.mu.RLock()
	peers := make([]*Peer, 0, len(b.peers))
	for _, p := range b.peers {
		peers = append(peers, p)
	}
	b.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			log.Printf("[network] broadcast to %s: %v", p.ID, err)
		}
	}
}

// BroadcastTx implements consensus.Broadcaster.
func (b *Bus) BroadcastTx(tx *types.Transaction) error {
	data, err := encodeTx(tx)
	if err != nil {
		return err
	}
	b.Broadcast(Message{Type: MsgTx, Payload: data})
	return nil
}

// BroadcastCandidate implements consensus.Broadcaster.
func (b *Bus) BroadcastCandidate(block *types.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}
	b.Broadcast(Message{Type: MsgCandidate, Payload: data})
	return nil
}

// BroadcastVote implements consensus.Broadcaster.
func (b *Bus) BroadcastVote(v *types.Vote) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.Broadcast(Message{Type: MsgVote, Payload: data})
	return nil
}

// BroadcastConfirm implements consensus.Broadcaster.
func (b *Bus) BroadcastConfirm(c *types.Confirm) error {
	data, err := encodeConfirm(c)
	if err != nil {
		return err
	}
	b.Broadcast(Message{Type: MsgConfirm, Payload: data})
	return nil
}

// BroadcastFinalize implements consensus.Broadcaster.
func (b *Bus) BroadcastFinalize(block *types.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}
	b.Broadcast(Message{Type: MsgFinalize, Payload: data})
	return nil
}

func (b *Bus) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			select {
			case <-b.stopCh:
				return
			default:
				log.Printf("[network] accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		b.mu.RLock()
		peerCount := len(b.peers)
		b.mu.RUnlock()
		if peerCount >= b.maxPeers {
			log.Printf("[network] max peers (%d) reached, rejecting %s", b.maxPeers, conn.RemoteAddr())
			conn.Close()
			continue
		}
		peer := NewPeer(conn.RemoteAddr().String(), conn.RemoteAddr().String(), conn)
		b.mu.Lock()
		b.peers[peer.ID] = peer
		b.mu.Unlock()
		go b.readLoop(peer)
	}
}

func (b *Bus) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[network] readLoop panic from %s: %v", peer.ID, r)
		}
		peer.Close()
		b.mu.Lock()
		delete(b.peers, peer.ID)
		b.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		b.mu.RLock()
		h, ok := b.handlers[msg.Type]
		b.mu.RUnlock()
		if ok {
			h(peer, msg)
		}
	}
}

func (b *Bus) handleTx(_ *Peer, msg Message) {
	tx, err := decodeTx(msg.Payload)
	if err != nil {
		log.Printf("[network] %v", err)
		return
	}
	if err := b.receiver.ReceiveTx(tx, time.Now().UnixNano()); err != nil {
		log.Printf("[network] reject tx: %v", err)
	}
}

func (b *Bus) handleCandidate(_ *Peer, msg Message) {
	var block types.Block
	if err := json.Unmarshal(msg.Payload, &block); err != nil {
		log.Printf("[network] unmarshal candidate: %v", err)
		return
	}
	if err := b.receiver.ReceiveCandidate(&block); err != nil {
		log.Printf("[network] reject candidate: %v", err)
	}
}

func (b *Bus) handleVote(_ *Peer, msg Message) {
	var v types.Vote
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		log.Printf("[network] unmarshal vote: %v", err)
		return
	}
	if err := b.receiver.ReceiveVote(&v); err != nil {
		log.Printf("[network] reject vote: %v", err)
	}
}

func (b *Bus) handleConfirm(_ *Peer, msg Message) {
	c, err := decodeConfirm(msg.Payload)
	if err != nil {
		log.Printf("[network] %v", err)
		return
	}
	if err := b.receiver.ReceiveConfirm(c); err != nil {
		log.Printf("[network] reject confirm: %v", err)
	}
}

func (b *Bus) handleFinalize(_ *Peer, msg Message) {
	var block types.Block
	if err := json.Unmarshal(msg.Payload, &block); err != nil {
		log.Printf("[network] unmarshal finalize: %v", err)
		return
	}
	var parent *types.BlockHeader
	if b.parent != nil {
		var err error
		parent, err = b.parent(block.Header.Height - 1)
		if err != nil && block.Header.Height > 0 {
			log.Printf("[network] parent lookup for finalize height %d: %v", block.Header.Height, err)
			return
		}
	}
	if err := b.receiver.ReceiveFinalize(&block, parent); err != nil {
		log.Printf("[network] reject finalize: %v", err)
	}
}
