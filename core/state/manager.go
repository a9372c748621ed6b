package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"otcd/storage"
)

// Manager provides keyed access to the engine's durable state on top of
// a raw key-value database. All mutating engine entry points run inside
// Transact, which provides the whole-call-chain atomicity the
// settlement protocol depends on: either every write of a top-level
// call commits, or none do.
//
// The manager is not safe for concurrent use. The execution model is a
// single logical thread per transaction; callers (the RPC layer) are
// responsible for serializing top-level calls.
type Manager struct {
	db      storage.Database
	overlay map[string][]byte
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// InTransaction reports whether a transaction overlay is currently open.
func (m *Manager) InTransaction() bool {
	return m != nil && m.overlay != nil
}

// Transact runs fn against a write overlay and commits the overlay to
// the backing database only if fn returns nil. A nested call joins the
// already-open transaction: re-entrant engine invocations share the
// outer call's fate, mirroring a transactional host where the whole
// outer call chain commits or rolls back as one unit.
func (m *Manager) Transact(fn func() error) error {
	if m == nil {
		return fmt.Errorf("state: manager not configured")
	}
	if m.overlay != nil {
		return fn()
	}
	m.overlay = make(map[string][]byte)
	if err := fn(); err != nil {
		m.overlay = nil
		return err
	}
	overlay := m.overlay
	m.overlay = nil
	if len(overlay) == 0 {
		return nil
	}
	// One batch write keeps the commit itself all-or-nothing.
	if err := m.db.WriteBatch(overlay); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

func (m *Manager) kvGet(key []byte) ([]byte, bool) {
	if m.overlay != nil {
		if value, ok := m.overlay[string(key)]; ok {
			return value, len(value) > 0
		}
	}
	value, err := m.db.Get(key)
	if err != nil || len(value) == 0 {
		return nil, false
	}
	return value, true
}

func (m *Manager) kvPut(key, value []byte) error {
	if m.overlay != nil {
		m.overlay[string(key)] = append([]byte(nil), value...)
		return nil
	}
	return m.db.Put(key, value)
}

func storageKey(prefix []byte, parts ...[]byte) []byte {
	buf := append([]byte(nil), prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) loadBigInt(key []byte) (*big.Int, error) {
	data, ok := m.kvGet(key)
	if !ok {
		return big.NewInt(0), nil
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(data, value); err != nil {
		return nil, fmt.Errorf("state: decode amount: %w", err)
	}
	return value, nil
}

func (m *Manager) writeBigInt(key []byte, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return fmt.Errorf("state: negative amount")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.kvPut(key, encoded)
}
