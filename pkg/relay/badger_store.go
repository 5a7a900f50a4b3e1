package relay

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"objectnet/objectnet-go/pkg/channel"
)

const playerKeyPrefix = "player/"

// BadgerStore persists the roster in BadgerDB
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a store in dir
func NewBadgerStore(dir string) (*BadgerStore, error) {
	return OpenBadgerStore(badger.DefaultOptions(dir))
}

// NewInMemoryBadgerStore opens a store that lives only in memory
func NewInMemoryBadgerStore() (*BadgerStore, error) {
	return OpenBadgerStore(badger.DefaultOptions("").WithInMemory(true))
}

// OpenBadgerStore opens a store with explicit badger options
func OpenBadgerStore(opts badger.Options) (*BadgerStore, error) {
	opts.Logger = nil
	opts.NumVersionsToKeep = 1

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func playerKey(connectionID int32) []byte {
	return []byte(fmt.Sprintf("%s%010d", playerKeyPrefix, connectionID))
}

func (s *BadgerStore) SavePlayer(player channel.Player) error {
	data, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("marshal player %d: %w", player.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(playerKey(player.ConnectionID), data)
	})
}

func (s *BadgerStore) DeletePlayer(connectionID int32) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(playerKey(connectionID))
	})
}

func (s *BadgerStore) Players() ([]channel.Player, error) {
	var out []channel.Player

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(playerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.Valid(); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var p channel.Player
			if err := json.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortPlayers(out)
	return out, nil
}

// Close closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
