package persistent

// Bolt is a pure Go key/value store that doesn't require a full database server
import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/boltdb/bolt"
	"github.com/zkfleet/zkfleet/common"
)

var serversBucketName = []byte("servers")

// BoltCatalog is a catalog implementation backed by a Bolt DB. Keys come
// from the bucket sequence, so cursor order is insertion order.
type BoltCatalog struct {
	db *bolt.DB
}

var _ common.Catalog = BoltCatalog{}

func NewBoltCatalog(dataBaseFilePath string) (BoltCatalog, error) {
	if err := os.MkdirAll(filepath.Dir(dataBaseFilePath), 0755); err != nil {
		return BoltCatalog{}, err
	}
	// It will be created if it doesn't exist.
	db, err := bolt.Open(dataBaseFilePath, 0600, nil)
	if err != nil {
		return BoltCatalog{}, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(serversBucketName)
		return err
	})
	if err != nil {
		db.Close()
		return BoltCatalog{}, err
	}

	return BoltCatalog{
		db: db,
	}, nil
}

func (c BoltCatalog) Add(record common.ServerRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	val, err := encodeRecord(record)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(serversBucketName)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		return bucket.Put(uint64ToBytes(seq), val)
	})
}

func (c BoltCatalog) List() ([]common.ServerRecord, error) {
	records := []common.ServerRecord{}
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(serversBucketName).ForEach(func(k, v []byte) error {
			record, err := decodeRecord(v)
			if err != nil {
				return fmt.Errorf("[List]: corrupt record: %w", err)
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (c BoltCatalog) Remove(host string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(serversBucketName)
		var doomed [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			record, err := decodeRecord(v)
			if err != nil {
				return err
			}
			if record.Host == host {
				doomed = append(doomed, append([]byte{}, k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range doomed {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c BoltCatalog) Close() error {
	return c.db.Close()
}
