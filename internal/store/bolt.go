package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt is a single-node durable store. Each namespace is a bucket.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the bbolt file at path.
func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}

	var fileMode fs.FileMode = 0o600

	db, err := bolt.Open(path, fileMode, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("bolt file %s is locked by another process: %w", path, err)
	}
	if err != nil {
		return nil, err
	}

	return &Bolt{db: db}, nil
}

// Close releases the underlying file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Get(_ context.Context, namespace, key string) (string, bool, error) {
	var (
		value string
		found bool
	)

	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return nil
		}

		v := bucket.Get([]byte(key))
		if v == nil {
			return nil
		}

		value, found = string(v), true
		return nil
	})

	return value, found, b.wrap(err)
}

func (b *Bolt) Set(_ context.Context, namespace, key, value string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}

		return bucket.Put([]byte(key), []byte(value))
	})

	return b.wrap(err)
}

func (b *Bolt) Remove(_ context.Context, namespace, key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return nil
		}

		return bucket.Delete([]byte(key))
	})

	return b.wrap(err)
}

func (b *Bolt) Clear(_ context.Context, namespace string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(namespace))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})

	return b.wrap(err)
}

func (b *Bolt) All(_ context.Context, namespace string) (map[string]string, error) {
	out := make(map[string]string)

	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})

	return out, b.wrap(err)
}

func (b *Bolt) wrap(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}
