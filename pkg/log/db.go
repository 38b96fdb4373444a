// SPDX-License-Identifier: GPL-2.0-or-later

package log

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const dbAPIversion = "1"

const defaultMaxKeys = 100000

// DB capture log database.
type DB struct {
	dbPath  string
	maxKeys int

	db *bolt.DB
	wg *sync.WaitGroup

	// Wait for last log to be saved before closing db.
	saveWG sync.WaitGroup
}

// NewDB new log database.
func NewDB(dbPath string, wg *sync.WaitGroup) *DB {
	return &DB{
		dbPath:  dbPath,
		maxKeys: defaultMaxKeys,
		wg:      wg,
	}
}

// Init opens the database. It is closed when the context is canceled.
func (logDB *DB) Init(ctx context.Context) error {
	dbOpts := &bolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bolt.Open(logDB.dbPath, 0o600, dbOpts)
	if err != nil {
		return fmt.Errorf("open database: %w: %v", err, logDB.dbPath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(dbAPIversion))
		return err
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("create bucket: %v, %w", dbAPIversion, err)
	}

	logDB.db = db

	logDB.wg.Add(1)
	go func() {
		<-ctx.Done()
		logDB.saveWG.Wait()
		db.Close()
		logDB.wg.Done()
	}()

	return nil
}

// SaveLogs saves logs from the logger into the database
// until the context is canceled.
func (logDB *DB) SaveLogs(ctx context.Context, l *Logger) {
	logDB.saveWG.Add(1)
	defer logDB.saveWG.Done()

	feed, cancel := l.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-feed:
			if !ok {
				return
			}
			if err := logDB.saveLog(entry); err != nil {
				fmt.Fprintf(os.Stderr, "could not save log: %v %v\n", entry.Msg, err)
			}
		}
	}
}

func (logDB *DB) saveLog(entry Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return logDB.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(dbAPIversion))

		if b.Stats().KeyN >= logDB.maxKeys {
			if err := deleteFirstKey(b); err != nil {
				return fmt.Errorf("delete first key: %w", err)
			}
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(encodeKey(uint64(entry.Time), seq), value)
	})
}

func deleteFirstKey(b *bolt.Bucket) error {
	k, _ := b.Cursor().First()
	return b.Delete(k)
}

// Query database query. Nil filters match everything.
type Query struct {
	Levels   []Level
	Time     UnixMicro // Only entries before this time, 0 for all.
	Sources  []string
	Segments []string
	Limit    int
}

// Query logs in database, newest first.
func (logDB *DB) Query(q Query) ([]Entry, error) {
	var entries []Entry

	limit := q.Limit
	if limit == 0 {
		limit = defaultMaxKeys
	}

	err := logDB.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(dbAPIversion)).Cursor()

		var key, value []byte
		if q.Time == 0 {
			key, value = c.Last()
		} else {
			key, _ = c.Seek(encodeKey(uint64(q.Time), 0))
			if key == nil {
				key, value = c.Last()
			} else {
				key, value = c.Prev()
			}
		}

		for ; key != nil && len(entries) < limit; key, value = c.Prev() {
			var entry Entry
			if err := json.Unmarshal(value, &entry); err != nil {
				return fmt.Errorf("unmarshal log: %w", err)
			}
			if q.match(entry) {
				entries = append(entries, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (q Query) match(entry Entry) bool {
	return levelInLevels(entry.Level, q.Levels) &&
		stringInStrings(entry.Src, q.Sources) &&
		stringInStrings(entry.Segment, q.Segments)
}

func levelInLevels(level Level, levels []Level) bool {
	if levels == nil {
		return true
	}
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}

func stringInStrings(s string, strings []string) bool {
	if strings == nil {
		return true
	}
	for _, str := range strings {
		if str == s {
			return true
		}
	}
	return false
}

// Key is the big endian time followed by a sequence number
// so entries with the same timestamp keep their order.
func encodeKey(time uint64, seq uint64) []byte {
	output := make([]byte, 16)
	binary.BigEndian.PutUint64(output, time)
	binary.BigEndian.PutUint64(output[8:], seq)
	return output
}
