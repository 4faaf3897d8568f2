package storage

import (
	stderrors "errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/types"
)

// LevelDB is a host key/value store on goleveldb. Store failures panic; the
// host callbacks that drive it recover panics into foreign faults.
type LevelDB struct {
	db *leveldb.DB
}

var _ types.KVStore = (*LevelDB)(nil)

// OpenLevelDB opens or creates a database in dir.
func OpenLevelDB(dir string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseBackend, errors.KindInvalidData, err, "open leveldb "+dir)
	}
	return &LevelDB{db: db}, nil
}

// NewMemLevelDB creates a database held in memory.
func NewMemLevelDB() *LevelDB {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		// memory storage cannot fail to open
		panic(err)
	}
	return &LevelDB{db: db}
}

func (l *LevelDB) Get(key []byte) []byte {
	value, err := l.db.Get(key, nil)
	if stderrors.Is(err, leveldb.ErrNotFound) {
		return nil
	}
	if err != nil {
		panic(errors.Wrap(errors.PhaseBackend, errors.KindBackendUnknown, err, "leveldb get"))
	}
	if value == nil {
		value = []byte{}
	}
	return value
}

func (l *LevelDB) Set(key, value []byte) {
	if err := l.db.Put(key, value, nil); err != nil {
		panic(errors.Wrap(errors.PhaseBackend, errors.KindBackendUnknown, err, "leveldb put"))
	}
}

func (l *LevelDB) Delete(key []byte) {
	if err := l.db.Delete(key, nil); err != nil {
		panic(errors.Wrap(errors.PhaseBackend, errors.KindBackendUnknown, err, "leveldb delete"))
	}
}

func (l *LevelDB) Iterator(start, end []byte) types.Iterator {
	it := l.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	return &levelIterator{it: it, valid: it.First()}
}

func (l *LevelDB) ReverseIterator(start, end []byte) types.Iterator {
	it := l.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	return &levelIterator{it: it, valid: it.Last(), reverse: true}
}

// Close closes the database. Open iterators must be closed first.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

type levelIterator struct {
	it      iterator.Iterator
	valid   bool
	reverse bool
}

func (i *levelIterator) Valid() bool {
	return i.valid
}

func (i *levelIterator) Next() {
	if !i.valid {
		return
	}
	if i.reverse {
		i.valid = i.it.Prev()
	} else {
		i.valid = i.it.Next()
	}
}

// Key returns a copy; goleveldb reuses the buffer on the next move.
func (i *levelIterator) Key() []byte {
	return append([]byte{}, i.it.Key()...)
}

func (i *levelIterator) Value() []byte {
	return append([]byte{}, i.it.Value()...)
}

func (i *levelIterator) Error() error {
	return i.it.Error()
}

func (i *levelIterator) Close() error {
	i.it.Release()
	i.valid = false
	return i.it.Error()
}
