package reactive

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Symbol is a property key that can never collide with a string key.
type Symbol uint64

var (
	symbolSeq      atomic.Uint64
	symbolMu       sync.RWMutex
	symbolDescs    = map[Symbol]string{}
	builtInSymbols = map[Symbol]struct{}{}
)

func wellKnownSymbol(name string) Symbol {
	desc := "Symbol." + name
	s := Symbol(xxhash.Sum64String(desc))
	symbolDescs[s] = desc
	builtInSymbols[s] = struct{}{}
	return s
}

// Built-in meta symbols. Reads of these keys are never tracked or wrapped.
var (
	SymbolIterator      = wellKnownSymbol("iterator")
	SymbolAsyncIterator = wellKnownSymbol("asyncIterator")
	SymbolHasInstance   = wellKnownSymbol("hasInstance")
	SymbolToPrimitive   = wellKnownSymbol("toPrimitive")
	SymbolToStringTag   = wellKnownSymbol("toStringTag")
	SymbolSpecies       = wellKnownSymbol("species")
	SymbolUnscopables   = wellKnownSymbol("unscopables")
)

// IterateKey is the synthetic key iteration dependencies are recorded under.
var IterateKey = NewSymbol("iterate")

// NewSymbol returns a fresh symbol. Two calls with the same description
// return distinct symbols.
func NewSymbol(description string) Symbol {
	n := symbolSeq.Add(1)
	s := Symbol(xxhash.Sum64String(description + "#" + strconv.FormatUint(n, 10)))

	symbolMu.Lock()
	defer symbolMu.Unlock()
	symbolDescs[s] = description
	return s
}

// Description returns the text the symbol was created with.
func (s Symbol) Description() string {
	symbolMu.RLock()
	defer symbolMu.RUnlock()
	return symbolDescs[s]
}

func (s Symbol) String() string {
	return "Symbol(" + s.Description() + ")"
}

func isBuiltInSymbol(key Key) bool {
	s, ok := key.(Symbol)
	if !ok {
		return false
	}
	_, ok = builtInSymbols[s]
	return ok
}
