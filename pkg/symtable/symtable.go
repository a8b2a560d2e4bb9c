package symtable

import (
	"debug/elf"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrSymNotFound   = errors.New("symbol not found")
	ErrSymTableEmpty = errors.New("symtable is empty")
)

// ELFSymTab resolves instruction pointers to symbol names by looking up the
// .symtab section of a non-stripped ELF executable. Symbolication is an
// optional downstream step, never part of the capture hot path.
type ELFSymTab struct {
	Symtab []elf.Symbol

	mu    sync.RWMutex
	cache map[uint64]string
}

func NewELFSymTab() *ELFSymTab {
	return &ELFSymTab{
		Symtab: make([]elf.Symbol, 0),
		cache:  make(map[uint64]string),
	}
}

// Load reads the symbol table of the ELF file at pathname. Repeated loads
// are no-ops once a table is present.
func (e *ELFSymTab) Load(pathname string) error {
	if len(e.Symtab) > 0 {
		return nil
	}

	file, err := elf.Open(pathname)
	if err != nil {
		return errors.Wrap(err, "error opening ELF file")
	}
	defer file.Close()

	syms, err := file.Symbols()
	if err != nil {
		return errors.Wrap(err, "error reading ELF symtable section")
	}
	e.Symtab = syms

	return nil
}

// GetName returns the symbol name covering the instruction pointer address.
func (e *ELFSymTab) GetName(ip uint64) (string, error) {
	if len(e.Symtab) == 0 {
		return "", ErrSymTableEmpty
	}

	e.mu.RLock()
	name, ok := e.cache[ip]
	e.mu.RUnlock()
	if ok {
		return name, nil
	}

	for _, s := range e.Symtab {
		if ip >= s.Value && ip < (s.Value+s.Size) {
			e.mu.Lock()
			e.cache[ip] = s.Name
			e.mu.Unlock()
			return s.Name, nil
		}
	}

	return "", ErrSymNotFound
}
