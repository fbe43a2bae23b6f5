package relation

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wbrown/joinengine/engine/column"
	"github.com/wbrown/joinengine/engine/index"
)

// mapping tracks a relation file's memory-mapped region so Close can
// release it exactly once, per spec.md §9's "track origin per column"
// note — columns that get narrowed stop referencing this region, but
// any column that stays 64-bit keeps pointing into it until the
// relation itself is closed.
type mapping struct {
	data []byte
}

func (m *mapping) unmap() error {
	if m.data == nil {
		return nil
	}
	return unix.Munmap(m.data)
}

// headerSize is the fixed 16-byte relation file header: an 8-byte
// little-endian row count followed by an 8-byte column count
// (spec.md §6).
const headerSize = 16

// Load opens a relation file, maps it read-only/private, and slices the
// mapped region into k contiguous uint64 columns of n values each. This
// is the external-collaborator contract from spec.md §6: the mmap
// mechanics are deliberately minimal, just enough to hand the rest of
// the engine typed column slices.
func Load(id int, path string) (*Relation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open relation %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat relation %s: %w", path, err)
	}
	size := info.Size()
	if size < headerSize {
		return nil, fmt.Errorf("relation file %s does not contain a valid header", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap relation %s: %w", path, err)
	}

	n := binary.LittleEndian.Uint64(data[0:8])
	k := binary.LittleEndian.Uint64(data[8:16])

	expect := headerSize + int64(n)*int64(k)*8
	if size < expect {
		unix.Munmap(data)
		return nil, fmt.Errorf("relation file %s truncated: header declares %d rows x %d columns, file is %d bytes", path, n, k, size)
	}

	columns := make([]column.Column, k)
	payload := data[headerSize:]
	for c := uint64(0); c < k; c++ {
		start := c * n * 8
		end := start + n*8
		columns[c] = column.FromU64(bytesToUint64(payload[start:end], int(n)))
	}

	return &Relation{
		id:      id,
		tuples:  n,
		columns: columns,
		indexes: make([]*index.ColumnIndex, k),
		mapping: &mapping{data: data},
	}, nil
}

// bytesToUint64 reinterprets a byte slice as a []uint64 without copying,
// matching the original's `reinterpret_cast<uint64_t*>`. The slice
// shares memory with the mmap'ed region until a column is narrowed.
func bytesToUint64(b []byte, n int) []uint64 {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), n)
}

// LoadInit reads the plain-text init file (one relation file path per
// line, spec.md §6) and loads every listed relation, assigning relation
// ids by line order.
func LoadInit(path string) ([]*Relation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open init file %s: %w", path, err)
	}
	defer f.Close()

	var relations []*Relation
	scanner := bufio.NewScanner(f)
	id := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rel, err := Load(id, line)
		if err != nil {
			return nil, fmt.Errorf("init file %s line %d: %w", path, id+1, err)
		}
		relations = append(relations, rel)
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read init file %s: %w", path, err)
	}
	return relations, nil
}
