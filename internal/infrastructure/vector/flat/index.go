// Package flat is a brute-force L2 vector index persisted as a single binary file.
// Positions are insertion order and align with the metadata store.
package flat

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
)

// File layout: magic (8 bytes), dimension (uint32), count (uint32), then count*dimension
// little-endian float32 values.
var magic = [8]byte{'R', 'P', 'P', 'S', 'F', 'L', 'T', '1'}

type Index struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
}

func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}
	return &Index{dimension: dimension}, nil
}

func (x *Index) Dimension() int {
	return x.dimension
}

func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Add appends vectors; the first one added gets the next free position.
func (x *Index) Add(vectors [][]float32) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for i, v := range vectors {
		if len(v) != x.dimension {
			return domain.WrapError(domain.ErrInvalidInput, "flat add",
				fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), x.dimension))
		}
	}
	for _, v := range vectors {
		vec := make([]float32, x.dimension)
		copy(vec, v)
		x.vectors = append(x.vectors, vec)
	}
	return nil
}

// Search returns the k nearest positions by squared L2 distance, closest first.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]domain.IndexHit, error) {
	if len(query) != x.dimension {
		return nil, domain.WrapError(domain.ErrConfiguration, "flat search",
			fmt.Errorf("query dimension %d, index expects %d", len(query), x.dimension))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if k <= 0 || len(x.vectors) == 0 {
		return nil, nil
	}

	hits := make([]domain.IndexHit, len(x.vectors))
	for pos, vec := range x.vectors {
		hits[pos] = domain.IndexHit{Position: pos, Distance: squaredL2(query, vec)}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func (x *Index) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := x.write(w); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, path)
}

func (x *Index) write(w io.Writer) error {
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(x.dimension)); err != nil {
		return fmt.Errorf("write dimension: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(x.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	buf := make([]byte, x.dimension*4)
	for _, vec := range x.vectors {
		for i, v := range vec {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads an index file. A missing file is a configuration error since the service
// cannot answer without one.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrConfiguration, "load flat index", err)
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat index file: %w", err)
	}
	return read(bufio.NewReader(f), info.Size())
}

// headerSize is magic plus dimension and count.
const headerSize = int64(len(magic)) + 8

// read decodes an index whose encoded length is size bytes. The header is checked
// against size before any vector storage is allocated.
func read(r io.Reader, size int64) (*Index, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header != magic {
		return nil, domain.WrapError(domain.ErrConfiguration, "load flat index", errors.New("unknown index file format"))
	}
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimension: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	x, err := New(int(dim))
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "load flat index", err)
	}
	payload, stride := size-headerSize, int64(dim)*4
	if payload < 0 || payload%stride != 0 || payload/stride != int64(n) {
		return nil, domain.WrapError(domain.ErrConfiguration, "load flat index",
			fmt.Errorf("header declares %d vectors of dimension %d but file has %d bytes", n, dim, size))
	}

	x.vectors = make([][]float32, 0, n)
	buf := make([]byte, x.dimension*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vec := make([]float32, x.dimension)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		x.vectors = append(x.vectors, vec)
	}
	return x, nil
}
