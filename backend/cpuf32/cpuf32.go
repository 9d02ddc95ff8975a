package cpuf32

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/ndoll1998/cgrad/backend"
	"github.com/ndoll1998/cgrad/cgraderr"
	"github.com/ndoll1998/cgrad/internal/layout"
)

// Name is the registration name this backend is expected to register
// under, matching spec.md's example ("cpu_f32").
const Name = "cpu_f32"

// Backend implements backend.Backend over a plain []float32 buffer.
type Backend struct{}

// New returns a cpu_f32 backend instance. It is not auto-registered;
// callers call backend.Registry.Register(cpuf32.New()) explicitly
// (spec.md §6 read literally — the vtable is "populated at process
// init" as an explicit step, not a package init() side effect).
func New() *Backend { return &Backend{} }

func (*Backend) Name() string { return Name }

func (*Backend) AllocHandle() backend.Handle { return &handle{} }

func (*Backend) Init(h backend.Handle, shape []int) error {
	const op = "cpuf32.Init"
	hh, err := asHandle(h, op)
	if err != nil {
		return err
	}
	l, err := layout.Init(shape)
	if err != nil {
		return cgraderr.Wrap(op, 0, err)
	}
	hh.l = l
	hh.data = make([]float32, l.Size)
	return nil
}

func (*Backend) Free(h backend.Handle) error {
	const op = "cpuf32.Free"
	hh, err := asHandle(h, op)
	if err != nil {
		return err
	}
	hh.data = nil
	return nil
}

func (*Backend) Fill(h backend.Handle, v float32) error {
	const op = "cpuf32.Fill"
	hh, err := asHandle(h, op)
	if err != nil {
		return err
	}
	if hh.data == nil {
		return cgraderr.New(op, cgraderr.HandleUninitialized)
	}
	// Fast path: a contiguous buffer can be filled with one flat loop
	// instead of walking every logical index.
	if hh.l.IsContiguous() {
		for i := range hh.data[:hh.l.Size] {
			hh.data[i] = v
		}
		return nil
	}
	// Broadcast-source trick (spec.md §4.B): a regular-but-non-contiguous
	// layout (strides a single constant step apart) still addresses its
	// elements at even multiples of that step, so one flat strided loop
	// covers it without walking every logical R-dim index.
	if hh.l.IsRegular() {
		step := hh.l.MinNonzeroStride()
		if step == 0 {
			step = 1
		}
		for i := 0; i < hh.l.Size; i++ {
			hh.data[i*step] = v
		}
		return nil
	}
	forEachOffset(hh.l, func(off int) { hh.data[off] = v })
	return nil
}

func (*Backend) FillRand(h backend.Handle) error {
	const op = "cpuf32.FillRand"
	hh, err := asHandle(h, op)
	if err != nil {
		return err
	}
	if hh.data == nil {
		return cgraderr.New(op, cgraderr.HandleUninitialized)
	}
	forEachOffset(hh.l, func(off int) { hh.data[off] = rand.Float32() })
	return nil
}

func (*Backend) Get(h backend.Handle, idx []int) (float32, error) {
	const op = "cpuf32.Get"
	hh, err := asHandle(h, op)
	if err != nil {
		return 0, err
	}
	off, err := hh.l.FlatIndex(idx)
	if err != nil {
		return 0, cgraderr.Wrap(op, 0, err)
	}
	return hh.data[off], nil
}

func (*Backend) Set(h backend.Handle, idx []int, v float32) error {
	const op = "cpuf32.Set"
	hh, err := asHandle(h, op)
	if err != nil {
		return err
	}
	off, err := hh.l.FlatIndex(idx)
	if err != nil {
		return cgraderr.Wrap(op, 0, err)
	}
	hh.data[off] = v
	return nil
}

func (*Backend) ShallowCopy(src, dst backend.Handle) error {
	const op = "cpuf32.ShallowCopy"
	s, err := asHandle(src, op)
	if err != nil {
		return err
	}
	d, err := asHandle(dst, op)
	if err != nil {
		return err
	}
	d.l = s.l
	d.data = s.data
	return nil
}

func (*Backend) Print(h backend.Handle) (string, error) {
	const op = "cpuf32.Print"
	hh, err := asHandle(h, op)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "cpu_f32 %s\n", hh.l.String())
	forEachOffset(hh.l, func(off int) {
		fmt.Fprintf(&sb, "%g ", hh.data[off])
	})
	return sb.String(), nil
}
