// Package backend implements the engine's Backend capability surface (spec
// component C2): a process-wide resource with an explicit init/cleanup
// lifecycle that owns allocation and kernel dispatch. The core calls into
// Backend through the narrow set of methods below; it never manipulates
// Storage bytes directly.
//
// The concrete numeric kernels are delegated to gorgonia.org/tensor's
// *tensor.Dense and its StdEng CPU engine — the spec treats kernels as an
// external, replaceable collaborator (spec §1), and gorgonia.org/tensor is
// this engine's collaborator, the same way csotherden-gorgonia-mps narrows
// tensor.Engine down to one swappable method (MatMul) while delegating the
// rest to tensor.StdEng.
package backend

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorgonia.org/tensor"

	"github.com/example/lazygrad/internal/dtype"
	"github.com/example/lazygrad/internal/lazyerr"
	"github.com/example/lazygrad/internal/shape"
)

// Backend is the process-wide resource described in spec §3/§5/§6: a
// scoped acquisition guarded by Init/Cleanup. Concurrent use of one
// Backend from multiple goroutines is not supported; callers must
// externally serialize, per spec §5.
type Backend struct {
	mu          sync.Mutex
	initialized bool
	sessionID   uuid.UUID
	engine      tensor.Engine
	logger      zerolog.Logger
}

// New constructs an uninitialized Backend bound to the default CPU
// (tensor.StdEng) engine.
func New() *Backend {
	return &Backend{engine: tensor.StdEng{}, logger: log.Logger}
}

// Init acquires the backend session. It is idempotent-unsafe by design:
// calling Init twice without an intervening Cleanup is a programmer error,
// matching the "scoped acquisition" contract in spec §6.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionID = uuid.New()
	b.initialized = true
	b.logger = b.logger.With().Str("backend_session", b.sessionID.String()).Logger()
	b.logger.Debug().Msg("backend initialized")
	return nil
}

// Cleanup releases the backend session. All Storages allocated during the
// session become unreachable from the core after this call; per spec §3,
// their lifetime is bounded by the Backend session.
func (b *Backend) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger.Debug().Msg("backend cleaned up")
	b.initialized = false
}

// SessionID returns the current session's id, used by the JIT cache to
// namespace compiled signatures to one Backend session (spec §4.7: "the
// cache is keyed within a single Backend session and cleared at
// cleanup").
func (b *Backend) SessionID() uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

// Logger exposes the session-scoped structured logger for use by the
// eval/autograd/jit packages.
func (b *Backend) Logger() *zerolog.Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &b.logger
}

func (b *Backend) checkInit(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return lazyerr.New(lazyerr.BackendUninitialized, op, "no active Backend scope")
	}
	return nil
}

func toGorgoniaDtype(dt dtype.Dtype) tensor.Dtype {
	switch dt {
	case dtype.F32:
		return tensor.Float32
	case dtype.I32:
		return tensor.Int32
	case dtype.B8:
		return tensor.Bool
	default:
		return tensor.Float32
	}
}

func fromGorgoniaDtype(dt tensor.Dtype) dtype.Dtype {
	switch dt {
	case tensor.Int32:
		return dtype.I32
	case tensor.Bool:
		return dtype.B8
	default:
		return dtype.F32
	}
}

// Allocate reserves a fresh, zero-valued Storage for n elements of dt.
func (b *Backend) Allocate(dt dtype.Dtype, n int) (*Storage, error) {
	if err := b.checkInit("allocate"); err != nil {
		return nil, err
	}
	d := tensor.New(tensor.WithShape(n), tensor.Of(toGorgoniaDtype(dt)), tensor.WithEngine(b.engine))
	return newStorage(d), nil
}

// Upload copies a host buffer into a freshly-allocated Storage of the
// given shape and dtype (the from_numpy / from_slice constructor path).
func (b *Backend) Upload(data any, dt dtype.Dtype, sh shape.Shape) (*Storage, error) {
	if err := b.checkInit("upload"); err != nil {
		return nil, err
	}
	dims := make([]int, len(sh))
	copy(dims, sh)
	d := tensor.New(
		tensor.WithShape(dims...),
		tensor.Of(toGorgoniaDtype(dt)),
		tensor.WithBacking(data),
		tensor.WithEngine(b.engine),
	)
	return newStorage(d), nil
}

// Download streams the contiguous bytes of storage's view back to the
// host as a dtype-typed Go slice (numpy()/download() boundary, spec
// §4.5). storage is assumed realized and contiguous, since the backend
// only ever produces contiguous Storages (movement ops are realized
// eagerly, see Movement).
func (b *Backend) Download(s *Storage) (any, error) {
	if err := b.checkInit("download"); err != nil {
		return nil, err
	}
	return s.dense.Data(), nil
}

// Fill sets every element of storage to scalar (the zeros/ones/full
// constructor path).
func (b *Backend) Fill(s *Storage, scalar float64) error {
	if err := b.checkInit("fill"); err != nil {
		return err
	}
	return memset(s.dense, scalar)
}

// Iota fills storage with start, start+step, start+2*step, ... (the
// arange constructor path).
func (b *Backend) Iota(s *Storage, start, step float64) error {
	if err := b.checkInit("iota"); err != nil {
		return err
	}
	switch data := s.dense.Data().(type) {
	case []float32:
		for i := range data {
			data[i] = float32(start + float64(i)*step)
		}
	case []int32:
		for i := range data {
			data[i] = int32(start + float64(i)*step)
		}
	case []bool:
		for i := range data {
			data[i] = (start + float64(i)*step) != 0
		}
	default:
		return lazyerr.Newf(lazyerr.DtypeUnsupported, "iota", "unsupported backing type %T", data)
	}
	return nil
}

func memset(d *tensor.Dense, scalar float64) error {
	switch data := d.Data().(type) {
	case []float32:
		v := float32(scalar)
		for i := range data {
			data[i] = v
		}
	case []int32:
		v := int32(scalar)
		for i := range data {
			data[i] = v
		}
	case []bool:
		v := scalar != 0
		for i := range data {
			data[i] = v
		}
	case float32:
		// scalar (0-dim) tensor: Data() returns the bare element.
		return nil
	default:
		return lazyerr.Newf(lazyerr.DtypeUnsupported, "fill", "unsupported backing type %T", data)
	}
	return nil
}

// BackendError wraps a lower-level kernel failure with the op that
// produced it, satisfying spec §7's BackendError(op, msg) kind.
func (b *Backend) wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	b.logger.Error().Err(err).Str("op", op).Msg("backend kernel failed")
	return lazyerr.Wrap(lazyerr.BackendErrorKind, op, fmt.Errorf("%s: %w", op, err))
}
