package replica

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cachemir/zonecache/pkg/latch"
	"github.com/cachemir/zonecache/pkg/wire"
)

// connPool manages a bounded pool of TCP connections to a single
// backend address. It is the same create-on-demand-then-reuse shape
// as the teacher's client.ConnectionPool, generalized to serve any
// Replica rather than one hard-wired client type.
type connPool struct {
	address     string
	connTimeout time.Duration
	connections chan net.Conn

	mu      sync.Mutex
	created int
	max     int
}

func newConnPool(address string, max int, connTimeout time.Duration) *connPool {
	return &connPool{
		address:     address,
		connTimeout: connTimeout,
		connections: make(chan net.Conn, max),
		max:         max,
	}
}

func (p *connPool) get(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-p.connections:
		return conn, nil
	default:
	}

	p.mu.Lock()
	if p.created < p.max {
		p.created++
		p.mu.Unlock()

		dialer := &net.Dialer{Timeout: p.connTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", p.address)
		if err != nil {
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrConnect, err)
		}
		return conn, nil
	}
	p.mu.Unlock()

	select {
	case conn := <-p.connections:
		return conn, nil
	case <-time.After(p.connTimeout):
		return nil, ErrQueueFull
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *connPool) put(conn net.Conn) {
	select {
	case p.connections <- conn:
	default:
		_ = conn.Close()
		p.mu.Lock()
		p.created--
		p.mu.Unlock()
	}
}

func (p *connPool) discard(conn net.Conn) {
	_ = conn.Close()
	p.mu.Lock()
	p.created--
	p.mu.Unlock()
}

func (p *connPool) close() {
	close(p.connections)
	for conn := range p.connections {
		_ = conn.Close()
	}
}

// TCPReplica adapts a pkg/wire connection to the Replica contract.
// Connections are pooled per replica instance, mirroring the teacher's
// one-ConnectionPool-per-node design.
type TCPReplica struct {
	serverGroup string
	duet        bool
	pool        *connPool
	log         *zap.Logger
}

// TCPReplicaConfig configures a TCPReplica.
type TCPReplicaConfig struct {
	Address        string
	ServerGroup    string
	IsDuetClient   bool
	MaxConnections int
	ConnectTimeout time.Duration
	Logger         *zap.Logger
}

// NewTCPReplica constructs a TCPReplica per cfg.
func NewTCPReplica(cfg TCPReplicaConfig) *TCPReplica {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	connTimeout := cfg.ConnectTimeout
	if connTimeout <= 0 {
		connTimeout = 5 * time.Second
	}
	return &TCPReplica{
		serverGroup: cfg.ServerGroup,
		duet:        cfg.IsDuetClient,
		pool:        newConnPool(cfg.Address, maxConns, connTimeout),
		log:         logger.With(zap.String("server_group", cfg.ServerGroup), zap.String("address", cfg.Address)),
	}
}

func (r *TCPReplica) ServerGroup() string  { return r.serverGroup }
func (r *TCPReplica) IsDuetClient() bool   { return r.duet }

// Close releases every pooled connection. Safe to call once.
func (r *TCPReplica) Close() { r.pool.close() }

func (r *TCPReplica) roundTrip(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	conn, err := r.pool.get(ctx)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := wire.WriteRequest(conn, req); err != nil {
		r.pool.discard(conn)
		r.log.Debug("write request failed", zap.Error(err))
		return nil, fmt.Errorf("replica: write request: %w", err)
	}

	resp, err := wire.ReadResponse(conn)
	if err != nil {
		r.pool.discard(conn)
		r.log.Debug("read response failed", zap.Error(err))
		return nil, fmt.Errorf("replica: read response: %w", err)
	}

	r.pool.put(conn)
	return resp, nil
}

func markLatch(l *latch.Latch, err error) {
	if l == nil {
		return
	}
	if err != nil {
		l.MarkFailure()
	} else {
		l.MarkSuccess()
	}
}

func (r *TCPReplica) Get(ctx context.Context, wireKey string) (Result, error) {
	resp, err := r.roundTrip(ctx, &wire.Request{Op: wire.OpGet, Key: wireKey})
	if err != nil {
		return Result{}, err
	}
	return resultFromResponse(resp)
}

func (r *TCPReplica) GetBulk(ctx context.Context, wireKeys []string) (map[string]Result, error) {
	out := make(map[string]Result, len(wireKeys))
	for _, k := range wireKeys {
		res, err := r.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if res.Found {
			out[k] = res
		}
	}
	return out, nil
}

func (r *TCPReplica) AsyncGet(ctx context.Context, wireKey string) (<-chan Result, <-chan error) {
	resultCh := make(chan Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := r.Get(ctx, wireKey)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- res
	}()
	return resultCh, errCh
}

func (r *TCPReplica) MetaGet(ctx context.Context, wireKey string, flags uint8) (MetaResult, error) {
	resp, err := r.roundTrip(ctx, &wire.Request{Op: wire.OpMetaGet, Key: wireKey, MetaFlags: wire.MetaFlag(flags)})
	if err != nil {
		return MetaResult{}, err
	}
	res, err := resultFromResponse(resp)
	if err != nil {
		return MetaResult{}, err
	}
	return MetaResult{
		Result:            res,
		TTL:               resp.TTL,
		LastAccessSeconds: resp.LastAccess,
		HitBefore:         resp.HitBefore,
	}, nil
}

func (r *TCPReplica) MetaDebug(ctx context.Context, wireKey string) (map[string]string, error) {
	resp, err := r.roundTrip(ctx, &wire.Request{Op: wire.OpMetaDebug, Key: wireKey})
	if err != nil {
		return nil, err
	}
	if resp.Status == wire.StatusNotFound {
		return nil, nil
	}
	out := map[string]string{
		"la": fmt.Sprintf("%d", resp.LastAccess),
	}
	if resp.HitBefore {
		out["hv"] = "1"
	} else {
		out["hv"] = "0"
	}
	return out, nil
}

func (r *TCPReplica) Set(ctx context.Context, wireKey string, flags uint32, value []byte, ttl int64, l *latch.Latch) error {
	_, err := r.roundTrip(ctx, &wire.Request{Op: wire.OpSet, Key: wireKey, Value: value, Flags: flags, TTL: ttl})
	markLatch(l, err)
	return err
}

func (r *TCPReplica) Add(ctx context.Context, wireKey string, flags uint32, value []byte, ttl int64, l *latch.Latch) error {
	resp, err := r.roundTrip(ctx, &wire.Request{Op: wire.OpAdd, Key: wireKey, Value: value, Flags: flags, TTL: ttl})
	if err == nil && resp.Status == wire.StatusNotStored {
		err = fmt.Errorf("replica: key already exists")
	}
	markLatch(l, err)
	return err
}

func (r *TCPReplica) Replace(ctx context.Context, wireKey string, flags uint32, value []byte, ttl int64, l *latch.Latch) error {
	resp, err := r.roundTrip(ctx, &wire.Request{Op: wire.OpReplace, Key: wireKey, Value: value, Flags: flags, TTL: ttl})
	if err == nil && resp.Status == wire.StatusNotStored {
		err = fmt.Errorf("replica: key does not exist")
	}
	markLatch(l, err)
	return err
}

func (r *TCPReplica) Append(ctx context.Context, wireKey string, value []byte, l *latch.Latch) error {
	_, err := r.roundTrip(ctx, &wire.Request{Op: wire.OpAppend, Key: wireKey, Value: value})
	markLatch(l, err)
	return err
}

func (r *TCPReplica) AppendOrAdd(ctx context.Context, wireKey string, flags uint32, value []byte, ttl int64, l *latch.Latch) error {
	_, err := r.roundTrip(ctx, &wire.Request{Op: wire.OpAppendOrAdd, Key: wireKey, Value: value, Flags: flags, TTL: ttl})
	markLatch(l, err)
	return err
}

func (r *TCPReplica) Delete(ctx context.Context, wireKey string, l *latch.Latch) error {
	_, err := r.roundTrip(ctx, &wire.Request{Op: wire.OpDelete, Key: wireKey})
	markLatch(l, err)
	return err
}

func (r *TCPReplica) Touch(ctx context.Context, wireKey string, ttl int64, l *latch.Latch) error {
	_, err := r.roundTrip(ctx, &wire.Request{Op: wire.OpTouch, Key: wireKey, TTL: ttl})
	markLatch(l, err)
	return err
}

func (r *TCPReplica) Incr(ctx context.Context, wireKey string, delta int64, initial int64, l *latch.Latch) (CounterResult, error) {
	resp, err := r.roundTrip(ctx, &wire.Request{Op: wire.OpIncr, Key: wireKey, Delta: delta, Default: initial})
	markLatch(l, err)
	if err != nil {
		return CounterResult{}, err
	}
	return CounterResult{Value: resp.Num}, nil
}

func (r *TCPReplica) Decr(ctx context.Context, wireKey string, delta int64, initial int64, l *latch.Latch) (CounterResult, error) {
	resp, err := r.roundTrip(ctx, &wire.Request{Op: wire.OpDecr, Key: wireKey, Delta: delta, Default: initial})
	markLatch(l, err)
	if err != nil {
		return CounterResult{}, err
	}
	return CounterResult{Value: resp.Num}, nil
}

func resultFromResponse(resp *wire.Response) (Result, error) {
	switch resp.Status {
	case wire.StatusOK, wire.StatusStored:
		return Result{Found: true, Flags: resp.Flags, Value: resp.Value}, nil
	case wire.StatusNotFound:
		return Result{Found: false}, nil
	case wire.StatusError:
		return Result{}, fmt.Errorf("replica: backend error: %s", resp.Err)
	default:
		return Result{Found: false}, nil
	}
}
