package stmt

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/zhukovaskychina/rxmysql/internal/protocol"
)

// InfilePool is the bounded-elastic worker pool LOCAL INFILE file I/O
// is offloaded to (spec §5 "file-chunk producers ... suspend on file
// I/O, offloaded to a bounded-elastic worker pool"). Grounded on the
// teacher's server/protocol/message_bus.go AsyncMessageBus worker-pool
// shape, repurposed from dispatching inbound protocol events to
// running one blocking file-read job per call.
type InfilePool struct {
	sem chan struct{}
}

// NewInfilePool builds a pool admitting at most n concurrent file reads.
func NewInfilePool(n int) *InfilePool {
	if n <= 0 {
		n = 1
	}
	return &InfilePool{sem: make(chan struct{}, n)}
}

// Do runs fn with a pool slot held, blocking until one is free or ctx
// is cancelled.
func (p *InfilePool) Do(ctx context.Context, fn func() error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()
	return fn()
}

// handleLocalInfile answers a server LOCAL INFILE request (spec §4.6
// "LOCAL INFILE safety"): the requested path must resolve as a
// descendant of the configured root, else the driver sends a single
// zero-length chunk. Either way the server still replies with its own
// OK or ERR packet next, which the caller's result-chain loop picks up
// as the usual next message - this method fails only on a fatal
// transport-level write error, or with ctx's error when ctx ends while
// waiting for a worker-pool slot.
func (r *Runner) handleLocalInfile(ctx context.Context, req *protocol.LocalInfileRequest) error {
	root := ""
	bufLen := 1 << 16
	if r.Ctx != nil {
		root = r.Ctx.LocalInfileRoot
		if r.Ctx.LocalInfileBufLen > 0 {
			bufLen = r.Ctx.LocalInfileBufLen
		}
	}

	resolved, allowed := resolveUnderRoot(root, req.Filename)
	if !allowed {
		return r.writeEmptyInfileChunk()
	}

	return r.Infile.Do(ctx, func() error {
		f, openErr := os.Open(resolved)
		if openErr != nil {
			return r.writeEmptyInfileChunk()
		}
		defer f.Close()

		buf := make([]byte, bufLen)
		for {
			n, readErr := f.Read(buf)
			if n > 0 {
				if err := r.Transport.WritePayload((&protocol.LocalInfileChunk{Data: buf[:n]}).Encode()); err != nil {
					return err
				}
			}
			if readErr != nil {
				break
			}
		}
		return r.writeEmptyInfileChunk()
	})
}

func (r *Runner) writeEmptyInfileChunk() error {
	return r.Transport.WritePayload(protocol.EmptyLocalInfileChunk().Encode())
}

// resolveUnderRoot reports whether requested resolves to a path inside
// root; if root is empty, LOCAL INFILE is disabled entirely.
func resolveUnderRoot(root, requested string) (string, bool) {
	if root == "" {
		return "", false
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	candidate := requested
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(absRoot, candidate)
	}
	absCandidate, err := filepath.Abs(candidate)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absRoot, absCandidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return absCandidate, true
}
