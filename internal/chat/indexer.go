package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/faithh/faithh/internal/knowledge"
)

// indexWriteTimeout bounds one embed-and-upsert cycle.
const indexWriteTimeout = 30 * time.Second

// DocumentAdder is the write surface of the vector index, satisfied by
// knowledge.Store.
type DocumentAdder interface {
	Add(ctx context.Context, doc knowledge.Document) error
}

// Indexer writes conversation documents to the vector index off the
// request path. A single worker drains a bounded queue; when the queue
// is full the newest document is dropped rather than blocking the
// caller. Losing an archive write is acceptable, stalling a chat
// response is not.
type Indexer struct {
	index  DocumentAdder
	logger *slog.Logger

	mu     sync.Mutex
	queue  chan knowledge.Document
	closed bool

	drained chan struct{}
}

// NewIndexer starts the worker. queueSize <= 0 defaults to 64.
func NewIndexer(index DocumentAdder, queueSize int, logger *slog.Logger) *Indexer {
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	ix := &Indexer{
		index:   index,
		logger:  logger,
		queue:   make(chan knowledge.Document, queueSize),
		drained: make(chan struct{}),
	}
	go ix.run()
	return ix
}

// Enqueue submits a document for background indexing. Returns false
// when the document was dropped because the queue is full or the
// indexer is closed.
func (ix *Indexer) Enqueue(doc knowledge.Document) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return false
	}

	select {
	case ix.queue <- doc:
		return true
	default:
		ix.logger.Warn("index queue full, dropping document", "id", doc.ID)
		return false
	}
}

// Close stops accepting documents, drains what was already queued, and
// waits for the worker to exit. Safe to call more than once.
func (ix *Indexer) Close() {
	ix.mu.Lock()
	if !ix.closed {
		ix.closed = true
		close(ix.queue)
	}
	ix.mu.Unlock()
	<-ix.drained
}

func (ix *Indexer) run() {
	defer close(ix.drained)
	for doc := range ix.queue {
		ctx, cancel := context.WithTimeout(context.Background(), indexWriteTimeout)
		if err := ix.index.Add(ctx, doc); err != nil {
			ix.logger.Warn("background index write failed", "id", doc.ID, "error", err)
		}
		cancel()
	}
}
