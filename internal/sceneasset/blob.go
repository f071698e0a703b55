package sceneasset

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const DefaultBlobURLPrefix = "blob:neurobridge/"

// Handle addresses one in-memory blob.
type Handle string

type blobEntry struct {
	data    []byte
	mime    string
	refs    int
	revoked bool
}

// BlobRegistry is the in-memory object-URL store. Create holds one
// reference until Revoke; Open adds one for the duration of a read. A
// revoked handle no longer opens, and its bytes are dropped once the last
// reader closes.
type BlobRegistry struct {
	mu     sync.Mutex
	prefix string
	blobs  map[Handle]*blobEntry
}

func NewBlobRegistry(urlPrefix string) *BlobRegistry {
	if strings.TrimSpace(urlPrefix) == "" {
		urlPrefix = DefaultBlobURLPrefix
	}
	return &BlobRegistry{prefix: urlPrefix, blobs: make(map[Handle]*blobEntry)}
}

func (r *BlobRegistry) Create(data []byte, mimeType string) Handle {
	h := Handle(uuid.NewString())
	r.mu.Lock()
	r.blobs[h] = &blobEntry{data: data, mime: mimeType, refs: 1}
	r.mu.Unlock()
	return h
}

// URL renders the handle as the address handed to renderers.
func (r *BlobRegistry) URL(h Handle) string {
	return r.prefix + string(h)
}

// HandleFromURL reverses URL. ok is false for foreign URLs.
func (r *BlobRegistry) HandleFromURL(u string) (Handle, bool) {
	if !strings.HasPrefix(u, r.prefix) {
		return "", false
	}
	id := strings.TrimPrefix(u, r.prefix)
	if id == "" {
		return "", false
	}
	return Handle(id), true
}

// Blob is a retained read view. Close releases the reference taken by Open.
type Blob struct {
	*bytes.Reader
	MIMEType string
	Size     int64

	once    sync.Once
	release func()
}

func (b *Blob) Close() error {
	b.once.Do(b.release)
	return nil
}

var _ io.ReadSeekCloser = (*Blob)(nil)

// Open retains the blob so a concurrent revoke cannot free it mid-read.
func (r *BlobRegistry) Open(h Handle) (*Blob, bool) {
	r.mu.Lock()
	e, ok := r.blobs[h]
	usable := ok && !e.revoked
	if usable {
		e.refs++
	}
	r.mu.Unlock()
	if !usable {
		return nil, false
	}
	return &Blob{
		Reader:   bytes.NewReader(e.data),
		MIMEType: e.mime,
		Size:     int64(len(e.data)),
		release:  func() { r.release(h) },
	}, true
}

// Revoke drops the creation reference. Revoking twice, or revoking an
// unknown handle, is a no-op.
func (r *BlobRegistry) Revoke(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.blobs[h]
	if !ok || e.revoked {
		return
	}
	e.revoked = true
	r.dropLocked(h, e)
}

func (r *BlobRegistry) release(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.blobs[h]; ok {
		r.dropLocked(h, e)
	}
}

func (r *BlobRegistry) dropLocked(h Handle, e *blobEntry) {
	e.refs--
	if e.refs <= 0 {
		delete(r.blobs, h)
	}
}

// Live reports whether h can still be opened.
func (r *BlobRegistry) Live(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.blobs[h]
	return ok && !e.revoked
}

// Len counts blobs whose bytes are still held, revoked or not.
func (r *BlobRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blobs)
}
