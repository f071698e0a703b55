package sceneasset

import (
	"io"
	"sync"
	"testing"
)

func TestBlobRegistryLifecycle(t *testing.T) {
	reg := NewBlobRegistry("")
	h := reg.Create([]byte("payload"), MIMEOctetStream)

	u := reg.URL(h)
	back, ok := reg.HandleFromURL(u)
	if !ok || back != h {
		t.Fatalf("HandleFromURL(%q): got %q %v", u, back, ok)
	}
	if _, ok := reg.HandleFromURL("https://example.com/x"); ok {
		t.Fatalf("foreign url should not map to a handle")
	}

	b, ok := reg.Open(h)
	if !ok {
		t.Fatalf("Open failed")
	}
	reg.Revoke(h)
	if reg.Live(h) {
		t.Fatalf("revoked handle reported live")
	}
	if _, ok := reg.Open(h); ok {
		t.Fatalf("revoked handle should not open")
	}
	data, err := io.ReadAll(b)
	if err != nil || string(data) != "payload" {
		t.Fatalf("reader opened before revoke should finish: %q %v", data, err)
	}
	if reg.Len() != 1 {
		t.Fatalf("bytes held while a reader is open: want=1 got=%d", reg.Len())
	}
	_ = b.Close()
	_ = b.Close()
	if reg.Len() != 0 {
		t.Fatalf("bytes should drop after last close: got=%d", reg.Len())
	}

	reg.Revoke(h)
	reg.Revoke("unknown")
}

func TestBlobRegistryConcurrentOpenRevoke(t *testing.T) {
	reg := NewBlobRegistry("blob:test/")
	handles := make([]Handle, 64)
	for i := range handles {
		handles[i] = reg.Create([]byte("x"), MIMEPNG)
	}
	var wg sync.WaitGroup
	for _, h := range handles {
		h := h
		wg.Add(2)
		go func() {
			defer wg.Done()
			if b, ok := reg.Open(h); ok {
				_, _ = io.ReadAll(b)
				_ = b.Close()
			}
		}()
		go func() {
			defer wg.Done()
			reg.Revoke(h)
		}()
	}
	wg.Wait()
	if n := reg.Len(); n != 0 {
		t.Fatalf("registry: want=0 got=%d", n)
	}
}
