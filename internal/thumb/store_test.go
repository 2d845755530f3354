package thumb

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"wet-go/internal/attach"
	"wet-go/internal/limit"
	"wet-go/internal/wet"
)

// countingRenderer counts Render invocations and returns fixed bytes.
type countingRenderer struct {
	calls int32
	data  []byte
	err   error
	block chan struct{} // when non-nil, Render waits on it
}

func (r *countingRenderer) Render(ctx context.Context, path string, maxDim int) ([]byte, error) {
	atomic.AddInt32(&r.calls, 1)
	if r.block != nil {
		<-r.block
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.data, nil
}

var testParams = Params{CodecVersion: "v1", MaxDim: 480, Quality: 80}

func testEntry(name string) attach.CanonicalEntry {
	return attach.CanonicalEntry{
		FileName:         name,
		SourcePath:       "/src/" + name,
		Bucket:           attach.BucketImages,
		CanonicalRelPath: "images/2019 04 13 18 59 06 " + name,
	}
}

func newTestStore(t *testing.T, r wet.ThumbnailRenderer) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), r, PolicyFromExtensions(DefaultEligible), testParams, limit.New(4), wet.NewNopLogger())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func TestEnsureCachesAndReuses(t *testing.T) {
	r := &countingRenderer{data: []byte("thumb-bytes")}
	s := newTestStore(t, r)
	e := testEntry("photo.jpg")

	p1, ok, err := s.Ensure(context.Background(), e)
	if err != nil || !ok {
		t.Fatalf("Ensure() = %v, %v", ok, err)
	}
	p2, ok, err := s.Ensure(context.Background(), e)
	if err != nil || !ok {
		t.Fatalf("Ensure() = %v, %v", ok, err)
	}
	if p1 != p2 {
		t.Errorf("cache paths differ: %q vs %q", p1, p2)
	}
	if n := atomic.LoadInt32(&r.calls); n != 1 {
		t.Errorf("renderer invoked %d times, want 1", n)
	}

	data, ok := s.View().Data(e)
	if !ok || !bytes.Equal(data, []byte("thumb-bytes")) {
		t.Errorf("View().Data() = %q, %v", data, ok)
	}
}

func TestEnsureNoDuplicateGenerationUnderConcurrency(t *testing.T) {
	r := &countingRenderer{data: []byte("x"), block: make(chan struct{})}
	s := newTestStore(t, r)
	e := testEntry("photo.jpg")

	const callers = 12
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := s.Ensure(context.Background(), e); err != nil || !ok {
				t.Errorf("Ensure() = %v, %v", ok, err)
			}
		}()
	}
	// Let callers pile up on the in-flight call, then release the render.
	close(r.block)
	wg.Wait()

	if n := atomic.LoadInt32(&r.calls); n != 1 {
		t.Errorf("renderer invoked %d times under %d concurrent callers, want 1", n, callers)
	}
}

func TestParamsChangeChangesKey(t *testing.T) {
	e := testEntry("photo.jpg")
	k1 := KeyFor(testParams, e.CanonicalRelPath)

	p2 := testParams
	p2.MaxDim = 960
	k2 := KeyFor(p2, e.CanonicalRelPath)
	if k1 == k2 {
		t.Error("changing MaxDim did not change the cache key")
	}

	p3 := testParams
	p3.CodecVersion = "v2"
	if KeyFor(p3, e.CanonicalRelPath) == k1 {
		t.Error("changing CodecVersion did not change the cache key")
	}
}

func TestZeroByteFileIsCacheMiss(t *testing.T) {
	r := &countingRenderer{data: []byte("fresh")}
	s := newTestStore(t, r)
	e := testEntry("photo.jpg")

	// Simulate a partially-written file from a crashed run.
	key := KeyFor(testParams, e.CanonicalRelPath)
	stale := filepath.Join(s.Dir(), key+Ext)
	if err := os.WriteFile(stale, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.View().Data(e); ok {
		t.Error("zero-byte file served as a cache hit")
	}

	if _, ok, err := s.Ensure(context.Background(), e); err != nil || !ok {
		t.Fatalf("Ensure() = %v, %v", ok, err)
	}
	if n := atomic.LoadInt32(&r.calls); n != 1 {
		t.Errorf("renderer invoked %d times, want 1 (zero-byte file must be regenerated)", n)
	}
	data, ok := s.View().Data(e)
	if !ok || !bytes.Equal(data, []byte("fresh")) {
		t.Errorf("Data() after regeneration = %q, %v", data, ok)
	}
}

func TestPolicyExcludesDocuments(t *testing.T) {
	r := &countingRenderer{data: []byte("x")}
	s := newTestStore(t, r)
	e := testEntry("contract.docx")
	e.Bucket = attach.BucketDocuments
	e.CanonicalRelPath = "documents/2019 04 13 18 59 06 contract.docx"

	p, ok, err := s.Ensure(context.Background(), e)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if ok || p != "" {
		t.Errorf("Ensure() = %q, %v; want no-policy miss", p, ok)
	}
	if n := atomic.LoadInt32(&r.calls); n != 0 {
		t.Errorf("renderer invoked %d times for excluded type", n)
	}
}

func TestGenerationFailureIsNonFatal(t *testing.T) {
	r := &countingRenderer{err: errors.New("codec exploded")}
	s := newTestStore(t, r)

	_, ok, err := s.Ensure(context.Background(), testEntry("photo.jpg"))
	if err != nil {
		t.Fatalf("Ensure() error = %v, want absorbed failure", err)
	}
	if ok {
		t.Error("Ensure() reported success despite render failure")
	}
}

func TestViewNeverGenerates(t *testing.T) {
	r := &countingRenderer{data: []byte("x")}
	s := newTestStore(t, r)
	v := s.View()
	e := testEntry("photo.jpg")

	if _, ok := v.Data(e); ok {
		t.Error("View().Data() hit without prior generation")
	}
	if _, ok := v.Href(e, DirName); ok {
		t.Error("View().Href() hit without prior generation")
	}
	if n := atomic.LoadInt32(&r.calls); n != 0 {
		t.Errorf("read-only view invoked the renderer %d times", n)
	}
}

func TestPrecomputeAll(t *testing.T) {
	r := &countingRenderer{data: []byte("t")}
	s := newTestStore(t, r)

	entries := []attach.CanonicalEntry{
		testEntry("a.jpg"),
		testEntry("b.png"),
		testEntry("c.docx"), // excluded by policy
	}
	if err := s.PrecomputeAll(context.Background(), entries); err != nil {
		t.Fatalf("PrecomputeAll() error = %v", err)
	}
	if n := atomic.LoadInt32(&r.calls); n != 2 {
		t.Errorf("renderer invoked %d times, want 2", n)
	}

	v := s.View()
	for _, e := range entries[:2] {
		if _, ok := v.Data(e); !ok {
			t.Errorf("no cached thumbnail for %s after PrecomputeAll", e.FileName)
		}
	}
}

func TestPrecomputeAllCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &countingRenderer{data: []byte("t")}
	s := newTestStore(t, r)
	err := s.PrecomputeAll(ctx, []attach.CanonicalEntry{testEntry("a.jpg")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("PrecomputeAll() error = %v, want context.Canceled", err)
	}
}

func TestFirstWriterWins(t *testing.T) {
	r := &countingRenderer{data: []byte("second")}
	s := newTestStore(t, r)
	e := testEntry("photo.jpg")

	// A previous run already installed a valid file for this key.
	key := KeyFor(testParams, e.CanonicalRelPath)
	existing := filepath.Join(s.Dir(), key+Ext)
	if err := os.WriteFile(existing, []byte("first"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := s.Ensure(context.Background(), e); err != nil || !ok {
		t.Fatalf("Ensure() = %v, %v", ok, err)
	}
	data, ok := s.View().Data(e)
	if !ok || !bytes.Equal(data, []byte("first")) {
		t.Errorf("existing file was overwritten: got %q", data)
	}
	if n := atomic.LoadInt32(&r.calls); n != 0 {
		t.Errorf("renderer invoked %d times despite valid existing file", n)
	}
}
