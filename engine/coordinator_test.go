package engine

import (
	"errors"
	"testing"

	"github.com/hupe1980/mvgo/changeset"
	"github.com/hupe1980/mvgo/core"
	"github.com/hupe1980/mvgo/store"
)

func TestAcquireHandleCachedPerGoroutine(t *testing.T) {
	c := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	defer c.Release()

	cfg := testConfig(t.Name())
	cfg.Cache = true

	h1, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	h2, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if h1 != h2 {
		t.Fatal("same goroutine with caching should reuse the handle")
	}

	// A different goroutine gets its own handle.
	type result struct {
		h   *Handle
		err error
	}
	ch := make(chan result, 1)
	go func() {
		h, err := c.AcquireHandle(cfg)
		ch <- result{h, err}
	}()
	r := <-ch
	if r.err != nil {
		t.Fatalf("acquire from goroutine: %v", r.err)
	}
	if r.h == h1 {
		t.Fatal("handle leaked across goroutines")
	}
	r.h.Close()

	// The cached handle stays open until every owner closed it.
	if err := h1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if h1.IsClosed() {
		t.Fatal("closed with an owner remaining")
	}
	if err := h2.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !h1.IsClosed() {
		t.Fatal("not closed after the last owner")
	}
}

func TestAcquireHandleNoCache(t *testing.T) {
	c := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	defer c.Release()

	cfg := testConfig(t.Name())
	h1, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h1.Close()
	h2, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h2.Close()
	if h1 == h2 {
		t.Fatal("caching disabled but handle was reused")
	}
}

func TestAcquireHandleMismatchedConfig(t *testing.T) {
	c := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	defer c.Release()

	cfg := testConfig(t.Name())
	cfg.EncryptionKey = []byte("key-a")
	h, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.Close()

	bad := cfg
	bad.EncryptionKey = []byte("key-b")
	_, err = c.AcquireHandle(bad)
	var mce *MismatchedConfigError
	if !errors.As(err, &mce) {
		t.Fatalf("error = %v, want *MismatchedConfigError", err)
	}
	if mce.Field != "encryption key" {
		t.Fatalf("field = %q, want %q", mce.Field, "encryption key")
	}

	// The mismatch must not disturb the stored configuration.
	h2, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("compatible acquire after mismatch: %v", err)
	}
	h2.Close()
}

func TestAcquireWithoutEstablishedConfig(t *testing.T) {
	c := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	defer c.Release()

	if _, err := c.Acquire(); !errors.Is(err, ErrNoConfig) {
		t.Fatalf("error = %v, want ErrNoConfig", err)
	}
}

func TestAcquireUsesEstablishedConfig(t *testing.T) {
	c := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	defer c.Release()

	cfg := testConfig(t.Name())
	cfg.Schema = core.Schema{{Name: "person"}}
	h1, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h1.Close()

	h2, err := c.Acquire()
	if err != nil {
		t.Fatalf("acquire existing: %v", err)
	}
	defer h2.Close()
	if len(h2.Config().Schema) != 1 || h2.Config().Schema[0].Name != "person" {
		t.Fatalf("config schema = %+v, want the established one", h2.Config().Schema)
	}
}

func TestSchemaLifecycle(t *testing.T) {
	c := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	defer c.Release()

	if _, ok := c.Schema(); ok {
		t.Fatal("schema reported with no handles open")
	}

	cfg := testConfig(t.Name())
	cfg.Schema = core.Schema{{Name: "person"}}
	h, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.Close()

	s, ok := c.Schema()
	if !ok || len(s) != 1 || s[0].Name != "person" {
		t.Fatalf("schema = %+v, %v", s, ok)
	}

	c.UpdateSchema(core.Schema{{Name: "person"}, {Name: "dog"}})
	s, ok = c.Schema()
	if !ok || len(s) != 2 {
		t.Fatalf("schema after update = %+v, %v", s, ok)
	}
}

func TestWriteNotifiesHandles(t *testing.T) {
	c := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	defer c.Release()

	cfg := testConfig(t.Name())
	h1, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h1.Close()
	h2, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h2.Close()

	v, err := h1.Write(func(tx *store.Tx) error {
		tx.Insert(0, 7)
		return nil
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	// With no signaler the commit hook runs inline, so the wakeup has
	// already been posted by the time Write returns.
	select {
	case <-h2.Notifications():
	default:
		t.Fatal("no notification posted to the other handle")
	}

	if err := h2.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if h2.Version() != v {
		t.Fatalf("version = %v, want %v", h2.Version(), v)
	}
}

func TestWriteChangeCallback(t *testing.T) {
	c := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	defer c.Release()

	cfg := testConfig(t.Name())
	h1, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h1.Close()
	h2, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h2.Close()

	var got []uint32
	h2.SetChangeCallback(func(info *changeset.Bucket) {
		if b := info.TableIfChanged(0); b != nil {
			got = b.Insertions()
		}
	})

	if _, err := h1.Write(func(tx *store.Tx) error {
		tx.Insert(0, 7)
		return nil
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := h2.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("callback insertions = %v, want [7]", got)
	}
}

func TestWriteReadOnlyHandle(t *testing.T) {
	st := store.NewMemStorage()
	c := GetCoordinator(t.Name(), WithStorage(st))
	defer c.Release()

	cfg := testConfig(t.Name())
	cfg.ReadOnly = true
	h, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.Close()

	_, err = h.Write(func(tx *store.Tx) error { return nil })
	if !errors.Is(err, store.ErrReadOnly) {
		t.Fatalf("error = %v, want store.ErrReadOnly", err)
	}
}

func TestClosedHandleOperations(t *testing.T) {
	c := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	defer c.Release()

	h, err := c.AcquireHandle(testConfig(t.Name()))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}

	if err := h.Refresh(); !errors.Is(err, ErrHandleClosed) {
		t.Fatalf("refresh error = %v, want ErrHandleClosed", err)
	}
	if _, err := h.Write(func(tx *store.Tx) error { return nil }); !errors.Is(err, ErrHandleClosed) {
		t.Fatalf("write error = %v, want ErrHandleClosed", err)
	}
}

func TestCoordinatorClearCache(t *testing.T) {
	c := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	defer c.Release()

	cfg := testConfig(t.Name())
	h1, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	h2, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	c.ClearCache()

	if !h1.IsClosed() || !h2.IsClosed() {
		t.Fatal("handles survived cache clear")
	}

	// The coordinator stays usable; the next acquisition re-establishes.
	h3, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire after clear: %v", err)
	}
	h3.Close()
}

func TestClearCacheResetsSignaler(t *testing.T) {
	var starts, stops int
	c := GetCoordinator(t.Name(),
		WithStorage(store.NewMemStorage()),
		WithSignaler(func(path string) CommitSignaler {
			return &countingSignaler{starts: &starts, stops: &stops}
		}),
	)
	defer c.Release()

	cfg := testConfig(t.Name())
	cfg.AutomaticChangeNotifications = true

	h, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if starts != 1 {
		t.Fatalf("starts = %d, want 1", starts)
	}
	_ = h

	c.ClearCache()
	if stops != 1 {
		t.Fatalf("stops after clear = %d, want 1", stops)
	}

	// The next acquisition re-establishes and starts a fresh listener.
	h2, err := c.AcquireHandle(cfg)
	if err != nil {
		t.Fatalf("acquire after clear: %v", err)
	}
	defer h2.Close()
	if starts != 2 {
		t.Fatalf("starts after re-acquire = %d, want 2", starts)
	}
}

type countingSignaler struct {
	starts *int
	stops  *int
}

func (s *countingSignaler) Start(func()) error { *s.starts++; return nil }
func (s *countingSignaler) Notify()            {}
func (s *countingSignaler) Stop()              { *s.stops++ }

func TestAcquireHandleSignalerStartFailure(t *testing.T) {
	c := GetCoordinator(t.Name(),
		WithStorage(store.NewMemStorage()),
		WithSignaler(func(path string) CommitSignaler {
			return &failingSignaler{}
		}),
	)
	defer c.Release()

	cfg := testConfig(t.Name())
	cfg.AutomaticChangeNotifications = true

	_, err := c.AcquireHandle(cfg)
	var ae *store.AccessError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want *store.AccessError", err)
	}
}

type failingSignaler struct{}

func (s *failingSignaler) Start(func()) error { return errors.New("signaler start failed") }
func (s *failingSignaler) Notify()            {}
func (s *failingSignaler) Stop()              {}
