package engine

import (
	"testing"

	"github.com/hupe1980/mvgo/store"
)

func TestGetCoordinatorSharedPerPath(t *testing.T) {
	c1 := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	c2 := GetCoordinator(t.Name())
	if c1 != c2 {
		t.Fatal("two live coordinators for one path")
	}

	other := GetCoordinator(t.Name() + "/other")
	if other == c1 {
		t.Fatal("coordinator shared across paths")
	}
	other.Release()

	c2.Release()
	c1.Release()
}

func TestGetCoordinatorRecreatedAfterLastRelease(t *testing.T) {
	c1 := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	c1.Release()

	if _, ok := ExistingCoordinator(t.Name()); ok {
		t.Fatal("released coordinator still discoverable")
	}

	c2 := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	defer c2.Release()
	if c2 == c1 {
		t.Fatal("released coordinator was revived instead of recreated")
	}
}

func TestExistingCoordinator(t *testing.T) {
	if _, ok := ExistingCoordinator(t.Name()); ok {
		t.Fatal("coordinator found before creation")
	}

	c := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	defer c.Release()

	e, ok := ExistingCoordinator(t.Name())
	if !ok || e != c {
		t.Fatalf("existing = %v, %v", e, ok)
	}
	e.Release()
}

func TestCoordinatorOutlivesReleaseWhileHandlesOpen(t *testing.T) {
	c := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))

	h, err := c.AcquireHandle(testConfig(t.Name()))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	// The open handle keeps the coordinator alive and discoverable.
	e, ok := ExistingCoordinator(t.Name())
	if !ok {
		t.Fatal("coordinator gone while a handle is open")
	}
	e.Release()

	h.Close()
	if _, ok := ExistingCoordinator(t.Name()); ok {
		t.Fatal("coordinator survived its last handle")
	}
}

func TestRegistryClearCache(t *testing.T) {
	c := GetCoordinator(t.Name(), WithStorage(store.NewMemStorage()))
	defer c.Release()

	h, err := c.AcquireHandle(testConfig(t.Name()))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ClearCache()

	if !h.IsClosed() {
		t.Fatal("handle survived registry cache clear")
	}
	if _, ok := ExistingCoordinator(t.Name()); ok {
		t.Fatal("registry entry survived cache clear")
	}
}

func TestRegistryClearAllCaches(t *testing.T) {
	c1 := GetCoordinator(t.Name()+"/a", WithStorage(store.NewMemStorage()))
	defer c1.Release()
	c2 := GetCoordinator(t.Name()+"/b", WithStorage(store.NewMemStorage()))
	defer c2.Release()

	h1, err := c1.AcquireHandle(testConfig(t.Name() + "/a"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	h2, err := c2.AcquireHandle(testConfig(t.Name() + "/b"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ClearAllCaches()

	if !h1.IsClosed() || !h2.IsClosed() {
		t.Fatal("handles survived ClearAllCaches")
	}

	// Unlike the registry-wide clear, the coordinators stay registered.
	e, ok := ExistingCoordinator(t.Name() + "/a")
	if !ok {
		t.Fatal("coordinator dropped by ClearAllCaches")
	}
	e.Release()
}
