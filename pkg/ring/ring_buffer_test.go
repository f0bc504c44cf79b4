package ring

import (
	"reflect"
	"testing"
)

func TestNew(t *testing.T) {
	size := 10
	rb := New[int](size)
	if rb == nil {
		t.Fatal("New returned nil")
	}
	if rb.Cap() != size {
		t.Errorf("expected cap %d, got %d", size, rb.Cap())
	}
	if rb.Len() != 0 {
		t.Errorf("expected len 0, got %d", rb.Len())
	}

	// Test with invalid size
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("New did not panic with non-positive size")
		}
	}()
	New[int](0)
}

func TestBuffer_Add(t *testing.T) {
	rb := New[string](3)

	if _, evicted := rb.Add("a"); evicted {
		t.Errorf("unexpected eviction on first add")
	}
	rb.Add("b")
	rb.Add("c")
	if rb.Len() != 3 {
		t.Errorf("expected len 3, got %d", rb.Len())
	}

	old, evicted := rb.Add("d") // Overwrites "a"
	if !evicted || old != "a" {
		t.Errorf("expected eviction of %q, got %q (evicted=%v)", "a", old, evicted)
	}
	if rb.Len() != 3 {
		t.Errorf("expected len to stay at 3, got %d", rb.Len())
	}

	expected := []string{"b", "c", "d"}
	if got := rb.Items(); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

func TestBuffer_ItemsNotFull(t *testing.T) {
	rb := New[int](5)
	rb.Add(1)
	rb.Add(2)

	expected := []int{1, 2}
	if got := rb.Items(); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
	if got := New[int](2).Items(); len(got) != 0 {
		t.Errorf("expected empty slice, got %v", got)
	}
}

func TestBuffer_WrapManyTimes(t *testing.T) {
	rb := New[int](1000)
	for i := 0; i < 1001; i++ {
		rb.Add(i)
	}
	items := rb.Items()
	if len(items) != 1000 {
		t.Fatalf("expected 1000 items, got %d", len(items))
	}
	if items[0] != 1 {
		t.Errorf("expected oldest item to be 1, got %d", items[0])
	}
	if items[999] != 1000 {
		t.Errorf("expected newest item to be 1000, got %d", items[999])
	}
}

func TestBuffer_Clear(t *testing.T) {
	rb := New[int](3)
	rb.Add(1)
	rb.Add(2)
	if n := rb.Clear(); n != 2 {
		t.Errorf("expected 2 cleared, got %d", n)
	}
	if rb.Len() != 0 {
		t.Errorf("expected empty buffer after clear")
	}
	rb.Add(7)
	if got := rb.Items(); !reflect.DeepEqual(got, []int{7}) {
		t.Errorf("expected [7], got %v", got)
	}
}
