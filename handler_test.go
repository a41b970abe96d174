package l2cap

import (
	"testing"
)

func TestHandlerRunsInPostOrder(t *testing.T) {
	h := NewHandler("test")
	defer h.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		if !h.Post(func() { got = append(got, i) }) {
			t.Fatalf("post %d rejected", i)
		}
	}
	h.Sync()

	if len(got) != 100 {
		t.Fatalf("expected 100 tasks to run, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestHandlerPostFromTask(t *testing.T) {
	h := NewHandler("test")
	defer h.Close()

	var order []string
	h.Post(func() {
		order = append(order, "outer")
		h.Post(func() { order = append(order, "inner") })
	})
	h.Post(func() { order = append(order, "second") })
	h.Sync()
	h.Sync()

	want := []string{"outer", "second", "inner"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestHandlerCloseDrainsQueue(t *testing.T) {
	h := NewHandler("test")

	ran := 0
	for i := 0; i < 10; i++ {
		h.Post(func() { ran++ })
	}
	h.Close()

	if ran != 10 {
		t.Fatalf("expected queued tasks to run before close returned, ran %d", ran)
	}
	if h.Post(func() {}) {
		t.Fatal("post accepted after close")
	}
	if h.Call(func() {}) {
		t.Fatal("call succeeded after close")
	}

	// second close is a no-op
	h.Close()
}

func TestHandlerCloseWithRunsLast(t *testing.T) {
	h := NewHandler("test")

	var order []string
	h.Post(func() { order = append(order, "queued") })
	h.CloseWith(func() {
		if h.Post(func() { order = append(order, "late") }) {
			t.Error("post accepted from final task")
		}
		order = append(order, "final")
	})

	want := []string{"queued", "final"}
	if len(order) != len(want) || order[0] != want[0] || order[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, order)
	}

	ran := false
	h.CloseWith(func() { ran = true })
	if ran {
		t.Fatal("final task of a second close ran")
	}
}
