package status

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"thumbnailer/internal/models"
)

func TestGetUnknown(t *testing.T) {
	tr := New()
	if s, ok := tr.Get("missing"); ok {
		t.Fatalf("Get(missing) = %q, true", s)
	}
}

func TestSetGetKeepsKeysApart(t *testing.T) {
	tr := New()
	tr.Set("a", models.StatusQueued)
	tr.Set("b", models.StatusQueued)
	tr.Set("a", models.StatusProcessing)
	tr.Set("a", models.StatusCompleted)

	if s, ok := tr.Get("a"); !ok || s != models.StatusCompleted {
		t.Errorf("Get(a) = %q, %v", s, ok)
	}
	if s, ok := tr.Get("b"); !ok || s != models.StatusQueued {
		t.Errorf("Get(b) = %q, %v", s, ok)
	}
	if tr.Len() != 2 {
		t.Errorf("Len = %d, want 2", tr.Len())
	}
}

func TestFailKeepsReason(t *testing.T) {
	tr := New()
	tr.Set("a", models.StatusProcessing)
	tr.Fail("a", errors.New("decode image: bad header"))

	st, ok := tr.Lookup("a")
	if !ok || st.Status != models.StatusFailed || st.Error != "decode image: bad header" {
		t.Fatalf("Lookup(a) = %+v, %v", st, ok)
	}
	if st.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestConcurrentWritersAndReaders(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("%d-%d", w, i)
				tr.Set(id, models.StatusQueued)
				tr.Set(id, models.StatusProcessing)
				tr.Set(id, models.StatusCompleted)
				if s, ok := tr.Get(id); !ok || s != models.StatusCompleted {
					t.Errorf("Get(%s) = %q, %v", id, s, ok)
					return
				}
			}
		}(w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				tr.Counts()
			}
		}()
	}
	wg.Wait()

	counts := tr.Counts()
	if counts[models.StatusCompleted] != 1600 || tr.Len() != 1600 {
		t.Fatalf("counts = %v, len = %d", counts, tr.Len())
	}
}
