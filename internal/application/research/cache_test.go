package research

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestCache_DoMemoizes(t *testing.T) {
	c := New(time.Minute)
	calls := 0
	fn := func() (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"a":1}`), nil
	}

	raw, hit, err := c.Do("dom:kw", fn)
	if err != nil || hit {
		t.Fatalf("first call: hit=%v err=%v", hit, err)
	}
	if string(raw) != `{"a":1}` {
		t.Errorf("raw = %s", raw)
	}

	_, hit, err = c.Do("dom:kw", fn)
	if err != nil || !hit {
		t.Fatalf("second call: hit=%v err=%v", hit, err)
	}
	if calls != 1 {
		t.Errorf("fn ran %d times, want 1", calls)
	}
}

func TestCache_ErrorsNotCached(t *testing.T) {
	c := New(time.Minute)
	boom := errors.New("provider down")
	calls := 0

	_, _, err := c.Do("k", func() (json.RawMessage, error) {
		calls++
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	_, hit, err := c.Do("k", func() (json.RawMessage, error) {
		calls++
		return json.RawMessage(`1`), nil
	})
	if err != nil || hit {
		t.Fatalf("retry after error: hit=%v err=%v", hit, err)
	}
	if calls != 2 {
		t.Errorf("fn ran %d times, want 2", calls)
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := New(time.Minute)
	c.Do("k", func() (json.RawMessage, error) { return json.RawMessage(`1`), nil })
	c.Invalidate("k")
	_, hit, _ := c.Do("k", func() (json.RawMessage, error) { return json.RawMessage(`2`), nil })
	if hit {
		t.Error("invalidated key should miss")
	}
}
