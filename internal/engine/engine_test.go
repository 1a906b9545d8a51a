package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("b"), PrefixEnd([]byte("a")))
	assert.Equal(t, []byte("b"), PrefixEnd([]byte("a\xff")))
	assert.Nil(t, PrefixEnd([]byte("\xff\xff")))
	assert.Nil(t, PrefixEnd(nil))
}

func TestSealOpen(t *testing.T) {
	now := time.Now()

	v, live := Open(Seal([]byte("payload"), 0, now), now.Add(24*time.Hour))
	assert.True(t, live)
	assert.Equal(t, []byte("payload"), v)

	sealed := Seal([]byte("payload"), time.Minute, now)
	_, live = Open(sealed, now.Add(30*time.Second))
	assert.True(t, live)
	_, live = Open(sealed, now.Add(time.Minute))
	assert.False(t, live)

	_, live = Open([]byte("short"), now)
	assert.False(t, live)
}

func TestJanitor(t *testing.T) {
	runs := make(chan struct{}, 10)
	j := StartJanitor(time.Millisecond, func() {
		select {
		case runs <- struct{}{}:
		default:
		}
	})

	select {
	case <-runs:
	case <-time.After(time.Second):
		t.Fatal("janitor never ran")
	}
	j.Stop()

	var nilJanitor *Janitor
	nilJanitor.Stop()
}
