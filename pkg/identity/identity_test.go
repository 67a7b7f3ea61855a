package identity_test

import (
	"sync"
	"testing"

	"github.com/aretw0/regions/pkg/identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDGenerator_TimeOrderedAndUnique(t *testing.T) {
	gen := identity.NewGenerator()
	seen := make(map[string]struct{})

	prev := ""
	for i := 0; i < 500; i++ {
		uid := gen.Generate()
		parsed, err := uuid.Parse(uid)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), parsed.Version())

		_, dup := seen[uid]
		require.False(t, dup, "uid generated twice: %s", uid)
		seen[uid] = struct{}{}

		assert.GreaterOrEqual(t, uid[:13], prev[:min(len(prev), 13)], "timestamp prefix must not go backwards")
		prev = uid
	}
}

func TestFresh_SkipsTaken(t *testing.T) {
	seq := []string{"a", "", "b", "c"}
	i := 0
	gen := identity.GeneratorFunc(func() string {
		v := seq[i]
		i++
		return v
	})

	taken := map[string]bool{"a": true, "b": true}
	uid := identity.Fresh(gen, func(s string) bool { return taken[s] })
	assert.Equal(t, "c", uid)
}

func TestGuard(t *testing.T) {
	g := identity.NewGuard()

	assert.True(t, g.Admit("u1"))
	assert.False(t, g.Admit("u1"), "second admit of the same uid must be rejected")
	assert.True(t, g.Contains("u1"))

	g.Forget("u1")
	assert.False(t, g.Contains("u1"))
	assert.True(t, g.Admit("u1"))

	g.Reset("x", "y")
	assert.Equal(t, 2, g.Len())
	assert.False(t, g.Contains("u1"))
	assert.False(t, g.Admit("x"))
}

func TestGuard_ConcurrentAdmitOnce(t *testing.T) {
	g := identity.NewGuard()
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Admit("same") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
}
