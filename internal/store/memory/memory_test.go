package memory_test

import (
	"testing"

	"github.com/MrWong99/jarvis/internal/store/memory"
	"github.com/MrWong99/jarvis/internal/store/storetest"
)

func TestStore(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(*testing.T) storetest.Store { return memory.New() })
}
