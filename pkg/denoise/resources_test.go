package denoise

import "testing"

func TestMaxWorkers(t *testing.T) {
	saved := totalMemory
	defer func() { totalMemory = saved }()

	totalMemory = func() uint64 { return 0 }
	if got := MaxWorkers(8, 4096, 4096, 4, 8); got != 8 {
		t.Errorf("Unknown memory should not cap workers, got %d", got)
	}

	totalMemory = func() uint64 { return 1 << 40 }
	if got := MaxWorkers(8, 512, 512, 4, 8); got != 8 {
		t.Errorf("Plenty of memory should not cap workers, got %d", got)
	}

	// a 64 MiB machine cannot hold many 2048x2048 tiles at once
	totalMemory = func() uint64 { return 64 << 20 }
	if got := MaxWorkers(8, 4096, 4096, 4, 8); got != 1 {
		t.Errorf("Expected a single worker, got %d", got)
	}

	if got := MaxWorkers(0, 10, 10, 0, 3); got != 1 {
		t.Errorf("Expected at least one worker, got %d", got)
	}
}
