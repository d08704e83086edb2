package occupancy

import (
	"strings"
	"testing"
)

func TestNewStoreRequiresAddr(t *testing.T) {
	if _, err := NewStore(RedisConfig{}); err == nil {
		t.Errorf("Expected error for empty redis address")
	}
}

func TestNewStoreUnreachable(t *testing.T) {
	_, err := NewStore(RedisConfig{Addr: "127.0.0.1:1"})
	if err == nil {
		t.Fatalf("Expected connection error")
	}
	if !strings.Contains(err.Error(), "connecting to redis") {
		t.Errorf("Unexpected error: %v", err)
	}
}
