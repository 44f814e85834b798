package protocol

import "testing"

func TestInstanceIDsWrap(t *testing.T) {
	ids := NewInstanceIDs(30)

	prev := ids.Next()
	if prev != 30 {
		t.Fatalf("first Next() = %d, want 30", prev)
	}
	for i := 0; i < 2*InstanceIDCount; i++ {
		id := ids.Next()
		if id >= InstanceIDCount {
			t.Fatalf("Next() = %d, out of 5-bit range", id)
		}
		if id != (prev+1)%InstanceIDCount {
			t.Fatalf("Next() = %d after %d", id, prev)
		}
		prev = id
	}
}

func TestInstanceIDsPeek(t *testing.T) {
	ids := NewInstanceIDs(40)
	if ids.Peek() != 8 {
		t.Errorf("Peek() = %d, want 8", ids.Peek())
	}
	if ids.Next() != 8 || ids.Peek() != 9 {
		t.Error("Peek() did not track Next()")
	}
}
