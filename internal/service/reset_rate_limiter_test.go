package service

import (
	"testing"
	"time"
)

func TestResetRateLimiter_AllowsUpToMax(t *testing.T) {
	l := NewResetRateLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow("u1@x.com") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("u1@x.com") {
		t.Fatalf("request above max should be blocked")
	}
}

func TestResetRateLimiter_KeysAreIndependent(t *testing.T) {
	l := NewResetRateLimiter(time.Minute, 1)

	if !l.Allow("a@x.com") {
		t.Fatalf("first key should be allowed")
	}
	if !l.Allow("b@x.com") {
		t.Fatalf("second key should be unaffected")
	}
	if l.Allow("a@x.com") {
		t.Fatalf("first key should now be blocked")
	}
}

func TestResetRateLimiter_WindowSlides(t *testing.T) {
	l := NewResetRateLimiter(10*time.Millisecond, 1)

	if !l.Allow("u1@x.com") {
		t.Fatalf("first request should be allowed")
	}
	if l.Allow("u1@x.com") {
		t.Fatalf("second request inside window should be blocked")
	}
	time.Sleep(20 * time.Millisecond)
	if !l.Allow("u1@x.com") {
		t.Fatalf("request after window should be allowed")
	}
}
