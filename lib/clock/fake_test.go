// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAndSet(t *testing.T) {
	fake := Fake(epoch)
	if !fake.Now().Equal(epoch) {
		t.Fatalf("Now = %v, want %v", fake.Now(), epoch)
	}
	later := epoch.Add(time.Hour)
	fake.Set(later)
	if !fake.Now().Equal(later) {
		t.Fatalf("Now after Set = %v, want %v", fake.Now(), later)
	}
}

func TestFakeTickerFiresOnAdvance(t *testing.T) {
	fake := Fake(epoch)
	ticker := fake.NewTicker(10 * time.Second)
	defer ticker.Stop()

	fake.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("ticker fired before its interval")
	default:
	}

	fake.Advance(5 * time.Second)
	select {
	case tick := <-ticker.C:
		if !tick.Equal(epoch.Add(10 * time.Second)) {
			t.Errorf("tick = %v, want %v", tick, epoch.Add(10*time.Second))
		}
	default:
		t.Fatal("ticker did not fire at its interval")
	}
}

func TestFakeTickerDropsOverflow(t *testing.T) {
	fake := Fake(epoch)
	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	fake.Advance(5 * time.Second)
	<-ticker.C
	select {
	case <-ticker.C:
		t.Fatal("more than one tick buffered")
	default:
	}

	// The schedule moved past the advanced time, so the next tick is
	// one interval later, not five.
	fake.Advance(time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not resume after overflow")
	}
}

func TestFakeStoppedTickerIsSilent(t *testing.T) {
	fake := Fake(epoch)
	ticker := fake.NewTicker(time.Second)
	ticker.Stop()
	fake.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestWaitForTickers(t *testing.T) {
	fake := Fake(epoch)
	registered := make(chan *Ticker)
	go func() {
		registered <- fake.NewTicker(time.Second)
	}()
	fake.WaitForTickers(1)
	ticker := <-registered
	ticker.Stop()
}
