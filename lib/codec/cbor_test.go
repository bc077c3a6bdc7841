// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"
)

type sampleEntry struct {
	UploadID  string         `json:"upload_id"`
	Size      int64          `json:"size"`
	Timestamp time.Time      `json:"timestamp"`
	Topics    map[string]int `json:"topics,omitempty"`
}

func TestMarshalDeterministic(t *testing.T) {
	entry := sampleEntry{
		UploadID: "u-1",
		Size:     4096,
		Topics:   map[string]int{"/imu": 10, "/camera": 3, "/lidar": 7},
	}

	first, err := Marshal(entry)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(entry)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding changed between calls: %x != %x", first, again)
		}
	}
}

func TestTimestampKeepsNanoseconds(t *testing.T) {
	stamp := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)
	data, err := Marshal(sampleEntry{UploadID: "u-2", Timestamp: stamp})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleEntry
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Timestamp.Equal(stamp) {
		t.Errorf("timestamp = %v, want %v", decoded.Timestamp, stamp)
	}
}

func TestStreamOfItems(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, id := range []string{"a", "b", "c"} {
		if err := encoder.Encode(sampleEntry{UploadID: id}); err != nil {
			t.Fatalf("Encode(%s): %v", id, err)
		}
	}

	decoder := NewDecoder(&buffer)
	var got []string
	for {
		var entry sampleEntry
		err := decoder.Decode(&entry)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got = append(got, entry.UploadID)
	}
	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("decoded ids = %v, want [a b c]", got)
	}
}

func TestAnyTargetUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"kind": "presence_update"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded.(map[string]any); !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]int{"total": 2})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if notation != `{"total": 2}` {
		t.Errorf("Diagnose = %q", notation)
	}
}
