package datauri

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	uri := Encode("image/png", payload)

	if uri[:22] != "data:image/png;base64," {
		t.Fatalf("Unexpected prefix: %s", uri)
	}

	mediaType, data, err := Decode(uri)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if mediaType != "image/png" {
		t.Errorf("Expected image/png, got %s", mediaType)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Payload mismatch: %v", data)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		mediaType string
		data      string
		wantErr   bool
	}{
		{name: "percent encoded svg", input: "data:image/svg+xml,%3Csvg%2F%3E", mediaType: "image/svg+xml", data: "<svg/>"},
		{name: "default media type", input: "data:,hello", mediaType: "text/plain;charset=US-ASCII", data: "hello"},
		{name: "uppercase scheme", input: "DATA:text/plain;base64,aGk=", mediaType: "text/plain", data: "hi"},
		{name: "not a data uri", input: "https://example.com/a.png", wantErr: true},
		{name: "missing comma", input: "data:image/png;base64", wantErr: true},
		{name: "bad base64", input: "data:image/png;base64,!!!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mediaType, data, err := Decode(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("Expected ErrInvalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if mediaType != tt.mediaType {
				t.Errorf("Expected media type %q, got %q", tt.mediaType, mediaType)
			}
			if string(data) != tt.data {
				t.Errorf("Expected data %q, got %q", tt.data, data)
			}
		})
	}
}
