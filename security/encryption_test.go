package security

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewEncryptor(t *testing.T) {
	tests := []struct {
		name        string
		key         []byte
		wantEnabled bool
		wantErr     bool
	}{
		{name: "nil key disables", key: nil, wantEnabled: false},
		{name: "empty key disables", key: []byte{}, wantEnabled: false},
		{name: "32 byte key", key: make([]byte, 32), wantEnabled: true},
		{name: "short key", key: make([]byte, 16), wantErr: true},
		{name: "long key", key: make([]byte, 64), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncryptor(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEncryptor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if enc.IsEnabled() != tt.wantEnabled {
				t.Errorf("IsEnabled() = %v, want %v", enc.IsEnabled(), tt.wantEnabled)
			}
		})
	}
}

func TestEncryptor_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	plaintext := []byte(`{"client_id":"c1","user_id":"authenticated_user"}`)
	sealed, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Contains(sealed, []byte("client_id")) {
		t.Error("sealed record still contains plaintext")
	}

	again, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Equal(sealed, again) {
		t.Error("two encryptions produced identical output; nonce is not random")
	}

	opened, err := enc.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("Decrypt() = %s, want %s", opened, plaintext)
	}
}

func TestEncryptor_Disabled(t *testing.T) {
	var nilEnc *Encryptor
	in := []byte("plain")

	for name, enc := range map[string]*Encryptor{"nil": nilEnc, "zero key": {}} {
		t.Run(name, func(t *testing.T) {
			out, err := enc.Encrypt(in)
			if err != nil || !bytes.Equal(out, in) {
				t.Errorf("Encrypt() = %q, %v; want passthrough", out, err)
			}
			out, err = enc.Decrypt(in)
			if err != nil || !bytes.Equal(out, in) {
				t.Errorf("Decrypt() = %q, %v; want passthrough", out, err)
			}
		})
	}
}

func TestEncryptor_DecryptErrors(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	otherKey, _ := GenerateKey()
	other, _ := NewEncryptor(otherKey)
	foreign, _ := other.Encrypt([]byte("payload"))

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "not base64", input: []byte("%%%")},
		{name: "too short", input: []byte("AAAA")},
		{name: "wrong key", input: foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := enc.Decrypt(tt.input); err == nil {
				t.Error("Decrypt() should fail")
			}
		})
	}
}

func TestKeyBase64(t *testing.T) {
	key, _ := GenerateKey()
	encoded := KeyToBase64(key)

	decoded, err := KeyFromBase64(encoded)
	if err != nil {
		t.Fatalf("KeyFromBase64() error = %v", err)
	}
	if !bytes.Equal(decoded, key) {
		t.Error("key did not survive base64 round trip")
	}

	if _, err := KeyFromBase64("not base64!"); err == nil {
		t.Error("KeyFromBase64() should reject invalid base64")
	}
	_, err = KeyFromBase64(KeyToBase64([]byte("short")))
	if err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Errorf("KeyFromBase64() error = %v, want length error", err)
	}
}
