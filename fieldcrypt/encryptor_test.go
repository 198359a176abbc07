package fieldcrypt

import (
	"encoding/base64"
	"errors"
	"testing"
)

func newTestEncryptor(t *testing.T) *Encryptor {
	t.Helper()
	e, err := New("process-secret", nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return e
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	e := newTestEncryptor(t)

	for _, pt := range []string{"a", "13800138000", "身份证 110101199003078888", "emoji 🔐 text"} {
		blob, err := e.Encrypt(pt)
		if err != nil {
			t.Fatalf("Encrypt error: %v", err)
		}
		if blob == pt {
			t.Fatal("expected ciphertext to differ from plaintext")
		}
		if !IsEncrypted(blob) {
			t.Fatalf("expected blob to be recognized as encrypted: %s", blob)
		}
		got, err := e.Decrypt(blob)
		if err != nil {
			t.Fatalf("Decrypt error: %v", err)
		}
		if got != pt {
			t.Fatalf("round trip mismatch: got %q want %q", got, pt)
		}
	}
}

func TestEncryptEmptyPassesThrough(t *testing.T) {
	e := newTestEncryptor(t)
	blob, err := e.Encrypt("")
	if err != nil || blob != "" {
		t.Fatalf("expected empty passthrough, got %q, %v", blob, err)
	}
}

func TestBlobLayout(t *testing.T) {
	e := newTestEncryptor(t)
	blob, err := e.Encrypt("hello")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != nonceSize+tagSize+len("hello") {
		t.Fatalf("unexpected blob length %d", len(raw))
	}
}

func TestDecryptTamperedBlobFails(t *testing.T) {
	e := newTestEncryptor(t)
	blob, _ := e.Encrypt("sensitive")
	raw, _ := base64.StdEncoding.DecodeString(blob)

	for _, idx := range []int{0, nonceSize, len(raw) - 1} {
		tampered := append([]byte(nil), raw...)
		tampered[idx] ^= 0x01
		_, err := e.Decrypt(base64.StdEncoding.EncodeToString(tampered))
		if !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("expected integrity failure when flipping byte %d, got %v", idx, err)
		}
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	e := newTestEncryptor(t)
	other, _ := New("another-secret", nil)
	blob, _ := e.Encrypt("sensitive")
	if _, err := other.Decrypt(blob); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestDecryptMalformed(t *testing.T) {
	e := newTestEncryptor(t)
	if _, err := e.Decrypt("%%%not-base64"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("expected ErrInvalidCiphertext, got %v", err)
	}
	if _, err := e.Decrypt(base64.StdEncoding.EncodeToString([]byte("short"))); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("expected ErrInvalidCiphertext for short blob, got %v", err)
	}
}

func TestIfNeededHelpersAreIdempotent(t *testing.T) {
	e := newTestEncryptor(t)
	once, err := e.EncryptIfNeeded("13800138000")
	if err != nil {
		t.Fatalf("EncryptIfNeeded error: %v", err)
	}
	twice, err := e.EncryptIfNeeded(once)
	if err != nil || twice != once {
		t.Fatalf("expected second encryption to be a no-op, got %q, %v", twice, err)
	}
	plain, err := e.DecryptIfNeeded(twice)
	if err != nil || plain != "13800138000" {
		t.Fatalf("unexpected DecryptIfNeeded result %q, %v", plain, err)
	}
	if v, _ := e.DecryptIfNeeded("plain"); v != "plain" {
		t.Fatalf("expected plain value passthrough, got %q", v)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New("", nil); !errors.Is(err, ErrSecretMissing) {
		t.Fatalf("expected ErrSecretMissing, got %v", err)
	}
}

func TestMasking(t *testing.T) {
	cases := []struct{ got, want string }{
		{MaskEmail("alice@example.com"), "al***@example.com"},
		{MaskEmail("a@example.com"), "a***@example.com"},
		{MaskEmail("no-at-sign"), "no-at-sign"},
		{MaskAddress("alice@example.com"), "ali***example.com"},
		{MaskPhone("13812345678"), "138****5678"},
		{MaskPhone("12345"), "12345"},
		{MaskIDCard("110101199003078888"), "1101**********8888"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Fatalf("got %q want %q", c.got, c.want)
		}
	}
}
