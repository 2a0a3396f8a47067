package crypto

import "testing"

func TestEncryptDecrypt(t *testing.T) {
	cipher := Cipher(GenerateKey())

	sealed, err := cipher.Encrypt("oauth-token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if sealed == "oauth-token" {
		t.Fatal("token stored in clear")
	}

	opened, err := cipher.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if opened != "oauth-token" {
		t.Errorf("Decrypt = %q, want %q", opened, "oauth-token")
	}
}

func TestDecryptWithOtherKeyFails(t *testing.T) {
	sealed, err := Cipher(GenerateKey()).Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := Cipher(GenerateKey()).Decrypt(sealed); err == nil {
		t.Error("expected error decrypting with a different key")
	}
}

func TestValidateRejectsShortKey(t *testing.T) {
	if err := Cipher("abcd").Validate(); err == nil {
		t.Error("expected error for short key")
	}
	if err := Cipher("zz").Validate(); err == nil {
		t.Error("expected error for non-hex key")
	}
}
