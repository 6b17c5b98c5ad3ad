package auth

import (
	"strings"
	"testing"
)

// Low-cost parameters keep the argon2 work factor reasonable under go test.
func testHasher() *Hasher {
	return NewHasher(Argon2Params{Time: 1, Memory: 8 * 1024, Parallelism: 1})
}

func TestHashIsSaltedButBothVerify(t *testing.T) {
	h := testHasher()
	first, err := h.Hash("Sup3rSecret!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	second, err := h.Hash("Sup3rSecret!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same plaintext must differ (random salt)")
	}
	if !h.Verify("Sup3rSecret!", first) || !h.Verify("Sup3rSecret!", second) {
		t.Fatal("both encodings must verify the original plaintext")
	}
}

func TestVerifyWrongPasswordReturnsFalse(t *testing.T) {
	h := testHasher()
	stored, err := h.Hash("Sup3rSecret!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h.Verify("wrongpassword", stored) {
		t.Fatal("wrong password must not verify")
	}
}

func TestVerifyMalformedHashReturnsFalse(t *testing.T) {
	h := testHasher()
	cases := []string{
		"",
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdA$ZGlnZXN0",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdA$ZGlnZXN0",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$ZGlnZXN0",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$",
	}
	for _, encoded := range cases {
		if h.Verify("Sup3rSecret!", encoded) {
			t.Errorf("malformed hash %q must not verify", encoded)
		}
	}
}

func TestVerifyTamperedDigestReturnsFalse(t *testing.T) {
	h := testHasher()
	stored, err := h.Hash("Sup3rSecret!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	// Flip a character inside the digest segment.
	i := strings.LastIndex(stored, "$") + 1
	tampered := stored[:i] + flip(stored[i:i+1]) + stored[i+1:]
	if h.Verify("Sup3rSecret!", tampered) {
		t.Fatal("tampered digest must not verify")
	}
}

func flip(s string) string {
	if s == "A" {
		return "B"
	}
	return "A"
}

func TestNeedsRehash(t *testing.T) {
	old := NewHasher(Argon2Params{Time: 1, Memory: 8 * 1024, Parallelism: 1})
	stored, err := old.Hash("Sup3rSecret!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if old.NeedsRehash(stored) {
		t.Fatal("hash produced with current params must not need a rehash")
	}

	stronger := NewHasher(Argon2Params{Time: 2, Memory: 8 * 1024, Parallelism: 1})
	if !stronger.NeedsRehash(stored) {
		t.Fatal("hash produced with weaker params must need a rehash")
	}
	// Hashes remain verifiable across a parameter change: the old params
	// travel with the hash.
	if !stronger.Verify("Sup3rSecret!", stored) {
		t.Fatal("old hash must still verify after parameter tuning")
	}

	if !old.NeedsRehash("garbage") {
		t.Fatal("unparsable hash must report needs-rehash")
	}
}

func TestHasherDefaults(t *testing.T) {
	h := NewHasher(Argon2Params{})
	if h.Params() != DefaultArgon2Params() {
		t.Fatalf("zero params should fall back to defaults, got %+v", h.Params())
	}
}
