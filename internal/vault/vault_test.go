package vault

import (
	"encoding/base32"
	"errors"
	"testing"
	"time"

	"github.com/agentgateway/gateway/internal/policy"
)

func TestSetGetRoundTrip(t *testing.T) {
	v, err := Open(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	meta := Entry{Label: "prod key", Kind: KindAPIKey, Policy: policy.AlwaysPolicy()}
	val := Value{Single: "sk-abc123"}
	if err := v.SetEntry("prod", meta, val); err != nil {
		t.Fatal(err)
	}
	got, gotVal, err := v.GetEntry("prod", policy.AccessContext{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.Label != "prod key" || gotVal.Single != "sk-abc123" {
		t.Fatalf("round trip mismatch: %+v %+v", got, gotVal)
	}
}

func TestSetPolicyReflectsInPeek(t *testing.T) {
	v, _ := Open(t.TempDir(), "")
	v.SetEntry("n", Entry{Kind: KindOther, Policy: policy.AlwaysPolicy()}, Value{Single: "x"})
	if err := v.SetPolicy("n", policy.AuthPolicy()); err != nil {
		t.Fatal(err)
	}
	e, err := v.PeekMetadata("n")
	if err != nil {
		t.Fatal(err)
	}
	if e.Policy.Kind != policy.WithAuth {
		t.Fatalf("policy not reflected: %+v", e.Policy)
	}
}

func TestDeleteThenListAbsent(t *testing.T) {
	v, _ := Open(t.TempDir(), "")
	v.SetEntry("n", Entry{Kind: KindOther, Policy: policy.AlwaysPolicy()}, Value{Single: "x"})
	if err := v.Delete("n"); err != nil {
		t.Fatal(err)
	}
	for _, e := range v.List() {
		if e.Name == "n" {
			t.Fatalf("entry still listed after delete")
		}
	}
	if _, _, err := v.GetEntry("n", policy.AccessContext{}, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetEntryDeniedNeverRevealsValue(t *testing.T) {
	v, _ := Open(t.TempDir(), "")
	v.SetEntry("secret", Entry{Kind: KindOther, Policy: policy.AuthPolicy()}, Value{Single: "topsecret"})
	_, _, err := v.GetEntry("secret", policy.AccessContext{}, false)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestWrongPasswordFailsCleanly(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(dir, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if err := v.SetEntry("n", Entry{Kind: KindOther, Policy: policy.AlwaysPolicy()}, Value{Single: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(dir, "wrong password"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	// Reopening with the correct password must still work - a failed open
	// must not have modified the vault file.
	v2, err := Open(dir, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := v2.GetEntry("n", policy.AccessContext{}, false); err != nil {
		t.Fatal(err)
	}
}

func TestTOTPSetupAndVerify(t *testing.T) {
	v, _ := Open(t.TempDir(), "")
	uri, err := v.SetupTOTP("agent-gateway", "local")
	if err != nil {
		t.Fatal(err)
	}
	if uri == "" {
		t.Fatal("expected non-empty otpauth URI")
	}
	if !v.HasTOTP() {
		t.Fatal("expected HasTOTP true after setup")
	}

	rec := v.data.Records[TOTPSecretKey]
	plaintext, err := decrypt(v.key, rec.Nonce, rec.Ciphertext)
	if err != nil {
		t.Fatal(err)
	}
	val, err := valueFromJSON(plaintext)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	code := currentCode(t, val.Single, now)
	ok, err := v.VerifyTOTP(code)
	if err != nil || !ok {
		t.Fatalf("expected verify ok, got ok=%v err=%v", ok, err)
	}
}

func TestTOTPLockoutAfterThreeFailures(t *testing.T) {
	v, _ := Open(t.TempDir(), "")
	if _, err := v.SetupTOTP("agent-gateway", "local"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		ok, err := v.VerifyTOTP("000000")
		if ok || err != nil {
			t.Fatalf("attempt %d: expected false/nil, got %v/%v", i, ok, err)
		}
	}
	if _, err := v.VerifyTOTP("000000"); !errors.Is(err, ErrTOTPLocked) {
		t.Fatalf("expected lockout, got %v", err)
	}
}

func currentCode(t *testing.T, secretB32 string, now time.Time) string {
	t.Helper()
	seed, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secretB32)
	if err != nil {
		t.Fatal(err)
	}
	counter := uint64(now.Unix()) / uint64(totpStep.Seconds())
	return hotp(seed, counter)
}
