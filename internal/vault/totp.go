package vault

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// TOTP algorithm parameters, fixed per spec.md §4.1: SHA-1 HMAC, 6 digits,
// 30 second step, ±1 step verification window.
const (
	totpDigits = 6
	totpStep   = 30 * time.Second
	totpSkew   = 1
	seedBytes  = 20

	lockoutThreshold = 3
	lockoutWindow    = 2 * time.Minute
	lockoutBase      = 30 * time.Second
)

// ErrTOTPLocked is returned by VerifyTOTP while a failure lockout is in
// effect.
var ErrTOTPLocked = errors.New("vault: totp locked out, try again later")

// ErrNoTOTP is returned when no TOTP seed has been configured.
var ErrNoTOTP = errors.New("vault: totp not configured")

// HasTOTP reports whether a TOTP seed is currently configured, without
// decrypting it.
func (v *Vault) HasTOTP() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.data.Records[TOTPSecretKey]
	return ok
}

// SetupTOTP generates a fresh random seed, stores it under the reserved
// TOTPSecretKey, and returns the otpauth:// URI for the caller to display
// (QR code or plain text) exactly once. It bypasses the generic policy
// path: the TOTP seed is a system record, not an agent-readable
// credential.
func (v *Vault) SetupTOTP(issuer, account string) (string, error) {
	seed := make([]byte, seedBytes)
	if err := randBytes(seed); err != nil {
		return "", err
	}
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(seed)

	v.mu.Lock()
	plaintext, err := jsonValue(Value{Single: secret})
	if err != nil {
		v.mu.Unlock()
		return "", err
	}
	nonce, ciphertext, err := encrypt(v.key, plaintext)
	if err != nil {
		v.mu.Unlock()
		return "", err
	}
	v.data.Records[TOTPSecretKey] = record{Nonce: nonce, Ciphertext: ciphertext}
	v.totpFailures = nil
	v.lockedUntil = time.Time{}
	err = v.persist()
	v.mu.Unlock()
	if err != nil {
		return "", err
	}

	u := url.URL{
		Scheme: "otpauth",
		Host:   "totp",
		Path:   "/" + url.PathEscape(fmt.Sprintf("%s:%s", issuer, account)),
	}
	q := url.Values{}
	q.Set("secret", secret)
	q.Set("issuer", issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", "6")
	q.Set("period", "30")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// VerifyTOTP checks code against the stored seed at the current time,
// allowing ±1 step of clock skew. Failures count toward a lockout: three
// failures within a two-minute window locks verification out with
// exponential backoff until the caller waits it out.
func (v *Vault) VerifyTOTP(code string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	if now.Before(v.lockedUntil) {
		return false, ErrTOTPLocked
	}

	rec, ok := v.data.Records[TOTPSecretKey]
	if !ok {
		return false, ErrNoTOTP
	}
	plaintext, err := decrypt(v.key, rec.Nonce, rec.Ciphertext)
	if err != nil {
		return false, fmt.Errorf("vault: %w: totp seed failed to decrypt", ErrCorrupt)
	}
	val, err := valueFromJSON(plaintext)
	if err != nil {
		return false, err
	}
	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(val.Single)
	if err != nil {
		return false, fmt.Errorf("vault: %w: malformed totp seed", ErrCorrupt)
	}

	if totpMatches(secret, code, now) {
		v.totpFailures = nil
		v.lockedUntil = time.Time{}
		return true, nil
	}

	v.recordTOTPFailure(now)
	return false, nil
}

func (v *Vault) recordTOTPFailure(now time.Time) {
	cutoff := now.Add(-lockoutWindow)
	kept := v.totpFailures[:0]
	for _, t := range v.totpFailures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	v.totpFailures = append(kept, now)

	if len(v.totpFailures) >= lockoutThreshold {
		strikes := len(v.totpFailures) - lockoutThreshold
		backoff := lockoutBase << strikes
		v.lockedUntil = now.Add(backoff)
	}
}

// RemoveTOTP deletes the stored seed and clears lockout state.
func (v *Vault) RemoveTOTP() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.data.Records, TOTPSecretKey)
	v.totpFailures = nil
	v.lockedUntil = time.Time{}
	return v.persist()
}

func totpMatches(secret []byte, code string, now time.Time) bool {
	counter := uint64(now.Unix()) / uint64(totpStep.Seconds())
	for skew := -totpSkew; skew <= totpSkew; skew++ {
		if hotp(secret, counter+uint64(skew)) == code {
			return true
		}
	}
	return false
}

func hotp(secret []byte, counter uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])
	code %= 1000000
	return fmt.Sprintf("%0*d", totpDigits, code)
}
