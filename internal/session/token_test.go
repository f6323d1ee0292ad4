package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/talkform/talkform-backend/internal/pkg/apierr"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	codec, err := NewCodec("topsecret", time.Hour)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	formID, frID := uuid.New(), uuid.New()

	token, err := codec.Sign(formID, frID)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	sess, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sess.FormID != formID || sess.FormResponseID != frID {
		t.Fatalf("claims mismatch: got %s/%s want %s/%s", sess.FormID, sess.FormResponseID, formID, frID)
	}
	if sess.CreatedAt.IsZero() {
		t.Fatalf("createdAt not populated from issued-at")
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	codec, _ := NewCodec("topsecret", time.Hour)
	token, err := codec.Sign(uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := codec.Verify(tampered); !errors.Is(err, apierr.ErrInvalidSession) {
		t.Fatalf("tampered token: got err=%v want ErrInvalidSession", err)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	signer, _ := NewCodec("key-one", time.Hour)
	verifier, _ := NewCodec("key-two", time.Hour)

	token, err := signer.Sign(uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, apierr.ErrInvalidSession) {
		t.Fatalf("wrong key: got err=%v want ErrInvalidSession", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	codec, _ := NewCodec("topsecret", time.Millisecond)
	token, err := codec.Sign(uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := codec.Verify(token); !errors.Is(err, apierr.ErrInvalidSession) {
		t.Fatalf("expired token: got err=%v want ErrInvalidSession", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	codec, _ := NewCodec("topsecret", time.Hour)
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := codec.Verify(tok); !errors.Is(err, apierr.ErrInvalidSession) {
			t.Fatalf("Verify(%q): got err=%v want ErrInvalidSession", tok, err)
		}
	}
}

func TestNewCodecValidation(t *testing.T) {
	if _, err := NewCodec("", time.Hour); err == nil {
		t.Fatalf("empty secret accepted")
	}
	if _, err := NewCodec("secret", 0); err == nil {
		t.Fatalf("zero ttl accepted")
	}
}
