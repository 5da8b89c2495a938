package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSigner_SignAndVerify(t *testing.T) {
	s := NewSigner("test-secret", nil)
	sig := s.Sign([]byte("payload"))

	assert.NoError(t, s.Verify([]byte("payload"), sig))
	assert.ErrorIs(t, s.Verify([]byte("payload!"), sig), ErrInvalidSignature)
	assert.ErrorIs(t, NewSigner("other", nil).Verify([]byte("payload"), sig), ErrInvalidSignature)
}

func TestSigner_RecordBoundToKey(t *testing.T) {
	s := NewSigner("test-secret", nil)
	sig := s.SignRecord("user_balance", []byte("1000"))

	assert.NoError(t, s.VerifyRecord("user_balance", []byte("1000"), sig))
	assert.ErrorIs(t, s.VerifyRecord("last_app_open", []byte("1000"), sig), ErrInvalidSignature)
}
