package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
)

var ErrInvalidSignature = errors.New("invalid signature")

type Signer struct {
	secretKey []byte
	logger    *slog.Logger
}

func NewSigner(secretKey string, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{
		secretKey: []byte(secretKey),
		logger:    logger,
	}
}

func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) Verify(data []byte, signature string) error {
	expectedSignature := s.Sign(data)

	if !hmac.Equal([]byte(expectedSignature), []byte(signature)) {
		s.logger.Warn("Signature verification failed",
			slog.Int("payload_bytes", len(data)))
		return ErrInvalidSignature
	}

	return nil
}

// SignRecord binds the signature to the key as well as the payload, so a
// value copied under another key does not verify.
func (s *Signer) SignRecord(key string, payload []byte) string {
	return s.Sign(recordBytes(key, payload))
}

func (s *Signer) VerifyRecord(key string, payload []byte, signature string) error {
	return s.Verify(recordBytes(key, payload), signature)
}

func recordBytes(key string, payload []byte) []byte {
	buf := make([]byte, 0, len(key)+1+len(payload))
	buf = append(buf, key...)
	buf = append(buf, 0)
	return append(buf, payload...)
}
