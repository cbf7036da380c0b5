package export

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/jordanlanch/reportdb/pkg/domain"
)

// LinkSigner issues and verifies time-limited download links. Used when an
// export is too large to attach to an email and by the download endpoint.
type LinkSigner struct {
	secret  []byte
	baseURL string
}

// NewLinkSigner creates a signer; baseURL is the public API origin
func NewLinkSigner(secret, baseURL string) *LinkSigner {
	return &LinkSigner{secret: []byte(secret), baseURL: baseURL}
}

// SignedURL returns a download URL valid until expiresAt
func (s *LinkSigner) SignedURL(exportID string, expiresAt time.Time) string {
	expires := expiresAt.UTC().Unix()
	token := s.token(exportID, expires)
	return fmt.Sprintf("%s/api/v1/exports/%s/download?expires=%d&token=%s",
		s.baseURL, exportID, expires, token)
}

// Verify checks a presented token against the export id and expiry
func (s *LinkSigner) Verify(exportID string, expires int64, token string) error {
	if time.Now().UTC().Unix() > expires {
		return domain.NewValidationError("download link has expired")
	}
	expected := s.token(exportID, expires)
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return domain.NewValidationError("download link signature is not valid")
	}
	return nil
}

func (s *LinkSigner) token(exportID string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(exportID))
	mac.Write([]byte(":"))
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
