// Package links issues signed, expiring download links. A link is pinned to
// the version of the file it was generated for and stops working once the
// file changes.
package links

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/core/log"
	"github.com/ebogdum/bucketfs/metrics"
)

var (
	ErrLinkInvalid = errors.New("link is invalid")
	ErrLinkExpired = errors.New("link has expired")
)

// Link is the claim carried by a token
type Link struct {
	Path      string                `json:"p"`
	Version   backends.VersionToken `json:"v"`
	ExpiresAt int64                 `json:"e"` // Unix seconds
}

// Expires returns the expiry as a time
func (l Link) Expires() time.Time {
	return time.Unix(l.ExpiresAt, 0).UTC()
}

// LinkManager creates and validates download link tokens. Tokens are
// self-contained, so nothing is stored server side.
type LinkManager struct {
	secretKey []byte
	maxExpiry time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewLinkManager creates a new LinkManager. Requested expiries are capped at
// maxExpiry.
func NewLinkManager(secretKey string, maxExpiry time.Duration, logger *zap.Logger) (*LinkManager, error) {
	if secretKey == "" {
		return nil, errors.New("secret key cannot be empty")
	}
	if maxExpiry <= 0 {
		return nil, errors.New("max expiry must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Hash the secret key for HMAC
	h := sha256.Sum256([]byte(secretKey))

	return &LinkManager{
		secretKey: h[:],
		maxExpiry: maxExpiry,
		now:       time.Now,
		logger:    logger,
	}, nil
}

// GenerateLink returns a token granting read access to version of path
// until the expiry elapses.
func (lm *LinkManager) GenerateLink(path string, version backends.VersionToken, expiry time.Duration) (string, Link, error) {
	if version == "" {
		return "", Link{}, fmt.Errorf("%w: a version is required", ErrLinkInvalid)
	}
	if expiry <= 0 || expiry > lm.maxExpiry {
		expiry = lm.maxExpiry
	}

	link := Link{
		Path:      path,
		Version:   version,
		ExpiresAt: lm.now().Add(expiry).Unix(),
	}

	payload, err := json.Marshal(link)
	if err != nil {
		return "", Link{}, fmt.Errorf("failed to encode link: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	token := encoded + "." + lm.sign(encoded)

	lm.logger.Info("Generated download link",
		zap.String("token", TruncateToken(token)),
		log.Path("path", path),
		zap.Time("expires_at", link.Expires()))
	metrics.LinkGenerationsTotal.Inc()

	return token, link, nil
}

// ValidateLink checks the signature and expiry of token and returns its claim
func (lm *LinkManager) ValidateLink(token string) (Link, error) {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok || !hmac.Equal([]byte(signature), []byte(lm.sign(encoded))) {
		lm.logger.Warn("Download link signature verification failed", zap.String("token", TruncateToken(token)))
		metrics.LinkConsumptionsTotal.WithLabelValues("invalid").Inc()
		return Link{}, ErrLinkInvalid
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		metrics.LinkConsumptionsTotal.WithLabelValues("invalid").Inc()
		return Link{}, ErrLinkInvalid
	}

	var link Link
	if err := json.Unmarshal(payload, &link); err != nil || link.Path == "" || link.Version == "" {
		metrics.LinkConsumptionsTotal.WithLabelValues("invalid").Inc()
		return Link{}, ErrLinkInvalid
	}

	if lm.now().After(link.Expires()) {
		lm.logger.Debug("Download link has expired",
			zap.String("token", TruncateToken(token)),
			zap.Time("expired_at", link.Expires()))
		metrics.LinkConsumptionsTotal.WithLabelValues("expired").Inc()
		return Link{}, ErrLinkExpired
	}

	metrics.LinkConsumptionsTotal.WithLabelValues("success").Inc()
	return link, nil
}

func (lm *LinkManager) sign(encoded string) string {
	mac := hmac.New(sha256.New, lm.secretKey)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// TruncateToken returns a redacted token suitable for logs.
func TruncateToken(token string) string {
	if len(token) <= 8 {
		return token
	}

	return token[:8] + "..."
}
