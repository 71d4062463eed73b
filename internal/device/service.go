// Package device derives stable fingerprints from client environment signals
// and scores how much a presented device should be trusted.
package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"account-trust-gate/internal/device/domain"
	"account-trust-gate/internal/threatintel"
)

// Validation recommendations.
const (
	RecommendAllow     = "allow"
	RecommendChallenge = "challenge"
	RecommendBlock     = "block"
)

const (
	trustedBaseConfidence = 90
	knownBaseConfidence   = 70
	unknownBaseConfidence = 50
	staleDecay            = 20
	staleAfter            = 30 * 24 * time.Hour
	suspiciousPenalty     = 30
)

// signalWeights maps each recognized component to its confidence contribution.
// The total exceeds 100; confidence is capped.
var signalWeights = map[string]int{
	"user_agent":        15,
	"screen_resolution": 10,
	"timezone":          8,
	"storage":           5,
	"renderer":          12,
	"canvas":            15,
	"audio":             10,
	"fonts":             10,
	"touch":             5,
	"hardware":          10,
	"network":           5,
}

// automationMarkers in a user-agent string indicate scripted clients.
var automationMarkers = []string{"headless", "phantomjs", "selenium", "puppeteer", "playwright", "bot", "curl", "python-requests", "wget"}

// FingerprintResult is the outcome of GenerateFingerprint.
type FingerprintResult struct {
	Fingerprint *domain.Fingerprint
	RiskFactors []string
}

// ValidationResult is the outcome of ValidateDevice.
type ValidationResult struct {
	IsValid        bool
	IsTrusted      bool
	RiskFactors    []string
	Confidence     int
	Recommendation string
}

// Service generates and validates device fingerprints. The trusted and
// suspicious sets are in-memory; durable trust records live upstream.
type Service struct {
	mu         sync.RWMutex
	trusted    map[string]bool
	suspicious map[string]bool

	intel threatintel.Lookup
	log   *zap.Logger
	nowF  func() time.Time
}

// NewService returns a device service. intel may be nil; the always-pass
// default is used.
func NewService(intel threatintel.Lookup, log *zap.Logger) *Service {
	if intel == nil {
		intel = threatintel.Noop{}
	}
	return &Service{
		trusted:    make(map[string]bool),
		suspicious: make(map[string]bool),
		intel:      intel,
		log:        log,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// GenerateFingerprint normalizes the signal map, hashes the sorted component
// vector, and derives confidence and risk scores. Deterministic: identical
// signals always yield the same hash and scores.
func (s *Service) GenerateFingerprint(ctx context.Context, signals map[string]string, ipAddress string) FingerprintResult {
	components := make(map[string]string, len(signals))
	confidence := 0
	for key, weight := range signalWeights {
		v := strings.TrimSpace(signals[key])
		if v == "" {
			continue
		}
		components[key] = v
		confidence += weight
	}
	if confidence > 100 {
		confidence = 100
	}

	risk := 0
	var factors []string

	ua := strings.ToLower(components["user_agent"])
	for _, marker := range automationMarkers {
		if strings.Contains(ua, marker) {
			risk += 40
			factors = append(factors, "automation indicator in user agent")
			break
		}
	}
	if ua != "" && len(ua) < 20 {
		risk += 25
		factors = append(factors, "implausibly short user agent")
	}
	if inconsistentSignals(components) {
		risk += 20
		factors = append(factors, "internally inconsistent signals")
	}
	if ipAddress != "" && s.intel.IsKnownBadAddress(ctx, ipAddress) {
		risk += 30
		factors = append(factors, "source address has bad reputation")
	}
	if risk > 100 {
		risk = 100
	}

	return FingerprintResult{
		Fingerprint: &domain.Fingerprint{
			Hash:       hashComponents(components),
			Components: components,
			Confidence: confidence,
			RiskScore:  risk,
		},
		RiskFactors: factors,
	}
}

// inconsistentSignals flags component combinations no real client produces.
func inconsistentSignals(c map[string]string) bool {
	if c["screen_resolution"] == "0x0" {
		return true
	}
	// Touch hardware reporting a desktop renderer with no screen makes no sense.
	if c["touch"] != "" && c["screen_resolution"] == "" && c["hardware"] != "" {
		return true
	}
	return false
}

// hashComponents hashes the sorted k=v vector with SHA-256.
func hashComponents(components map[string]string) string {
	keys := make([]string, 0, len(components))
	for k := range components {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(components[k])
		b.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ValidateDevice scores a presented fingerprint against the user's known
// devices. Known trusted devices start at 90 confidence, decayed when unseen
// beyond 30 days; known untrusted at 70; unknown at 50. Membership in the
// suspicious set subtracts further.
func (s *Service) ValidateDevice(ctx context.Context, fingerprintHash, userID string, knownDevices []domain.KnownDevice) ValidationResult {
	now := s.nowF()
	confidence := unknownBaseConfidence
	isTrusted := false
	var factors []string

	var match *domain.KnownDevice
	for i := range knownDevices {
		if knownDevices[i].FingerprintHash == fingerprintHash {
			match = &knownDevices[i]
			break
		}
	}

	switch {
	case match == nil:
		factors = append(factors, "device not previously seen for this user")
	case match.Trusted || s.isTrustedOverride(fingerprintHash):
		isTrusted = true
		confidence = trustedBaseConfidence
		if now.Sub(match.LastSeen) > staleAfter {
			confidence -= staleDecay
			factors = append(factors, "trusted device unseen for over 30 days")
		}
	default:
		confidence = knownBaseConfidence
		factors = append(factors, "device known but not marked trusted")
	}

	if s.isSuspicious(fingerprintHash) {
		confidence -= suspiciousPenalty
		factors = append(factors, "fingerprint matches a suspicious pattern")
	}
	if confidence < 0 {
		confidence = 0
	}

	rec := RecommendBlock
	switch {
	case confidence >= 80 && len(factors) == 0:
		rec = RecommendAllow
	case confidence >= 50 && len(factors) <= 2:
		rec = RecommendChallenge
	}

	return ValidationResult{
		IsValid:        rec != RecommendBlock,
		IsTrusted:      isTrusted,
		RiskFactors:    factors,
		Confidence:     confidence,
		Recommendation: rec,
	}
}

// UpdateDeviceTrust is the only path that marks a device trusted. Marking a
// device untrusted also adds its fingerprint to the suspicious set.
func (s *Service) UpdateDeviceTrust(fingerprintHash string, trusted bool, reason string) {
	s.mu.Lock()
	if trusted {
		s.trusted[fingerprintHash] = true
		delete(s.suspicious, fingerprintHash)
	} else {
		delete(s.trusted, fingerprintHash)
		s.suspicious[fingerprintHash] = true
	}
	s.mu.Unlock()

	if s.log != nil {
		s.log.Info("device trust updated",
			zap.String("fingerprint", fingerprintHash),
			zap.Bool("trusted", trusted),
			zap.String("reason", reason),
		)
	}
}

func (s *Service) isTrustedOverride(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trusted[hash]
}

func (s *Service) isSuspicious(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suspicious[hash]
}
