package domain

// QuotaTier groups callers by their admission allowance.
type QuotaTier string

const (
	TierFree QuotaTier = "free"
	TierPro  QuotaTier = "pro"
)

// IsValid reports whether the tier is one the service knows about.
func (t QuotaTier) IsValid() bool {
	return t == TierFree || t == TierPro
}

// RateMultiplier scales the base per-resource rate limit for the tier.
func (t QuotaTier) RateMultiplier() int {
	if t == TierPro {
		return 5
	}
	return 1
}

// CallerIdentity is the resolved identity behind a credential. It is
// read-only to the orchestrator; only the credential subsystem mutates it.
type CallerIdentity struct {
	ID      string
	Tier    QuotaTier
	Country string
}
