package reporting

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// AdTechRole names the owner of a URI in validation messages.
type AdTechRole string

const (
	RoleSeller AdTechRole = "seller"
	RoleBuyer  AdTechRole = "buyer"
)

func roleOf(d Destination) AdTechRole {
	if d == DestinationBuyer {
		return RoleBuyer
	}
	return RoleSeller
}

var (
	ErrMalformedURI   = errors.New("malformed uri")
	ErrDomainMismatch = errors.New("uri host does not match ad tech")
)

// ValidateAdTechURI checks that raw is an absolute https URI served from
// adTech or one of its subdomains.
func ValidateAdTechURI(role AdTechRole, adTech, raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: %s uri is empty", ErrMalformedURI, role)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedURI, err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("%w: %s uri %q must use https", ErrMalformedURI, role, raw)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: %s uri %q has no host", ErrMalformedURI, role, raw)
	}
	if !hostBelongsTo(host, strings.ToLower(adTech)) {
		return fmt.Errorf("%w: %s uri host %q is not under %q", ErrDomainMismatch, role, host, adTech)
	}
	return nil
}

func hostBelongsTo(host, adTech string) bool {
	if adTech == "" {
		return false
	}
	return host == adTech || strings.HasSuffix(host, "."+adTech)
}

func validAdTechIdentifier(id string) bool {
	if id == "" || strings.ContainsAny(id, "/:?#@ ") {
		return false
	}
	u, err := url.Parse("https://" + id)
	return err == nil && u.Hostname() == id
}

// ValidateAdSelectionConfig rejects configs whose seller and URIs disagree.
func ValidateAdSelectionConfig(c AdSelectionConfig) error {
	var violations []string
	if !validAdTechIdentifier(c.Seller) {
		violations = append(violations, fmt.Sprintf("seller %q is not a valid ad tech identifier", c.Seller))
	} else {
		if err := ValidateAdTechURI(RoleSeller, c.Seller, c.DecisionLogicURI); err != nil {
			violations = append(violations, "decision logic uri: "+err.Error())
		}
		if c.TrustedScoringSignalsURI != "" {
			if err := ValidateAdTechURI(RoleSeller, c.Seller, c.TrustedScoringSignalsURI); err != nil {
				violations = append(violations, "trusted scoring signals uri: "+err.Error())
			}
		}
	}
	for _, b := range c.CustomAudienceBuyers {
		if !validAdTechIdentifier(b) {
			violations = append(violations, fmt.Sprintf("buyer %q is not a valid ad tech identifier", b))
		}
	}
	for b := range c.PerBuyerSignals {
		if !validAdTechIdentifier(b) {
			violations = append(violations, fmt.Sprintf("per buyer signals key %q is not a valid ad tech identifier", b))
		}
	}
	if len(violations) > 0 {
		return &ValidationError{Subject: "ad selection config", Violations: violations}
	}
	return nil
}
