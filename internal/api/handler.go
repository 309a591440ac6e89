package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ad-reporting-engine/internal/reporting"
)

const (
	HeaderCallerPackage = "X-Caller-Package"
	HeaderForeground    = "X-Caller-Foreground"
	HeaderDevOptions    = "X-Dev-Options"
)

type ImpressionReporter interface {
	ReportImpression(ctx context.Context, in reporting.ReportImpressionInput) error
}

type OverrideManager interface {
	OverrideAdSelectionConfig(ctx context.Context, dev reporting.DevContext, cfg reporting.AdSelectionConfig, decisionLogicJS, trustedScoringSignals string) error
	RemoveAdSelectionConfigOverride(ctx context.Context, dev reporting.DevContext, cfg reporting.AdSelectionConfig) error
	ResetAllAdSelectionConfigOverrides(ctx context.Context, dev reporting.DevContext) error
	OverrideCustomAudience(ctx context.Context, dev reporting.DevContext, o reporting.CustomAudienceOverride) error
	RemoveCustomAudienceOverride(ctx context.Context, dev reporting.DevContext, owner, buyer, name string) error
	ResetAllCustomAudienceOverrides(ctx context.Context, dev reporting.DevContext) error
}

type ReportingHandler struct {
	Reporter  ImpressionReporter
	Overrides OverrideManager
}

func NewReportingHandler(rep ImpressionReporter, ov OverrideManager) *ReportingHandler {
	return &ReportingHandler{Reporter: rep, Overrides: ov}
}

type reportImpressionRequest struct {
	AdSelectionConfig reporting.AdSelectionConfig `json:"ad_selection_config"`
}

type adSelectionOverrideRequest struct {
	AdSelectionConfig     reporting.AdSelectionConfig `json:"ad_selection_config"`
	DecisionLogicJS       string                      `json:"decision_logic_js"`
	TrustedScoringSignals string                      `json:"trusted_scoring_signals"`
}

type customAudienceOverrideRequest struct {
	Owner                 string `json:"owner"`
	Buyer                 string `json:"buyer"`
	Name                  string `json:"name"`
	BiddingLogicJS        string `json:"bidding_logic_js"`
	TrustedBiddingSignals string `json:"trusted_bidding_signals"`
}

type errorResponse struct {
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := reporting.StatusOf(err)
	writeJSON(w, httpStatus(code, err), errorResponse{
		StatusCode: int(code),
		Status:     code.String(),
		Message:    err.Error(),
	})
}

func httpStatus(code reporting.StatusCode, err error) int {
	switch {
	case errors.Is(err, reporting.ErrTimedOut):
		return http.StatusGatewayTimeout
	case code == reporting.StatusSuccess:
		return http.StatusOK
	case code == reporting.StatusInvalidArgument:
		return http.StatusBadRequest
	case code == reporting.StatusUnauthorized:
		return http.StatusUnauthorized
	case code == reporting.StatusCallerNotAllowed, code == reporting.StatusBackgroundCaller:
		return http.StatusForbidden
	case code == reporting.StatusRateLimitReached:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func devContext(r *http.Request) reporting.DevContext {
	enabled, _ := strconv.ParseBool(r.Header.Get(HeaderDevOptions))
	return reporting.DevContext{
		DevOptionsEnabled: enabled,
		CallerPackage:     r.Header.Get(HeaderCallerPackage),
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		StatusCode: int(reporting.StatusInvalidArgument),
		Status:     reporting.StatusInvalidArgument.String(),
		Message:    msg,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "malformed request body: "+err.Error())
		return false
	}
	return true
}

func (h *ReportingHandler) ReportImpression(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, "ad selection id must be an integer")
		return
	}
	caller := r.Header.Get(HeaderCallerPackage)
	if caller == "" {
		badRequest(w, HeaderCallerPackage+" header is required")
		return
	}
	foreground := true
	if v := r.Header.Get(HeaderForeground); v != "" {
		if foreground, err = strconv.ParseBool(v); err != nil {
			badRequest(w, HeaderForeground+" must be a boolean")
			return
		}
	}
	var body reportImpressionRequest
	if !decode(w, r, &body) {
		return
	}

	err = h.Reporter.ReportImpression(r.Context(), reporting.ReportImpressionInput{
		AdSelectionID: id,
		Config:        body.AdSelectionConfig,
		CallerPackage: caller,
		Foreground:    foreground,
		Dev:           devContext(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *ReportingHandler) PutAdSelectionOverride(w http.ResponseWriter, r *http.Request) {
	var body adSelectionOverrideRequest
	if !decode(w, r, &body) {
		return
	}
	h.respond(w, h.Overrides.OverrideAdSelectionConfig(r.Context(), devContext(r),
		body.AdSelectionConfig, body.DecisionLogicJS, body.TrustedScoringSignals))
}

func (h *ReportingHandler) DeleteAdSelectionOverride(w http.ResponseWriter, r *http.Request) {
	var body reportImpressionRequest
	if !decode(w, r, &body) {
		return
	}
	h.respond(w, h.Overrides.RemoveAdSelectionConfigOverride(r.Context(), devContext(r), body.AdSelectionConfig))
}

func (h *ReportingHandler) ResetAdSelectionOverrides(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.Overrides.ResetAllAdSelectionConfigOverrides(r.Context(), devContext(r)))
}

func (h *ReportingHandler) PutCustomAudienceOverride(w http.ResponseWriter, r *http.Request) {
	var body customAudienceOverrideRequest
	if !decode(w, r, &body) {
		return
	}
	h.respond(w, h.Overrides.OverrideCustomAudience(r.Context(), devContext(r), reporting.CustomAudienceOverride{
		Owner:                 body.Owner,
		Buyer:                 body.Buyer,
		Name:                  body.Name,
		BiddingLogicJS:        body.BiddingLogicJS,
		TrustedBiddingSignals: body.TrustedBiddingSignals,
	}))
}

func (h *ReportingHandler) DeleteCustomAudienceOverride(w http.ResponseWriter, r *http.Request) {
	var body customAudienceOverrideRequest
	if !decode(w, r, &body) {
		return
	}
	h.respond(w, h.Overrides.RemoveCustomAudienceOverride(r.Context(), devContext(r), body.Owner, body.Buyer, body.Name))
}

func (h *ReportingHandler) ResetCustomAudienceOverrides(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.Overrides.ResetAllCustomAudienceOverrides(r.Context(), devContext(r)))
}

func (h *ReportingHandler) respond(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
