package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ad-reporting-engine/internal/api"
	"ad-reporting-engine/internal/config"
	"ad-reporting-engine/internal/reporting"
)

// adTech serves reporting scripts and records the reporting GETs it receives.
type adTech struct {
	srv *httptest.Server

	mu   sync.Mutex
	hits []string
}

func newAdTech(t *testing.T) *adTech {
	t.Helper()
	a := &adTech{}
	a.srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/seller.js":
			fmt.Fprintf(w, `function reportResult(config, render_uri, bid, contextual_signals) {
				registerAdBeacon({click: '%[1]s/seller/click'});
				return {status: 0, results: {signals_for_buyer: '{"bid":' + bid + '}', reporting_uri: '%[1]s/seller/report'}};
			}`, a.srv.URL)
		case "/buyer.js":
			fmt.Fprintf(w, `function reportWin(ad_selection_signals, per_buyer_signals, signals_for_buyer, contextual_signals, custom_audience_signals) {
				registerAdBeacon({view: '%[1]s/buyer/view'});
				return {status: 0, results: {reporting_uri: '%[1]s/buyer/report?bid=' + signals_for_buyer.bid}};
			}`, a.srv.URL)
		default:
			a.mu.Lock()
			a.hits = append(a.hits, r.URL.RequestURI())
			a.mu.Unlock()
		}
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *adTech) reports() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.hits...)
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Reporting.RegisterAdBeaconEnabled = true
	cfg.Reporting.EnforceForeground = true
	cfg.Filter.AllowedApps = []string{"com.app"}
	cfg.Filter.EnrolledAdTechs = []string{"127.0.0.1"}
	cfg.Filter.RequestsPerSecond = 100
	cfg.Filter.Burst = 100
	cfg.Fetch.ClientTimeoutMs = 5000
	return cfg
}

func TestApp_ReportImpressionEndToEnd(t *testing.T) {
	ctx := context.Background()
	at := newAdTech(t)

	app, err := New(ctx, withDefaults(testConfig()), WithHTTPClient(at.srv.Client()))
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.Store.SaveAdSelection(ctx, reporting.AdSelectionRecord{
		ID:               9,
		Seller:           "127.0.0.1",
		WinningBuyer:     "127.0.0.1",
		WinningRenderURI: at.srv.URL + "/ad",
		WinningBid:       2.5,
		CustomAudience:   &reporting.CustomAudienceSignals{Owner: "com.app", Buyer: "127.0.0.1", Name: "shoes"},
		BiddingLogicURI:  at.srv.URL + "/buyer.js",
		CallerPackage:    "com.app",
	}, false))

	body := fmt.Sprintf(`{"ad_selection_config":{"seller":"127.0.0.1","decision_logic_uri":"%s/seller.js"}}`, at.srv.URL)
	req := httptest.NewRequest(http.MethodPost, "/v1/ad-selections/9/report-impression", strings.NewReader(body))
	req.Header.Set(api.HeaderCallerPackage, "com.app")
	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.ElementsMatch(t, []string{"/seller/report", "/buyer/report?bid=2.5"}, at.reports())

	uri, err := app.Store.RegisteredBeaconURI(ctx, 9, "click", reporting.DestinationSeller)
	require.NoError(t, err)
	assert.Equal(t, at.srv.URL+"/seller/click", uri)
	uri, err = app.Store.RegisteredBeaconURI(ctx, 9, "view", reporting.DestinationBuyer)
	require.NoError(t, err)
	assert.Equal(t, at.srv.URL+"/buyer/view", uri)
}

func TestApp_UnknownAdSelection(t *testing.T) {
	app, err := New(context.Background(), withDefaults(testConfig()))
	require.NoError(t, err)
	defer app.Close()

	body := `{"ad_selection_config":{"seller":"127.0.0.1","decision_logic_uri":"https://127.0.0.1/seller.js"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/ad-selections/404/report-impression", strings.NewReader(body))
	req.Header.Set(api.HeaderCallerPackage, "com.app")
	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), reporting.ErrAdSelectionNotFound.Error())
}

func TestApp_FlagsReload(t *testing.T) {
	app, err := New(context.Background(), withDefaults(testConfig()))
	require.NoError(t, err)
	defer app.Close()

	cfg := withDefaults(testConfig())
	cfg.Reporting.OverallTimeoutMs = 100
	app.Flags.Apply(cfg)
	assert.Equal(t, 100*time.Millisecond, app.Flags.Flags().OverallTimeout)

	// Listen returns at once without a database
	app.Listen(context.Background(), "", time.Millisecond)
}

// withDefaults fills the values config.Loader would have defaulted.
func withDefaults(cfg config.Config) config.Config {
	d := reporting.DefaultFlags()
	cfg.Reporting.OverallTimeoutMs = int(d.OverallTimeout.Milliseconds())
	cfg.Reporting.ScriptTimeoutMs = int(d.ScriptTimeout.Milliseconds())
	cfg.Reporting.FetchTimeoutMs = int(d.FetchTimeout.Milliseconds())
	cfg.Reporting.MaxRegisteredBeaconsTotal = d.MaxRegisteredBeaconsTotal
	cfg.Reporting.MaxRegisteredBeaconsPerAdTech = d.MaxRegisteredBeaconsPerAdTech
	cfg.Reporting.MaxInteractionKeySizeB = d.MaxInteractionKeySize
	cfg.Reporting.MaxInteractionURISizeB = d.MaxInteractionURISize
	return cfg
}
