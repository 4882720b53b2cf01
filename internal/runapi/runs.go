package runapi

import (
	"encoding/json"
	"mime"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/nudge/internal/caserec"
	"github.com/linnemanlabs/nudge/internal/followup"
)

// submitRequest is the JSON body for POST /runs.
type submitRequest struct {
	Records     []caserec.Record `json:"records"`
	OwnerFilter string           `json:"owner_filter,omitempty"`
	Deliver     bool             `json:"deliver,omitempty"`
}

// submitResponse is returned for both accepted and skipped submissions.
type submitResponse struct {
	ID      string          `json:"id,omitempty"`
	Intents int             `json:"intents"`
	Skipped bool            `json:"skipped,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Report  *caserec.Report `json:"report,omitempty"`
}

// handleSubmitRun accepts either a JSON submit request or a raw CSV
// export body (Content-Type: text/csv) with options as query params.
func (a *API) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var (
		records []caserec.Record
		opts    followup.SubmitOptions
		report  *caserec.Report
	)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "text/csv", "application/csv":
		var err error
		records, report, err = caserec.ParseCSV(r.Body)
		if err != nil {
			http.Error(w, `{"error":"invalid csv export"}`, http.StatusBadRequest)
			return
		}
		opts.OwnerFilter = r.URL.Query().Get("owner")
		opts.Deliver = r.URL.Query().Get("deliver") == "true"

		if report.DroppedRows > 0 {
			a.logger.Warn(r.Context(), "export rows dropped during parse",
				"dropped", report.DroppedRows,
				"parsed", report.Rows,
			)
		}
	default:
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
			return
		}
		records = req.Records
		opts.OwnerFilter = req.OwnerFilter
		opts.Deliver = req.Deliver
	}

	result, err := a.svc.Submit(r.Context(), records, opts)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to submit run")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if result.Skipped {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(submitResponse{
			Skipped: true,
			Reason:  result.Reason,
			Report:  report,
		})
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("nudge.run.id", result.ID),
		attribute.Int("nudge.run.intents", result.Intents),
	)

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(submitResponse{
		ID:      result.ID,
		Intents: result.Intents,
		Report:  report,
	})
}
