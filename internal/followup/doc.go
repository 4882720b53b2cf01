// Package followup provides the business boundary for nudge's case
// follow-up system. It defines the pure grouping/resolution/assembly
// pipeline that turns case records into per-owner notification intents,
// the Service (run lifecycle, delivery dispatch, metrics), the Store
// interface (persistence), and domain models.
package followup
