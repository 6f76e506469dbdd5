// Package export serializes a user's account into a single versioned
// JSON document and restores such documents. Identifiers are stripped on
// import; rows always re-insert under the importing user.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"truckpay/internal/core"
)

const (
	// Format tags the document so imports can reject files that are not
	// ours before looking at any row.
	Format  = "truckpay-export"
	Version = 1
)

// Document is the exported account: profile plus all loads and all
// fixed/custom deductions.
type Document struct {
	Format     string         `json:"format"`
	Version    int            `json:"version"`
	ExportedAt time.Time      `json:"exported_at"`
	Profile    *ProfileRecord `json:"profile"`
	Loads      []LoadRecord   `json:"loads"`
	Deductions []DeductionRow `json:"deductions"`
}

type ProfileRecord struct {
	FullName            string  `json:"full_name"`
	Phone               string  `json:"phone,omitempty"`
	Email               string  `json:"email"`
	DriverType          string  `json:"driver_type"`
	CompanyDeductionPct float64 `json:"company_deduction_pct"`
	WeeklyPeriod        string  `json:"weekly_period"`
}

type LoadRecord struct {
	RateCents           int64   `json:"rate_cents"`
	CompanyDeductionPct float64 `json:"company_deduction_pct"`
	LocationFrom        string  `json:"location_from"`
	LocationTo          string  `json:"location_to"`
	PickupDate          string  `json:"pickup_date,omitempty"`
	DeliveryDate        string  `json:"delivery_date,omitempty"`
	DateAdded           string  `json:"date_added"`
	WeekPeriod          string  `json:"week_period,omitempty"`
}

type DeductionRow struct {
	Type         string `json:"type"`
	AmountCents  int64  `json:"amount_cents"`
	IsFixed      bool   `json:"is_fixed"`
	IsCustomType bool   `json:"is_custom_type"`
	DateAdded    string `json:"date_added"`
}

// Store is the slice of the repository export and import go through.
type Store interface {
	GetProfile(ctx context.Context, userID string) (core.Profile, error)
	ListLoads(ctx context.Context, userID string) ([]core.Load, error)
	ListDeductions(ctx context.Context, userID string) ([]core.Deduction, error)
	ImportAll(ctx context.Context, userID string, profile core.Profile, loads []core.Load, deductions []core.Deduction) error
}

// Export gathers the user's collections concurrently and builds the
// document.
func Export(ctx context.Context, store Store, userID string) (*Document, error) {
	var (
		profile    core.Profile
		loads      []core.Load
		deductions []core.Deduction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = store.GetProfile(gctx, userID)
		if err != nil {
			return fmt.Errorf("export profile: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		loads, err = store.ListLoads(gctx, userID)
		if err != nil {
			return fmt.Errorf("export loads: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		deductions, err = store.ListDeductions(gctx, userID)
		if err != nil {
			return fmt.Errorf("export deductions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	doc := &Document{
		Format:     Format,
		Version:    Version,
		ExportedAt: time.Now().UTC(),
		Profile: &ProfileRecord{
			FullName:            profile.FullName,
			Phone:               profile.Phone,
			Email:               profile.Email,
			DriverType:          string(profile.DriverType),
			CompanyDeductionPct: profile.CompanyDeductionPct,
			WeeklyPeriod:        profile.WeeklyPeriod,
		},
		Loads:      make([]LoadRecord, 0, len(loads)),
		Deductions: make([]DeductionRow, 0, len(deductions)),
	}
	for _, l := range loads {
		rec := LoadRecord{
			RateCents:           l.Rate.Cents,
			CompanyDeductionPct: l.CompanyDeductionPct,
			LocationFrom:        l.LocationFrom,
			LocationTo:          l.LocationTo,
			DateAdded:           l.DateAdded.ISO(),
			WeekPeriod:          l.WeekPeriod,
		}
		if !l.PickupDate.IsEmpty() {
			rec.PickupDate = l.PickupDate.ISO()
		}
		if !l.DeliveryDate.IsEmpty() {
			rec.DeliveryDate = l.DeliveryDate.ISO()
		}
		doc.Loads = append(doc.Loads, rec)
	}
	for _, d := range deductions {
		doc.Deductions = append(doc.Deductions, DeductionRow{
			Type:         d.Type,
			AmountCents:  d.Amount.Cents,
			IsFixed:      d.IsFixed,
			IsCustomType: d.IsCustomType,
			DateAdded:    d.DateAdded.ISO(),
		})
	}
	return doc, nil
}

// Marshal renders the document as indented JSON for download.
func (d *Document) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Parse decodes and checks a document without touching storage.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidDocument, err)
	}
	if doc.Format != Format {
		return nil, fmt.Errorf("%w: unexpected format %q", core.ErrInvalidDocument, doc.Format)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", core.ErrInvalidDocument, doc.Version)
	}
	if doc.Profile == nil || doc.Loads == nil || doc.Deductions == nil {
		return nil, fmt.Errorf("%w: profile, loads and deductions are all required", core.ErrInvalidDocument)
	}
	return &doc, nil
}

// Import re-creates a parsed document's rows under userID. Original
// identifiers are discarded; storage commits all rows or none and names
// the collection that failed.
func Import(ctx context.Context, store Store, userID string, doc *Document) error {
	profile := core.Profile{
		UserID:              userID,
		FullName:            doc.Profile.FullName,
		Phone:               doc.Profile.Phone,
		Email:               doc.Profile.Email,
		DriverType:          core.DriverType(doc.Profile.DriverType),
		CompanyDeductionPct: doc.Profile.CompanyDeductionPct,
		WeeklyPeriod:        doc.Profile.WeeklyPeriod,
	}
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("import profile: %w", err)
	}

	loads := make([]core.Load, 0, len(doc.Loads))
	for _, rec := range doc.Loads {
		l := core.Load{
			Rate:                core.Money{Cents: rec.RateCents},
			CompanyDeductionPct: rec.CompanyDeductionPct,
			LocationFrom:        rec.LocationFrom,
			LocationTo:          rec.LocationTo,
			WeekPeriod:          rec.WeekPeriod,
		}
		var err error
		if l.DateAdded, err = core.ParseDate(rec.DateAdded); err != nil {
			return fmt.Errorf("import loads: %w", err)
		}
		if rec.PickupDate != "" {
			if l.PickupDate, err = core.ParseDate(rec.PickupDate); err != nil {
				return fmt.Errorf("import loads: %w", err)
			}
		}
		if rec.DeliveryDate != "" {
			if l.DeliveryDate, err = core.ParseDate(rec.DeliveryDate); err != nil {
				return fmt.Errorf("import loads: %w", err)
			}
		}
		loads = append(loads, l)
	}

	deductions := make([]core.Deduction, 0, len(doc.Deductions))
	for _, rec := range doc.Deductions {
		d := core.Deduction{
			Type:         rec.Type,
			Amount:       core.Money{Cents: rec.AmountCents},
			IsFixed:      rec.IsFixed,
			IsCustomType: rec.IsCustomType,
		}
		var err error
		if d.DateAdded, err = core.ParseDate(rec.DateAdded); err != nil {
			return fmt.Errorf("import deductions: %w", err)
		}
		deductions = append(deductions, d)
	}

	return store.ImportAll(ctx, userID, profile, loads, deductions)
}
